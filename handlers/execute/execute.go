package execute

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Indrakargaurav/codeweave/core"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// HandleExecute forwards a code snippet to the execution sandbox. This path
// is entirely separate from the room synchronization engine.
func HandleExecute(runner core.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req core.RunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "invalid request body"})
			return
		}
		if req.Code == "" || req.Language == "" || req.Filename == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{
				"error": "Missing required fields: code, language, filename",
			})
			return
		}
		if !runner.Supports(req.Language) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{
				"error": fmt.Sprintf("Unsupported language: %s. Supported languages: %s",
					req.Language, strings.Join(runner.Languages(), ", ")),
			})
			return
		}

		result, err := runner.Run(r.Context(), req)
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"language": req.Language,
				"filename": req.Filename,
			}).Error("Code execution failed")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Execution failed"})
			return
		}

		render.JSON(w, r, map[string]any{
			"success":  result.Error == "",
			"result":   result,
			"language": req.Language,
		})
	}
}

// HandleLanguages lists the languages the sandbox accepts.
func HandleLanguages(runner core.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]any{"languages": runner.Languages()})
	}
}
