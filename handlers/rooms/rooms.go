package rooms

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/Indrakargaurav/codeweave/core"
	"github.com/Indrakargaurav/codeweave/middleware"
	"github.com/Indrakargaurav/codeweave/room"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

func renderErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrNotOwner):
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, map[string]string{"error": "Only the room owner can perform this action."})
	case errors.Is(err, core.ErrRoomNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"error": "Room not found"})
	case errors.Is(err, core.ErrInvalidOrExpired):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"error": "Invalid or expired join code"})
	case errors.Is(err, core.ErrPersistenceFailure):
		// Shutdown failed all-or-nothing: the room is still active and the
		// owner must be able to tell this apart from success.
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{
			"error": "Failed to store files. Room shutdown cancelled.",
		})
	default:
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Internal server error"})
	}
}

func claims(w http.ResponseWriter, r *http.Request) (string, bool) {
	c, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, map[string]string{"error": "User claims not found"})
		return "", false
	}
	return c.Subject, true
}

// HandleCreate registers a fresh active room owned by the caller.
func HandleCreate(store core.RoomStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := claims(w, r)
		if !ok {
			return
		}

		rm, err := store.CreateRoom(r.Context(), ownerID)
		if err != nil {
			logrus.WithError(err).WithField("owner", ownerID).Error("Failed to create room")
			renderErr(w, r, err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"message": "Room created successfully",
			"roomId":  rm.ID,
			"room":    rm,
		})
	}
}

// HandleInfo returns the room record plus whether the caller owns it.
func HandleInfo(store core.RoomStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := claims(w, r)
		if !ok {
			return
		}

		rm, err := store.GetRoom(r.Context(), chi.URLParam(r, "roomID"))
		if err != nil {
			renderErr(w, r, err)
			return
		}

		isOwner := rm.OwnerID == ownerID
		render.JSON(w, r, map[string]any{
			"room":        rm,
			"isOwner":     isOwner,
			"canShutdown": isOwner && rm.Active,
		})
	}
}

// HandleList returns the caller's rooms, newest first.
func HandleList(store core.RoomStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := claims(w, r)
		if !ok {
			return
		}

		rooms, err := store.ListByOwner(r.Context(), ownerID)
		if err != nil {
			logrus.WithError(err).WithField("owner", ownerID).Error("Failed to list rooms")
			renderErr(w, r, err)
			return
		}
		if rooms == nil {
			rooms = []*core.Room{}
		}
		render.JSON(w, r, map[string]any{"rooms": rooms})
	}
}

// HandleGetFiles serves the persisted snapshot of a room.
func HandleGetFiles(store core.RoomStore, snapshots core.SnapshotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := claims(w, r); !ok {
			return
		}

		roomID := chi.URLParam(r, "roomID")
		rm, err := store.GetRoom(r.Context(), roomID)
		if err != nil {
			renderErr(w, r, err)
			return
		}

		tree, err := snapshots.ReadSnapshot(r.Context(), roomID)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, map[string]string{"error": "No files found for this room"})
				return
			}
			logrus.WithError(err).WithField("room", roomID).Error("Failed to read snapshot")
			renderErr(w, r, err)
			return
		}

		render.JSON(w, r, map[string]any{
			"files":        tree,
			"metadata":     rm.Metadata,
			"shutdownTime": rm.UpdatedAt,
		})
	}
}

// HandleSaveFiles persists the current tree without closing the room.
// Owner-only; used for periodic saves while the session is live.
func HandleSaveFiles(store core.RoomStore, snapshots core.SnapshotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := claims(w, r)
		if !ok {
			return
		}

		roomID := chi.URLParam(r, "roomID")
		rm, err := store.GetRoom(r.Context(), roomID)
		if err != nil {
			renderErr(w, r, err)
			return
		}
		if rm.OwnerID != ownerID {
			renderErr(w, r, core.ErrNotOwner)
			return
		}

		var body struct {
			Files *core.FileNode `json:"files"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Files == nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "files is required"})
			return
		}

		if _, err := snapshots.WriteSnapshot(r.Context(), roomID, body.Files); err != nil {
			logrus.WithError(err).WithField("room", roomID).Error("Failed to save files")
			renderErr(w, r, fmt.Errorf("%w: %v", core.ErrPersistenceFailure, err))
			return
		}
		if err := store.Touch(r.Context(), roomID, time.Now()); err != nil {
			logrus.WithError(err).WithField("room", roomID).Warn("Failed to bump room timestamp")
		}

		render.JSON(w, r, map[string]string{"message": "Files saved successfully"})
	}
}

// HandleShutdown drives the room lifecycle machine over HTTP. On success the
// room record is returned inactive with its storage key populated; on
// persistence failure the room stays active and the error says so.
func HandleShutdown(lifecycle *room.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := claims(w, r)
		if !ok {
			return
		}

		var body struct {
			Files *core.FileNode `json:"files"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "invalid request body"})
			return
		}

		rm, err := lifecycle.Shutdown(r.Context(), chi.URLParam(r, "roomID"), ownerID, body.Files)
		if err != nil {
			renderErr(w, r, err)
			return
		}

		render.JSON(w, r, map[string]any{
			"message": "Room shut down successfully",
			"room":    rm,
		})
	}
}

// HandleTouch bumps the room's updated-at timestamp.
func HandleTouch(store core.RoomStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := claims(w, r)
		if !ok {
			return
		}

		roomID := chi.URLParam(r, "roomID")
		rm, err := store.GetRoom(r.Context(), roomID)
		if err != nil {
			renderErr(w, r, err)
			return
		}
		if rm.OwnerID != ownerID {
			renderErr(w, r, core.ErrNotOwner)
			return
		}

		if err := store.Touch(r.Context(), roomID, time.Now()); err != nil {
			renderErr(w, r, err)
			return
		}
		render.JSON(w, r, map[string]string{"message": "Room timestamp updated successfully"})
	}
}

// HandleDelete is the administrative removal path: snapshot and record both
// go away. Distinct from shutdown, which preserves the snapshot.
func HandleDelete(store core.RoomStore, snapshots core.SnapshotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := claims(w, r)
		if !ok {
			return
		}

		roomID := chi.URLParam(r, "roomID")
		rm, err := store.GetRoom(r.Context(), roomID)
		if err != nil {
			renderErr(w, r, err)
			return
		}
		if rm.OwnerID != ownerID {
			renderErr(w, r, core.ErrNotOwner)
			return
		}

		if err := snapshots.DeleteSnapshot(r.Context(), roomID); err != nil {
			logrus.WithError(err).WithField("room", roomID).Error("Failed to delete snapshot")
			renderErr(w, r, err)
			return
		}
		if err := store.DeleteRoom(r.Context(), roomID); err != nil {
			renderErr(w, r, err)
			return
		}
		render.JSON(w, r, map[string]string{"message": "Room deleted successfully"})
	}
}

// HandleExport streams the room's snapshot as a zip archive.
func HandleExport(store core.RoomStore, snapshots core.SnapshotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := claims(w, r); !ok {
			return
		}

		roomID := chi.URLParam(r, "roomID")
		if _, err := store.GetRoom(r.Context(), roomID); err != nil {
			renderErr(w, r, err)
			return
		}

		tree, err := snapshots.ReadSnapshot(r.Context(), roomID)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, map[string]string{"error": "No files found for this room"})
				return
			}
			renderErr(w, r, err)
			return
		}

		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		if err := writeTreeToZip(zw, tree, ""); err != nil {
			logrus.WithError(err).WithField("room", roomID).Error("Failed to build export archive")
			renderErr(w, r, err)
			return
		}
		if err := zw.Close(); err != nil {
			renderErr(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="room-%s-export.zip"`, roomID))
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(buf.Bytes())
	}
}

func writeTreeToZip(zw *zip.Writer, node *core.FileNode, dir string) error {
	if node == nil {
		return nil
	}
	if node.Type == core.NodeTypeFile {
		f, err := zw.Create(path.Join(dir, node.Name))
		if err != nil {
			return err
		}
		_, err = f.Write([]byte(node.Content))
		return err
	}
	// The root folder name is dropped so archives unpack cleanly.
	sub := dir
	if dir != "" || node.Name == "" {
		sub = path.Join(dir, node.Name)
	}
	for _, child := range node.Children {
		if err := writeTreeToZip(zw, child, sub); err != nil {
			return err
		}
	}
	return nil
}

// HandleIssueJoinCode lets the owner mint a temporary join code.
func HandleIssueJoinCode(broker *room.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := claims(w, r)
		if !ok {
			return
		}

		code, ttl, err := broker.Issue(r.Context(), chi.URLParam(r, "roomID"), ownerID)
		if err != nil {
			renderErr(w, r, err)
			return
		}
		render.JSON(w, r, map[string]any{"joinCode": code, "expiresIn": ttl})
	}
}

// HandleResolveJoinCode trades a code for its room id. Codes stay valid
// until expiry regardless of how often they are resolved.
func HandleResolveJoinCode(broker *room.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := claims(w, r); !ok {
			return
		}

		roomID, err := broker.Resolve(r.Context(), chi.URLParam(r, "code"))
		if err != nil {
			renderErr(w, r, err)
			return
		}
		render.JSON(w, r, map[string]string{"roomId": roomID})
	}
}
