package core

import "context"

type (
	RunRequest struct {
		Code     string `json:"code"`
		Language string `json:"language"`
		Filename string `json:"filename"`
	}

	RunResult struct {
		Output     string `json:"output"`
		Error      string `json:"error,omitempty"`
		DurationMS int64  `json:"executionTimeMs"`
	}

	// Runner is the client side of the out-of-process execution sandbox. The
	// synchronization engine never calls it; only the run-code request path does.
	Runner interface {
		Run(ctx context.Context, req RunRequest) (*RunResult, error)
		Supports(language string) bool
		Languages() []string
	}
)
