package handler

import (
	"net/http"

	"github.com/go-chi/render"
)

// ErrResponse is the JSON error body.
type ErrResponse struct {
	HTTPStatusCode int    `json:"-"`
	StatusText     string `json:"status"`
	ErrorText      string `json:"error,omitempty"`
}

// Render implements render.Renderer.
func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func ErrInvalidRequest(err error) render.Renderer {
	return &ErrResponse{
		HTTPStatusCode: http.StatusBadRequest,
		StatusText:     "invalid request",
		ErrorText:      err.Error(),
	}
}

func ErrUnprocessable(err error) render.Renderer {
	return &ErrResponse{
		HTTPStatusCode: http.StatusUnprocessableEntity,
		StatusText:     "could not read file",
		ErrorText:      err.Error(),
	}
}

func ErrUnavailable(err error) render.Renderer {
	return &ErrResponse{
		HTTPStatusCode: http.StatusServiceUnavailable,
		StatusText:     "unavailable",
		ErrorText:      err.Error(),
	}
}

var (
	ErrNotFound = &ErrResponse{HTTPStatusCode: http.StatusNotFound, StatusText: "not found"}
	ErrInternal = &ErrResponse{HTTPStatusCode: http.StatusInternalServerError, StatusText: "internal error"}
)
