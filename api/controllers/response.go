package controllers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/hanamichi-me/DW-traffic/service/association"
	"github.com/hanamichi-me/DW-traffic/service/repository"
)

// APIResponse is the unified response envelope.
type APIResponse struct {
	Status int         `json:"status" example:"0"`
	Msg    string      `json:"msg" example:"ok"`
	Data   interface{} `json:"data,omitempty"`
}

// PaginatedResponse is the envelope of list endpoints.
type PaginatedResponse struct {
	Status int         `json:"status" example:"0"`
	Msg    string      `json:"msg" example:"ok"`
	Data   interface{} `json:"data"`
	Total  int64       `json:"total" example:"100"`
	Page   int         `json:"page" example:"1"`
	Size   int         `json:"size" example:"20"`
}

// SuccessResponse wraps data with status 0.
func SuccessResponse(msg string, data interface{}) *APIResponse {
	return &APIResponse{Status: 0, Msg: msg, Data: data}
}

func errorResponse(code int, msg string, err error) *APIResponse {
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	return &APIResponse{Status: code, Msg: msg}
}

// BadRequestResponse builds a 400 envelope.
func BadRequestResponse(msg string, err error) *APIResponse {
	return errorResponse(http.StatusBadRequest, msg, err)
}

// NotFoundResponse builds a 404 envelope.
func NotFoundResponse(msg string, err error) *APIResponse {
	return errorResponse(http.StatusNotFound, msg, err)
}

// ConflictResponse builds a 409 envelope.
func ConflictResponse(msg string, err error) *APIResponse {
	return errorResponse(http.StatusConflict, msg, err)
}

// UnprocessableResponse builds a 422 envelope.
func UnprocessableResponse(msg string, err error) *APIResponse {
	return errorResponse(http.StatusUnprocessableEntity, msg, err)
}

// InternalErrorResponse builds a 500 envelope.
func InternalErrorResponse(msg string, err error) *APIResponse {
	return errorResponse(http.StatusInternalServerError, msg, err)
}

// respond writes resp with its status as HTTP code (200 for status 0).
func respond(w http.ResponseWriter, r *http.Request, resp *APIResponse) {
	code := resp.Status
	if code == 0 {
		code = http.StatusOK
	}
	render.Status(r, code)
	render.JSON(w, r, resp)
}

// respondError maps service errors onto HTTP statuses.
func respondError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, association.ErrInvalidParameter), errors.Is(err, association.ErrEncoding):
		respond(w, r, BadRequestResponse(msg, err))
	case errors.Is(err, association.ErrCandidateExplosion), errors.Is(err, association.ErrPredicate):
		respond(w, r, UnprocessableResponse(msg, err))
	case errors.Is(err, repository.ErrNotFound):
		respond(w, r, NotFoundResponse(msg, err))
	default:
		slog.Error(msg, "error", err, "path", r.URL.Path)
		respond(w, r, InternalErrorResponse(msg, err))
	}
}
