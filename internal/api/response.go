package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/maltedev/product-resolver/internal/snapshot"
)

const (
	CodeInvalidJSON      = "INVALID_JSON"
	CodeValidation       = "VALIDATION_ERROR"
	CodeResolveFailed    = "RESOLVE_FAILED"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeNotFound         = "NOT_FOUND"
	CodeQueueUnavailable = "QUEUE_UNAVAILABLE"
	CodeInternal         = "INTERNAL_ERROR"
)

type envelope struct {
	OK    bool       `json:"ok"`
	Data  any        `json:"data,omitempty"`
	Error *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SnapshotResponse is the public shape of a stored snapshot.
type SnapshotResponse struct {
	ID        string          `json:"id"`
	URL       string          `json:"url"`
	Title     string          `json:"title"`
	ImageURL  *string         `json:"imageUrl"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	CreatedAt string          `json:"createdAt"`
}

type SnapshotDetailResponse struct {
	SnapshotResponse
	Status    string `json:"status"`
	UpdatedAt string `json:"updatedAt"`
}

type QueuedResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func newSnapshotResponse(s *snapshot.Snapshot) SnapshotResponse {
	return SnapshotResponse{
		ID:        s.ID.String(),
		URL:       s.URL,
		Title:     s.Title,
		ImageURL:  s.ImageURL,
		Price:     s.Price,
		Currency:  s.Currency,
		CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func newSnapshotDetailResponse(s *snapshot.Snapshot) SnapshotDetailResponse {
	return SnapshotDetailResponse{
		SnapshotResponse: newSnapshotResponse(s),
		Status:           s.Status,
		UpdatedAt:        s.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondOK(w http.ResponseWriter, status int, data any) {
	h.respondJSON(w, status, envelope{OK: true, Data: data})
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, code, message string) {
	h.respondJSON(w, status, envelope{Error: &errorBody{Code: code, Message: message}})
}
