package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/maltedev/product-resolver/internal/fetch"
	"github.com/maltedev/product-resolver/internal/jobs"
	"github.com/maltedev/product-resolver/internal/models"
	"github.com/maltedev/product-resolver/internal/queue"
	"github.com/maltedev/product-resolver/internal/snapshot"
)

const (
	maxRequestBytes = 1 << 20

	// Health degrades above these outbox backlogs.
	pendingWarnThreshold    = 1000
	deadLetterFailThreshold = 100
)

type Resolver interface {
	Resolve(ctx context.Context, rawURL string) (*models.ResolvedProduct, error)
}

type OutboxStats interface {
	Stats(ctx context.Context) (pending, deadLetter int64, err error)
}

type WorkerStats interface {
	Stats() jobs.Stats
}

type Handlers struct {
	resolver Resolver
	store    snapshot.Store
	queue    queue.Queue
	outbox   OutboxStats
	worker   WorkerStats
	logger   *slog.Logger
}

type Option func(*Handlers)

// WithOutbox adds outbox backlog to the health report.
func WithOutbox(o OutboxStats) Option {
	return func(h *Handlers) { h.outbox = o }
}

// WithWorker adds worker counters to the health report.
func WithWorker(w WorkerStats) Option {
	return func(h *Handlers) { h.worker = w }
}

func NewHandlers(resolver Resolver, store snapshot.Store, q queue.Queue, logger *slog.Logger, opts ...Option) *Handlers {
	h := &Handlers{
		resolver: resolver,
		store:    store,
		queue:    q,
		logger:   logger.With("component", "api"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type resolveRequest struct {
	URL any `json:"url"`
}

// decodeResolveRequest reads {url} from the body. It writes the error
// response itself and returns ok=false on failure.
func (h *Handlers) decodeResolveRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req resolveRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, CodeInvalidJSON, "Request body must be valid JSON")
		return "", false
	}

	rawURL, ok := req.URL.(string)
	if !ok {
		h.respondError(w, http.StatusUnprocessableEntity, CodeValidation, "url: expected a string")
		return "", false
	}
	rawURL = strings.TrimSpace(rawURL)
	if _, err := fetch.ParseURL(rawURL); err != nil {
		h.respondError(w, http.StatusUnprocessableEntity, CodeValidation, "url: "+err.Error())
		return "", false
	}
	return rawURL, true
}

// ResolveProduct resolves the URL synchronously and stores the snapshot.
func (h *Handlers) ResolveProduct(w http.ResponseWriter, r *http.Request) {
	rawURL, ok := h.decodeResolveRequest(w, r)
	if !ok {
		return
	}

	product, err := h.resolver.Resolve(r.Context(), rawURL)
	if err != nil {
		h.logger.Warn("resolve failed", "url", rawURL, "error", err)
		h.respondError(w, http.StatusBadGateway, CodeResolveFailed, resolveFailureMessage(err))
		return
	}

	snap, err := snapshot.FromProduct(rawURL, product)
	if err != nil {
		h.logger.Error("failed to build snapshot", "url", rawURL, "error", err)
		h.respondError(w, http.StatusInternalServerError, CodeInternal, "failed to store snapshot")
		return
	}

	if err := h.store.Create(r.Context(), snap); err != nil {
		h.logger.Error("failed to store snapshot", "url", rawURL, "error", err)
		h.respondError(w, http.StatusInternalServerError, CodeInternal, "failed to store snapshot")
		return
	}

	h.respondOK(w, http.StatusOK, newSnapshotResponse(snap))
}

// ResolveProductAsync stores a placeholder and queues the resolution.
func (h *Handlers) ResolveProductAsync(w http.ResponseWriter, r *http.Request) {
	rawURL, ok := h.decodeResolveRequest(w, r)
	if !ok {
		return
	}

	u, _ := fetch.ParseURL(rawURL)
	placeholder := snapshot.Placeholder(u, rawURL)
	if err := h.store.Create(r.Context(), placeholder); err != nil {
		h.logger.Error("failed to store placeholder", "url", rawURL, "error", err)
		h.respondError(w, http.StatusInternalServerError, CodeInternal, "failed to store snapshot")
		return
	}

	task := queue.NewTask(placeholder.ID, rawURL)
	if err := h.queue.Push(r.Context(), task); err != nil {
		h.logger.Error("failed to enqueue task", "snapshot_id", placeholder.ID, "error", err)
		if errors.Is(err, queue.ErrQueueFull) || errors.Is(err, queue.ErrQueueClosed) {
			h.respondError(w, http.StatusServiceUnavailable, CodeQueueUnavailable, "resolve queue is not accepting work")
			return
		}
		h.respondError(w, http.StatusInternalServerError, CodeInternal, "failed to enqueue task")
		return
	}

	h.logger.Info("resolve queued", "snapshot_id", placeholder.ID, "task_id", task.ID, "url", rawURL)
	h.respondOK(w, http.StatusAccepted, QueuedResponse{ID: placeholder.ID.String(), Status: "queued"})
}

func (h *Handlers) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, http.StatusNotFound, CodeNotFound, "snapshot not found")
		return
	}

	snap, err := h.store.Get(r.Context(), id)
	if errors.Is(err, snapshot.ErrNotFound) {
		h.respondError(w, http.StatusNotFound, CodeNotFound, "snapshot not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get snapshot", "id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, CodeInternal, "failed to get snapshot")
		return
	}

	h.respondOK(w, http.StatusOK, newSnapshotDetailResponse(snap))
}

// ResolveProductGet rejects GET on the resolve route.
func (h *Handlers) ResolveProductGet(w http.ResponseWriter, r *http.Request) {
	h.respondError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Use POST")
}

func (h *Handlers) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.respondError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed,
		fmt.Sprintf("%s is not allowed on %s", r.Method, r.URL.Path))
}

func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.respondError(w, http.StatusNotFound, CodeNotFound, fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path))
}

// Health reports queue depth, worker counters and outbox backlog.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{"status": "ok"}
	status := http.StatusOK

	if size, err := h.queue.Size(r.Context()); err != nil {
		health["status"] = "error"
		health["message"] = "queue unavailable"
		status = http.StatusServiceUnavailable
	} else {
		health["queue"] = map[string]any{"size": size}
	}

	if h.worker != nil {
		health["worker"] = h.worker.Stats()
	}

	if counter, ok := h.store.(interface{ Stats() map[string]int }); ok {
		health["snapshots"] = counter.Stats()
	}

	if h.outbox != nil {
		pending, deadLetter, err := h.outbox.Stats(r.Context())
		switch {
		case err != nil:
			health["status"] = "error"
			health["message"] = "outbox unavailable"
			status = http.StatusServiceUnavailable
		default:
			health["outbox"] = map[string]any{
				"pending":     pending,
				"dead_letter": deadLetter,
			}
			if pending > pendingWarnThreshold && status == http.StatusOK {
				health["status"] = "warning"
				health["message"] = "High number of pending outbox events"
			}
			if deadLetter > deadLetterFailThreshold {
				health["status"] = "error"
				health["message"] = "High number of dead letter events"
				status = http.StatusServiceUnavailable
			}
		}
	}

	h.respondJSON(w, status, health)
}

func resolveFailureMessage(err error) string {
	switch {
	case errors.Is(err, fetch.ErrFetchTimeout):
		return "timed out fetching the product page"
	case errors.Is(err, fetch.ErrFetchNetwork):
		return "could not reach the product page"
	case errors.Is(err, fetch.ErrInvalidURL):
		return "the product url is not valid"
	default:
		return "could not resolve the product"
	}
}
