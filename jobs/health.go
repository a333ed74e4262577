package jobs

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/academyhub/academyhub/internal/platform/httpx"
)

// QueueInspector is the part of asynq.Inspector the health endpoint reads.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Handler exposes queue depth for operators.
type Handler struct {
	inspector QueueInspector
	logger    *slog.Logger
}

// NewHandler constructs the jobs HTTP handler. A nil inspector reports
// empty queues.
func NewHandler(inspector QueueInspector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

// QueueHealth is the depth of one queue.
type QueueHealth struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Retry     int    `json:"retry"`
	Failed    int    `json:"failed"`
	Processed int    `json:"processed"`
}

type healthResponse struct {
	Status string        `json:"status"`
	Queues []QueueHealth `json:"queues"`
}

// QueueNames returns the configured queues in a stable order.
func QueueNames() []string {
	names := make([]string, 0, len(Queues))
	for name := range Queues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Inspect reads the depth of every configured queue. Queues that were never
// written to report zero.
func Inspect(inspector QueueInspector) ([]QueueHealth, error) {
	out := make([]QueueHealth, 0, len(Queues))
	for _, name := range QueueNames() {
		if inspector == nil {
			out = append(out, QueueHealth{Queue: name})
			continue
		}
		info, err := inspector.GetQueueInfo(name)
		if errors.Is(err, asynq.ErrQueueNotFound) {
			out = append(out, QueueHealth{Queue: name})
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, QueueHealth{
			Queue:     info.Queue,
			Pending:   info.Pending,
			Active:    info.Active,
			Retry:     info.Retry,
			Failed:    info.Failed,
			Processed: info.Processed,
		})
	}
	return out, nil
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	queues, err := Inspect(h.inspector)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.Problem(w, r, http.StatusServiceUnavailable, "queue unavailable")
		return
	}
	httpx.JSON(w, http.StatusOK, healthResponse{Status: "ok", Queues: queues})
}
