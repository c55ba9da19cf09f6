package httpserver

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	cleanersql "github.com/kroma-labs/dbcleaner-go/sql"
)

// OutcomeReport is one entry of a SweepReport.
type OutcomeReport struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Error string `json:"error,omitempty"`
}

// SweepReport is the data returned by the start, commit and rollback
// endpoints.
type SweepReport struct {
	Operation string           `json:"operation"`
	Outcomes  []OutcomeReport  `json:"outcomes,omitempty"`
	State     cleanersql.Stats `json:"state"`
}

// TransactionsHandler exposes a coordinator over HTTP:
//
//	GET  /                  current Stats
//	POST /start             StartTransactions
//	POST /commit            CommitTransactions
//	POST /rollback          RollbackTransactions
//
// It is usually mounted at /transactions. Routers other than chi can call
// Status and Operate from their own routes.
type TransactionsHandler struct {
	coord  *cleanersql.Coordinator
	router chi.Router
}

// NewTransactionsHandler creates a TransactionsHandler for coord.
//
// Example:
//
//	r := chi.NewRouter()
//	r.Mount("/transactions", httpserver.NewTransactionsHandler(cleanersql.DefaultCoordinator()))
func NewTransactionsHandler(coord *cleanersql.Coordinator) *TransactionsHandler {
	h := &TransactionsHandler{coord: coord}

	r := chi.NewRouter()
	r.Get("/", h.Status)
	r.Post("/{operation}", func(w http.ResponseWriter, r *http.Request) {
		h.Operate(w, r, chi.URLParam(r, "operation"))
	})
	h.router = r

	return h
}

// ServeHTTP implements http.Handler.
func (h *TransactionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Status writes the coordinator Stats.
func (h *TransactionsHandler) Status(w http.ResponseWriter, _ *http.Request) {
	WriteSuccess(w, http.StatusOK, h.coord.Stats(), "")
}

// Operate runs operation (start, commit or rollback) and writes a
// SweepReport. Unknown operations get a 404.
func (h *TransactionsHandler) Operate(w http.ResponseWriter, r *http.Request, operation string) {
	ctx := r.Context()

	switch operation {
	case cleanersql.OperationStart:
		h.start(ctx, w)
	case cleanersql.OperationCommit:
		h.sweep(ctx, w, h.coord.CommitTransactions(ctx))
	case cleanersql.OperationRollback:
		h.sweep(ctx, w, h.coord.RollbackTransactions(ctx))
	default:
		WriteError(w, http.StatusNotFound, "unknown operation",
			Error{Field: "operation", Message: "must be one of start, commit, rollback"},
		)
	}
}

func (h *TransactionsHandler) start(ctx context.Context, w http.ResponseWriter) {
	err := h.coord.StartTransactions(ctx)
	report := SweepReport{Operation: cleanersql.OperationStart, State: h.coord.Stats()}

	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("start requested over admin API failed")
		WriteJSON(w, http.StatusInternalServerError, Response[SweepReport]{
			Data:    report,
			Errors:  []Error{{Field: cleanersql.OperationStart, Message: err.Error()}},
			Message: "forced transaction not started",
		})
		return
	}
	WriteSuccess(w, http.StatusOK, report, "forced transaction started")
}

func (h *TransactionsHandler) sweep(ctx context.Context, w http.ResponseWriter, result cleanersql.SweepResult) {
	report := SweepReport{
		Operation: result.Operation,
		Outcomes:  make([]OutcomeReport, 0, len(result.Outcomes)),
		State:     h.coord.Stats(),
	}

	var errs []Error
	for _, o := range result.Outcomes {
		entry := OutcomeReport{ID: o.ID.String(), Kind: o.Kind}
		if o.Err != nil {
			entry.Error = o.Err.Error()
			errs = append(errs, Error{Field: o.ID.String(), Message: o.Err.Error()})
		}
		report.Outcomes = append(report.Outcomes, entry)
	}

	if len(errs) > 0 {
		zerolog.Ctx(ctx).Warn().
			Str("operation", result.Operation).
			Int("failed", len(errs)).
			Msg("sweep requested over admin API finished with failures")
		WriteJSON(w, http.StatusInternalServerError, Response[SweepReport]{
			Data:    report,
			Errors:  errs,
			Message: result.Operation + " finished with failures",
		})
		return
	}
	WriteSuccess(w, http.StatusOK, report, result.Operation+" finished")
}
