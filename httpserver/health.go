package httpserver

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	cleanersql "github.com/kroma-labs/dbcleaner-go/sql"
)

// HealthCheck reports whether a dependency is usable.
//
// Example:
//
//	func dbHealthCheck(ctx context.Context) error {
//	    return db.PingContext(ctx)
//	}
type HealthCheck func(ctx context.Context) error

// CheckResult is the outcome of one HealthCheck.
type CheckResult struct {
	Status              string `json:"status"`
	Latency             string `json:"latency"`
	Message             string `json:"message,omitempty"`
	ConsecutiveFailures int    `json:"consecutive_failures,omitempty"`
}

// HealthResponse is the data of GET /healthz.
type HealthResponse struct {
	Status       string                 `json:"status"`
	Service      string                 `json:"service"`
	Version      string                 `json:"version,omitempty"`
	Uptime       string                 `json:"uptime"`
	Timestamp    string                 `json:"timestamp"`
	Transactions cleanersql.Stats       `json:"transactions"`
	Checks       map[string]CheckResult `json:"checks,omitempty"`
}

type checkState struct {
	check    HealthCheck
	failures int
}

// HealthHandler serves GET /healthz: the coordinator state plus the result
// of every registered check. It answers 503 when a check fails.
type HealthHandler struct {
	serviceName string
	version     string
	startTime   time.Time
	coord       *cleanersql.Coordinator

	mu     sync.Mutex
	checks map[string]*checkState
}

// NewHealthHandler creates a HealthHandler reporting on coord.
func NewHealthHandler(serviceName, version string, coord *cleanersql.Coordinator) *HealthHandler {
	return &HealthHandler{
		serviceName: serviceName,
		version:     version,
		startTime:   time.Now(),
		coord:       coord,
		checks:      make(map[string]*checkState),
	}
}

// AddCheck registers check under name, replacing any previous one.
func (h *HealthHandler) AddCheck(name string, check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = &checkState{check: check}
}

// ServeHTTP implements http.Handler.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	results := make(map[string]CheckResult, len(h.checks))
	var errs []Error

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		state := h.checks[name]
		start := time.Now()
		err := state.check(r.Context())

		result := CheckResult{Status: "ok", Latency: time.Since(start).String()}
		if err != nil {
			state.failures++
			result.Status = "fail"
			result.Message = err.Error()
			result.ConsecutiveFailures = state.failures
			errs = append(errs, Error{Field: name, Message: err.Error()})
		} else {
			state.failures = 0
		}
		results[name] = result
	}

	data := HealthResponse{
		Status:       "ok",
		Service:      h.serviceName,
		Version:      h.version,
		Uptime:       now.Sub(h.startTime).Round(time.Second).String(),
		Timestamp:    now.Format(time.RFC3339),
		Transactions: h.coord.Stats(),
		Checks:       results,
	}

	if len(errs) > 0 {
		data.Status = "fail"
		WriteJSON(w, http.StatusServiceUnavailable, Response[HealthResponse]{
			Data:    data,
			Errors:  errs,
			Message: "one or more checks failed",
		})
		return
	}
	WriteSuccess(w, http.StatusOK, data, "all checks passed")
}
