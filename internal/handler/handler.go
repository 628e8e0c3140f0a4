// Package handler provides the HTTP JSON handlers.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"case-market/pkg/apierror"
	"case-market/pkg/response"
)

const maxBodyBytes = 64 << 10

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves liveness and status.
type Handler struct {
	db      Pinger
	started time.Time
}

// New creates a new Handler.
func New(db Pinger) *Handler {
	return &Handler{db: db, started: time.Now()}
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Timestamp time.Time `json:"timestamp"`
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "healthy", Database: "ok", Timestamp: time.Now().UTC()}
	if err := h.db.Ping(ctx); err != nil {
		resp.Status, resp.Database = "degraded", "unreachable"
		response.JSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	response.OK(w, resp)
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Service       string  `json:"service"`
	Status        string  `json:"status"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	MemoryMB      float64 `json:"memory_mb"`
}

// Status handles GET /api/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	w.Header().Set("Cache-Control", "no-store")
	response.OK(w, StatusResponse{
		Service:       "case-market",
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		MemoryMB:      float64(mem.Alloc/1024) / 1024,
	})
}

// decodeJSON reads a size-limited JSON body into dst.
func decodeJSON(r *http.Request, dst any) *apierror.Error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apierror.BadRequest("request body is required")
		}
		return apierror.BadRequest("invalid JSON body")
	}
	return nil
}

func queryInt(r *http.Request, name string, fallback int) (int, *apierror.Error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apierror.ValidationError("invalid query parameter", apierror.FieldError{Field: name, Message: "must be an integer"})
	}
	return n, nil
}

func queryDecimal(r *http.Request, name string) (*decimal.Decimal, *apierror.Error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return nil, apierror.ValidationError("invalid query parameter", apierror.FieldError{Field: name, Message: "must be a non-negative number"})
	}
	return &d, nil
}
