// Package scheduling exposes the scheduling façade over HTTP.
package scheduling

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/history"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/logger"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/resolution"
)

const maxBodyBytes = 10 << 20

// Service is the part of the scheduling façade served by the API.
type Service interface {
	OptimizeSchedule(ctx context.Context, req model.SchedulingRequest) (model.SchedulingResult, error)
	Snapshot() (model.AssignmentSnapshot, bool)
	Conflicts() []model.SchedulingConflict
	ProposeResolution(ctx context.Context, conflictID string, opts ...resolution.Option) (model.ConflictResolution, error)
	Proposal(id string) (model.ConflictResolution, bool)
	ApplyResolution(ctx context.Context, res model.ConflictResolution, actor string) (model.AssignmentSnapshot, model.ConflictResolutionHistory, error)
	RejectResolution(ctx context.Context, id string) (model.ConflictResolution, error)
	RevertResolution(ctx context.Context, historyID string) (model.AssignmentSnapshot, error)
	History(ctx context.Context, q history.Query) ([]model.ConflictResolutionHistory, error)
	SubscribeHistory() (<-chan model.ConflictResolutionHistory, func())
}

// Handler serves the scheduling routes.
type Handler struct {
	svc      Service
	log      logger.Logger
	token    string
	limiter  *rate.Limiter
	defaults func(*model.SchedulingRequest)
	after    func(context.Context, model.SchedulingRequest, model.SchedulingResult)
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

// Option customizes a Handler.
type Option func(*Handler)

// WithToken requires "Authorization: Bearer <token>" on every route.
func WithToken(token string) Option { return func(h *Handler) { h.token = token } }

// WithRateLimit allows r requests per second with the given burst. A
// non-positive r disables limiting.
func WithRateLimit(r float64, burst int) Option {
	return func(h *Handler) {
		if r > 0 {
			h.limiter = rate.NewLimiter(rate.Limit(r), burst)
		}
	}
}

func WithLogger(l logger.Logger) Option { return func(h *Handler) { h.log = l } }

// WithRequestDefaults fills unset request fields before optimizing.
func WithRequestDefaults(fn func(*model.SchedulingRequest)) Option {
	return func(h *Handler) { h.defaults = fn }
}

// WithAfterOptimize runs fn after every successful optimization.
func WithAfterOptimize(fn func(context.Context, model.SchedulingRequest, model.SchedulingResult)) Option {
	return func(h *Handler) { h.after = fn }
}

// NewHandler returns the API handler for svc.
func NewHandler(svc Service, opts ...Option) *Handler {
	h := &Handler{svc: svc, log: logger.NopLogger{}}
	for _, o := range opts {
		o(h)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/schedule/optimize", h.optimize)
	mux.HandleFunc("GET /api/schedule", h.snapshot)
	mux.HandleFunc("GET /api/schedule/conflicts", h.conflicts)
	mux.HandleFunc("POST /api/resolutions", h.propose)
	mux.HandleFunc("GET /api/resolutions/{id}", h.proposal)
	mux.HandleFunc("POST /api/resolutions/{id}/apply", h.apply)
	mux.HandleFunc("POST /api/resolutions/{id}/reject", h.reject)
	mux.HandleFunc("GET /api/history", h.history)
	mux.HandleFunc("POST /api/history/{id}/revert", h.revert)
	mux.HandleFunc("GET /api/history/stream", h.stream)
	h.mux = mux
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && !h.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
		return
	}
	if h.token != "" && !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, errors.New("unauthorized"))
		return
	}
	h.mux.ServeHTTP(w, r)
}

// authorized checks the bearer token. Browsers cannot set headers on a
// websocket handshake so the stream also accepts an access_token parameter.
func (h *Handler) authorized(r *http.Request) bool {
	got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if got == "" && r.URL.Path == "/api/history/stream" {
		got = r.URL.Query().Get("access_token")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) == 1
}

func (h *Handler) optimize(w http.ResponseWriter, r *http.Request) {
	var req model.SchedulingRequest
	if !decode(w, r, &req) {
		return
	}
	if h.defaults != nil {
		h.defaults(&req)
	}
	res, err := h.svc.OptimizeSchedule(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	if h.after != nil {
		h.after(r.Context(), req, res)
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) snapshot(w http.ResponseWriter, _ *http.Request) {
	snap, ok := h.svc.Snapshot()
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("no schedule has been optimized"))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) conflicts(w http.ResponseWriter, r *http.Request) {
	cs := h.svc.Conflicts()
	if sev := r.URL.Query().Get("severity"); sev != "" {
		filtered := cs[:0:0]
		for _, c := range cs {
			if string(c.Severity) == sev {
				filtered = append(filtered, c)
			}
		}
		cs = filtered
	}
	if cs == nil {
		cs = []model.SchedulingConflict{}
	}
	writeJSON(w, http.StatusOK, cs)
}

type proposeRequest struct {
	ConflictID string                   `json:"conflict_id"`
	Strategy   model.ResolutionStrategy `json:"strategy,omitempty"`
	Target     *resolution.ManualTarget `json:"target,omitempty"`
}

func (h *Handler) propose(w http.ResponseWriter, r *http.Request) {
	var body proposeRequest
	if !decode(w, r, &body) {
		return
	}
	if body.ConflictID == "" {
		h.fail(w, model.Invalid("conflict_id", "is required"))
		return
	}
	var opts []resolution.Option
	if body.Strategy != "" {
		opts = append(opts, resolution.WithStrategy(body.Strategy))
	}
	if body.Target != nil {
		opts = append(opts, resolution.WithTarget(*body.Target))
	}
	res, err := h.svc.ProposeResolution(r.Context(), body.ConflictID, opts...)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) proposal(w http.ResponseWriter, r *http.Request) {
	res, ok := h.svc.Proposal(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("no pending resolution "+r.PathValue("id")))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type applyResponse struct {
	Snapshot model.AssignmentSnapshot        `json:"snapshot"`
	History  model.ConflictResolutionHistory `json:"history"`
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request) {
	res, ok := h.svc.Proposal(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("no pending resolution "+r.PathValue("id")))
		return
	}
	var body struct {
		Actor string `json:"actor"`
	}
	if r.ContentLength != 0 && !decode(w, r, &body) {
		return
	}
	if body.Actor == "" {
		body.Actor = "api"
	}
	snap, hist, err := h.svc.ApplyResolution(r.Context(), res, body.Actor)
	if err != nil {
		h.fail(w, err)
		return
	}
	status := http.StatusOK
	if hist.Outcome == model.OutcomeFailed {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, applyResponse{Snapshot: snap, History: hist})
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.RejectResolution(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) revert(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.RevertResolution(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func parseQuery(r *http.Request) (history.Query, error) {
	v := r.URL.Query()
	q := history.Query{ConflictID: v.Get("conflict_id"), Outcome: model.HistoryOutcome(v.Get("outcome"))}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"start", &q.Start}, {"end", &q.End}} {
		s := v.Get(p.name)
		if s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return q, model.Invalid(p.name, "expected RFC3339 time, got %q", s)
		}
		*p.dst = t
	}
	return q, nil
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	entries, err := h.svc.History(r.Context(), q)
	if err != nil {
		h.fail(w, err)
		return
	}
	if entries == nil {
		entries = []model.ConflictResolutionHistory{}
	}
	if lim := r.URL.Query().Get("limit"); lim != "" {
		n, err := strconv.Atoi(lim)
		if err != nil || n < 0 {
			h.fail(w, model.Invalid("limit", "expected a non-negative integer, got %q", lim))
			return
		}
		if n < len(entries) {
			entries = entries[len(entries)-n:]
		}
	}
	writeJSON(w, http.StatusOK, entries)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidRevert):
		return http.StatusConflict
	case errors.Is(err, model.ErrConstraintViolation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrInvalidRequest), errors.Is(err, model.ErrMissingCoordinate):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Errorf("request failed: %v", err)
	}
	writeError(w, status, err)
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	body := errorBody{Error: err.Error()}
	var ire *model.InvalidRequestError
	if errors.As(err, &ire) {
		body.Field = ire.Field
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, model.Invalid("body", "%v", err))
		return false
	}
	return true
}
