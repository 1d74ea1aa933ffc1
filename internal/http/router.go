package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mybookkeepers/portal/internal/domain"
	"github.com/mybookkeepers/portal/internal/notify"
	"github.com/mybookkeepers/portal/internal/repository"
	"github.com/mybookkeepers/portal/internal/service/account"
	"github.com/mybookkeepers/portal/internal/service/auth"
	"github.com/mybookkeepers/portal/internal/service/bundle"
	"github.com/mybookkeepers/portal/internal/service/lifecycle"
	"github.com/mybookkeepers/portal/internal/service/statement"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	auth       auth.Service
	account    account.Service
	lifecycle  lifecycle.Service
	statement  statement.Service
	bundle     bundle.Service
	dispatcher *notify.Dispatcher
	limiter    RateLimiter
	dbHealth   func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateLimitRead      = 120
	rateLimitWrite     = 60
	rateLimitUpload    = 30
	rateLimitDownload  = 30
	healthCheckTimeout = 2 * time.Second

	maxUploadMemory = 12 << 20
	maxJSONBody     = 1 << 20
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, authSvc auth.Service, accountSvc account.Service, lifecycleSvc lifecycle.Service, statementSvc statement.Service, bundleSvc bundle.Service, dispatcher *notify.Dispatcher, limiter RateLimiter, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:        http.NewServeMux(),
		logger:     logger,
		auth:       authSvc,
		account:    accountSvc,
		lifecycle:  lifecycleSvc,
		statement:  statementSvc,
		bundle:     bundleSvc,
		dispatcher: dispatcher,
		limiter:    limiter,
		dbHealth:   dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/user", r.audit("/user", r.handlerAuthRate("/user", rateLimitWrite, rateWindowDefault, r.handleUser)))
	r.mux.HandleFunc("/institutions", r.audit("/institutions", r.handlerClientRate("/institutions", rateLimitRead, rateWindowDefault, r.handleInstitutions)))
	r.mux.HandleFunc("/months", r.audit("/months", r.handlerClientRate("/months", rateLimitWrite, rateWindowDefault, r.handleMonths)))
	r.mux.HandleFunc("/months/", r.audit("/months/", r.requireClient(r.handleMonthSubroutes)))
	r.mux.HandleFunc("/bookkeeper/clients", r.audit("/bookkeeper/clients", r.handlerBookkeeperRate("/bookkeeper/clients", rateLimitRead, rateWindowDefault, r.handleClients)))
	r.mux.HandleFunc("/bookkeeper/clients/", r.audit("/bookkeeper/clients/", r.requireBookkeeper(r.handleClientSubroutes)))
}

func (r *Router) handleUser(w http.ResponseWriter, req *http.Request) {
	caller, ok := callerFromContext(req.Context())
	if !ok {
		r.authContextMissing(w, req)
		return
	}
	switch req.Method {
	case http.MethodGet:
		user, err := r.account.Get(req.Context(), caller)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"user":               user,
			"onboardingComplete": user.OnboardingComplete(),
		})
	case http.MethodPut:
		var payload account.UpdateProfileInput
		if err := json.NewDecoder(io.LimitReader(req.Body, maxJSONBody)).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		user, err := r.account.UpdateProfile(req.Context(), caller, payload)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleInstitutions(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	caller, ok := callerFromContext(req.Context())
	if !ok {
		r.authContextMissing(w, req)
		return
	}
	institutions, err := r.account.Institutions(req.Context(), caller)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"institutions": institutions})
}

func (r *Router) handleMonths(w http.ResponseWriter, req *http.Request) {
	caller, ok := callerFromContext(req.Context())
	if !ok {
		r.authContextMissing(w, req)
		return
	}
	switch req.Method {
	case http.MethodGet:
		summaries, err := r.lifecycle.List(req.Context(), caller)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, summaries)
	case http.MethodPost:
		var payload struct {
			Month int `json:"month"`
			Year  int `json:"year"`
		}
		if err := json.NewDecoder(io.LimitReader(req.Body, maxJSONBody)).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		pkg, err := r.lifecycle.CreateMonth(req.Context(), caller, payload.Month, payload.Year)
		if errors.Is(err, repository.ErrConflict) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":   "month already exists",
				"package": pkg,
			})
			return
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, pkg)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleMonthSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/months/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 1 || parts[0] == "" {
		r.notFound(w)
		return
	}
	packageID := parts[0]
	caller, ok := callerFromContext(req.Context())
	if !ok {
		r.authContextMissing(w, req)
		return
	}
	switch {
	case len(parts) == 1:
		r.withRateLimit("/months/{id}", rateLimitRead, rateWindowDefault, r.rateLimitKeyUser, func(w http.ResponseWriter, req *http.Request) {
			r.handleMonthDetail(w, req, caller, packageID)
		})(w, req)
	case len(parts) == 2 && parts[1] == "submit":
		r.withRateLimit("/months/{id}/submit", rateLimitWrite, rateWindowDefault, r.rateLimitKeyUser, func(w http.ResponseWriter, req *http.Request) {
			r.handleSubmit(w, req, caller, packageID)
		})(w, req)
	case len(parts) == 2 && parts[1] == "statements":
		r.withRateLimit("/months/{id}/statements", rateLimitUpload, rateWindowDefault, r.rateLimitKeyUser, func(w http.ResponseWriter, req *http.Request) {
			r.handleStatementUpload(w, req, caller, packageID)
		})(w, req)
	case len(parts) == 3 && parts[1] == "statements" && parts[2] != "":
		statementID := parts[2]
		r.withRateLimit("/months/{id}/statements/{sid}", rateLimitWrite, rateWindowDefault, r.rateLimitKeyUser, func(w http.ResponseWriter, req *http.Request) {
			r.handleStatementDelete(w, req, caller, packageID, statementID)
		})(w, req)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleMonthDetail(w http.ResponseWriter, req *http.Request, caller auth.Caller, packageID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	detail, err := r.lifecycle.Get(req.Context(), caller, packageID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (r *Router) handleSubmit(w http.ResponseWriter, req *http.Request, caller auth.Caller, packageID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	pkg, pending, err := r.lifecycle.Submit(req.Context(), caller, packageID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	r.dispatch(req.Context(), pending)
	writeJSON(w, http.StatusOK, pkg)
}

func (r *Router) handleStatementUpload(w http.ResponseWriter, req *http.Request, caller auth.Caller, packageID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	if err := req.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := req.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()
	content, err := io.ReadAll(io.LimitReader(file, statement.MaxFileSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read file")
		return
	}

	input := statement.UploadInput{
		InstitutionName: req.FormValue("institutionName"),
		AccountLast4:    req.FormValue("accountLast4"),
		InstitutionType: req.FormValue("institutionType"),
		FileName:        header.Filename,
		ContentType:     header.Header.Get("Content-Type"),
		Content:         content,
	}
	stmt, err := r.statement.Upload(req.Context(), caller, packageID, input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stmt)
}

func (r *Router) handleStatementDelete(w http.ResponseWriter, req *http.Request, caller auth.Caller, packageID, statementID string) {
	if req.Method != http.MethodDelete {
		r.methodNotAllowed(w)
		return
	}
	if err := r.statement.Remove(req.Context(), caller, packageID, statementID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handleClients(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	query := req.URL.Query()
	clients, err := r.account.ListClients(req.Context(), query.Get("search"), query.Get("filter"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clients)
}

func (r *Router) handleClientSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/bookkeeper/clients/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] != "months" {
		r.notFound(w)
		return
	}
	clientID := parts[0]
	switch {
	case len(parts) == 2:
		r.withRateLimit("/bookkeeper/clients/{cid}/months", rateLimitRead, rateWindowDefault, r.rateLimitKeyUser, func(w http.ResponseWriter, req *http.Request) {
			r.handleClientMonths(w, req, clientID)
		})(w, req)
	case len(parts) == 3 && parts[2] != "":
		packageID := parts[2]
		r.withRateLimit("/bookkeeper/clients/{cid}/months/{mid}", rateLimitRead, rateWindowDefault, r.rateLimitKeyUser, func(w http.ResponseWriter, req *http.Request) {
			r.handleClientMonthDetail(w, req, clientID, packageID)
		})(w, req)
	case len(parts) == 4 && parts[3] == "status":
		packageID := parts[2]
		r.withRateLimit("/bookkeeper/clients/{cid}/months/{mid}/status", rateLimitWrite, rateWindowDefault, r.rateLimitKeyUser, func(w http.ResponseWriter, req *http.Request) {
			r.handleStatusChange(w, req, clientID, packageID)
		})(w, req)
	case len(parts) == 4 && parts[3] == "download":
		packageID := parts[2]
		r.withRateLimit("/bookkeeper/clients/{cid}/months/{mid}/download", rateLimitDownload, rateWindowDefault, r.rateLimitKeyUser, func(w http.ResponseWriter, req *http.Request) {
			r.handleDownload(w, req, clientID, packageID)
		})(w, req)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleClientMonths(w http.ResponseWriter, req *http.Request, clientID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	summaries, err := r.lifecycle.ListForClient(req.Context(), clientID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (r *Router) handleClientMonthDetail(w http.ResponseWriter, req *http.Request, clientID, packageID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	detail, err := r.lifecycle.GetForClient(req.Context(), clientID, packageID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (r *Router) handleStatusChange(w http.ResponseWriter, req *http.Request, clientID, packageID string) {
	if req.Method != http.MethodPut {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(io.LimitReader(req.Body, maxJSONBody)).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	pkg, pending, err := r.lifecycle.SetStatus(req.Context(), clientID, packageID, domain.PackageStatus(payload.Status))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	r.dispatch(req.Context(), pending)
	writeJSON(w, http.StatusOK, pkg)
}

func (r *Router) handleDownload(w http.ResponseWriter, req *http.Request, clientID, packageID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	archive, err := r.bundle.Bundle(req.Context(), clientID, packageID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", archive.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(archive.Content)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive.Content)
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

// dispatch sends pending lifecycle notifications after the state change
// has been answered. The request context is detached so the send outlives
// the response.
func (r *Router) dispatch(ctx context.Context, pending []notify.Notification) {
	if len(pending) == 0 || r.dispatcher == nil {
		return
	}
	go r.dispatcher.Dispatch(context.WithoutCancel(ctx), pending)
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if caller, ok := callerFromContext(ctx); ok {
			actor = string(caller.Role)
			fields = append(fields, "user_id", caller.ID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (sr *statusRecorder) Push(target string, opts *http.PushOptions) error {
	if p, ok := sr.ResponseWriter.(http.Pusher); ok {
		return p.Push(target, opts)
	}
	return http.ErrNotSupported
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) authContextMissing(w http.ResponseWriter, req *http.Request) {
	r.logger.Error("auth context missing", "path", req.URL.Path)
	writeError(w, http.StatusInternalServerError, "authorization context missing")
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
