package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shiplane/shiplane/internal/domain"
	"github.com/shiplane/shiplane/internal/repository"
	"github.com/shiplane/shiplane/internal/service/catalog"
	"github.com/shiplane/shiplane/internal/service/configstore"
	"github.com/shiplane/shiplane/internal/service/deploy"
	"github.com/shiplane/shiplane/internal/service/diff"
	"github.com/shiplane/shiplane/internal/service/session"
	"github.com/shiplane/shiplane/internal/service/variables"
	"github.com/shiplane/shiplane/internal/service/version"
	"github.com/shiplane/shiplane/internal/ws"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux          *http.ServeMux
	logger       *slog.Logger
	sessions     session.Service
	catalog      catalog.Service
	configs      configstore.Service
	variables    variables.Service
	versions     version.Service
	diffs        diff.Service
	deploys      deploy.Service
	hub          *ws.Hub
	upgrader     websocket.Upgrader
	limiter      RateLimiter
	cookieName   string
	sessionTTL   time.Duration
	pollInterval time.Duration
	dbHealth     func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitSession   = 12
	rateLimitUserWrite = 60
	rateLimitUserRead  = 120
	rateLimitWebsocket = 30
	healthCheckTimeout = 2 * time.Second
)

// RouterDeps bundles the services the router dispatches to.
type RouterDeps struct {
	Sessions  session.Service
	Catalog   catalog.Service
	Configs   configstore.Service
	Variables variables.Service
	Versions  version.Service
	Diffs     diff.Service
	Deploys   deploy.Service
	Hub       *ws.Hub
	Limiter   RateLimiter
	DBHealth  func(context.Context) error

	// PollInterval is the cadence for deployment watchers spawned while a
	// websocket subscription is open. Zero means the deploy package default.
	PollInterval time.Duration
}

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, cookieName string, sessionTTL time.Duration, deps RouterDeps) *Router {
	r := &Router{
		mux:       http.NewServeMux(),
		logger:    logger,
		sessions:  deps.Sessions,
		catalog:   deps.Catalog,
		configs:   deps.Configs,
		variables: deps.Variables,
		versions:  deps.Versions,
		diffs:     deps.Diffs,
		deploys:   deps.Deploys,
		hub:       deps.Hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:      deps.Limiter,
		cookieName:   cookieName,
		sessionTTL:   sessionTTL,
		pollInterval: deps.PollInterval,
		dbHealth:     deps.DBHealth,
	}
	if r.cookieName == "" {
		r.cookieName = "shiplane_session"
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
	r.mux.HandleFunc("/auth/session", r.audit("/auth/session", r.withRateLimit("/auth/session", rateLimitSession, rateWindowDefault, rateLimitKeyIP, r.handleSession)))
	r.mux.HandleFunc("/projects", r.audit("/projects", r.handlerAuthRate("/projects", rateLimitUserWrite, rateWindowDefault, r.handleProjects)))
	r.mux.HandleFunc("/projects/", r.audit("/projects/", r.handlerAuthRate("/projects/", rateLimitUserRead, rateWindowDefault, r.handleProjectSubroutes)))
	r.mux.HandleFunc("/services/", r.audit("/services/", r.handlerAuthRate("/services/", rateLimitUserRead, rateWindowDefault, r.handleServiceSubroutes)))
	r.mux.HandleFunc("/variables", r.audit("/variables", r.handlerAuthRate("/variables", rateLimitUserWrite, rateWindowDefault, r.handleVariables)))
	r.mux.HandleFunc("/variables/", r.audit("/variables/", r.handlerAuthRate("/variables/", rateLimitUserWrite, rateWindowDefault, r.handleVariableByID)))
	r.mux.HandleFunc("/deployments/", r.audit("/deployments/", r.handlerAuthRate("/deployments/", rateLimitUserRead, rateWindowDefault, r.handleDeploymentByID)))
	r.mux.HandleFunc("/ws/deployments", r.audit("/ws/deployments", r.handlerAuthRate("/ws/deployments", rateLimitWebsocket, rateWindowRealtime, r.handleDeploymentsWS)))
}

func (r *Router) handleSession(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodPost:
		var payload struct {
			UserID        string `json:"userId"`
			OperatorToken string `json:"operatorToken"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		token, err := r.sessions.Issue(payload.UserID, payload.OperatorToken)
		if err != nil {
			if errors.Is(err, session.ErrInvalidCredentials) {
				writeError(w, http.StatusUnauthorized, "invalid credentials")
				return
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     r.cookieName,
			Value:    token,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			Expires:  time.Now().Add(r.sessionTTL),
		})
		writeJSON(w, http.StatusCreated, map[string]string{"status": "session created"})
	case http.MethodDelete:
		http.SetCookie(w, &http.Cookie{
			Name:     r.cookieName,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			MaxAge:   -1,
		})
		writeJSON(w, http.StatusOK, map[string]string{"status": "session cleared"})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleProjects(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload catalog.ProjectInput
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if info, ok := authInfoFromContext(req.Context()); ok && payload.OwnerID == "" {
		payload.OwnerID = info.UserID
	}
	project, err := r.catalog.CreateProject(req.Context(), payload)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (r *Router) handleProjectSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/projects/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 1 || parts[0] == "" {
		r.notFound(w)
		return
	}
	projectID := parts[0]
	switch {
	case len(parts) == 1:
		if req.Method != http.MethodGet {
			r.methodNotAllowed(w)
			return
		}
		project, err := r.catalog.GetProject(req.Context(), projectID)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, project)
	case len(parts) == 2 && parts[1] == "environments":
		r.handleProjectEnvironments(w, req, projectID)
	case len(parts) == 2 && parts[1] == "services":
		r.handleProjectServices(w, req, projectID)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleProjectEnvironments(w http.ResponseWriter, req *http.Request, projectID string) {
	switch req.Method {
	case http.MethodGet:
		envs, err := r.catalog.ListEnvironments(req.Context(), projectID)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, envs)
	case http.MethodPost:
		var payload catalog.EnvironmentInput
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		payload.ProjectID = projectID
		env, err := r.catalog.CreateEnvironment(req.Context(), payload)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, env)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleProjectServices(w http.ResponseWriter, req *http.Request, projectID string) {
	switch req.Method {
	case http.MethodGet:
		services, err := r.catalog.ListServices(req.Context(), projectID)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, services)
	case http.MethodPost:
		var payload catalog.ServiceInput
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		payload.ProjectID = projectID
		svc, err := r.catalog.CreateService(req.Context(), payload)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, svc)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleServiceSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/services/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 1 || parts[0] == "" {
		r.notFound(w)
		return
	}
	serviceID := parts[0]
	if len(parts) == 1 {
		r.handleServiceDetail(w, req, serviceID)
		return
	}
	if len(parts) != 2 {
		r.notFound(w)
		return
	}
	switch parts[1] {
	case "config":
		r.handleServiceConfig(w, req, serviceID)
	case "variables":
		r.handleServiceVariables(w, req, serviceID)
	case "versions":
		r.handleServiceVersions(w, req, serviceID)
	case "validate-version":
		r.handleValidateVersion(w, req, serviceID)
	case "deployments":
		r.handleServiceDeployments(w, req, serviceID)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleServiceDetail(w http.ResponseWriter, req *http.Request, serviceID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	svc, err := r.catalog.GetService(req.Context(), serviceID)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	entries, err := r.configs.Entries(req.Context(), serviceID)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	drifted, err := r.configs.IsDrifted(req.Context(), serviceID)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	config := make(map[string]*string, len(entries))
	for _, entry := range entries {
		config[entry.Key] = entry.Value
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service": svc,
		"config":  config,
		"drifted": drifted,
	})
}

func (r *Router) handleServiceConfig(w http.ResponseWriter, req *http.Request, serviceID string) {
	switch req.Method {
	case http.MethodGet:
		entries, err := r.configs.Entries(req.Context(), serviceID)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	case http.MethodPut, http.MethodPost:
		var payload struct {
			Key   string  `json:"key"`
			Value *string `json:"value"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(payload.Key) == "" {
			writeError(w, http.StatusBadRequest, "key is required")
			return
		}
		if err := r.configs.UpsertEntry(req.Context(), serviceID, payload.Key, payload.Value); err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "stored"})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleServiceVariables(w http.ResponseWriter, req *http.Request, serviceID string) {
	switch req.Method {
	case http.MethodGet:
		vars, err := r.variables.List(req.Context(), domain.ScopeService, serviceID)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, vars)
	case http.MethodPost:
		var payload variables.WriteInput
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		payload.Scope = domain.ScopeService
		payload.ResourceID = serviceID
		variable, err := r.variables.Create(req.Context(), payload)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, variable)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleVariables(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload variables.WriteInput
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	variable, err := r.variables.Create(req.Context(), payload)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, variable)
}

func (r *Router) handleVariableByID(w http.ResponseWriter, req *http.Request) {
	variableID := strings.TrimPrefix(req.URL.Path, "/variables/")
	if variableID == "" || strings.Contains(variableID, "/") {
		r.notFound(w)
		return
	}
	switch req.Method {
	case http.MethodPut:
		var payload struct {
			Value string `json:"value"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		variable, err := r.variables.Update(req.Context(), variableID, payload.Value)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, variable)
	case http.MethodDelete:
		if err := r.variables.Delete(req.Context(), variableID); err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleServiceVersions(w http.ResponseWriter, req *http.Request, serviceID string) {
	switch req.Method {
	case http.MethodGet:
		limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
		versions, err := r.versions.List(req.Context(), serviceID, limit)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, versions)
	case http.MethodPost:
		published, err := r.versions.Publish(req.Context(), serviceID)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, published)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleValidateVersion(w http.ResponseWriter, req *http.Request, serviceID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	result, err := r.diffs.Validate(req.Context(), serviceID)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (r *Router) handleServiceDeployments(w http.ResponseWriter, req *http.Request, serviceID string) {
	switch req.Method {
	case http.MethodGet:
		limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
		deployments, err := r.deploys.ListByService(req.Context(), serviceID, limit)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, deployments)
	case http.MethodPost:
		var payload struct {
			VersionID           string                      `json:"versionId"`
			EnvironmentID       string                      `json:"environmentId"`
			DownstreamOverrides []domain.DownstreamOverride `json:"downstreamOverrides"`
			Proceed             bool                        `json:"proceed"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		deployment, err := r.deploys.Create(req.Context(), deploy.CreateInput{
			ServiceID:           serviceID,
			VersionID:           payload.VersionID,
			EnvironmentID:       payload.EnvironmentID,
			DownstreamOverrides: payload.DownstreamOverrides,
			Proceed:             payload.Proceed,
		})
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, deployment)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleDeploymentByID(w http.ResponseWriter, req *http.Request) {
	deploymentID := strings.TrimPrefix(req.URL.Path, "/deployments/")
	if deploymentID == "" || strings.Contains(deploymentID, "/") {
		r.notFound(w)
		return
	}
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	report, err := r.deploys.PollStatus(req.Context(), deploymentID)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (r *Router) handleDeploymentsWS(w http.ResponseWriter, req *http.Request) {
	serviceID := req.URL.Query().Get("service_id")
	if serviceID == "" {
		writeError(w, http.StatusBadRequest, "service_id query parameter required")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(serviceID, client)

	// The subscription owns the pollers: one watcher per open deployment,
	// all cancelled the moment the socket closes.
	watchCtx, cancel := context.WithCancel(context.Background())
	go r.watchOpenDeployments(watchCtx, serviceID)
	go func() {
		defer func() {
			cancel()
			r.hub.Unregister(serviceID, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// watchOpenDeployments drives the live stream for one service off the
// list-level poller, so deployments created after the socket opened get a
// detail watcher too. The list poller stops once every deployment is
// terminal; it is restarted after one interval while the socket stays open,
// so a later deployment is still picked up.
func (r *Router) watchOpenDeployments(ctx context.Context, serviceID string) {
	interval := r.pollInterval
	if interval <= 0 {
		interval = deploy.DefaultPollInterval
	}
	watched := make(map[string]struct{})
	spawn := func(deployments []domain.Deployment) {
		for _, d := range deployments {
			if d.Status.Terminal() {
				continue
			}
			if _, ok := watched[d.ID]; ok {
				continue
			}
			watched[d.ID] = struct{}{}
			go func(deploymentID string) {
				_ = r.deploys.WatchDeployment(ctx, deploymentID, interval, nil)
			}(d.ID)
		}
	}
	for {
		_ = r.deploys.WatchList(ctx, serviceID, interval, spawn)
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
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

// writeServiceError maps service-layer errors onto HTTP status codes.
func (r *Router) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, repository.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, deploy.ErrDuplicateTarget):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, version.ErrNotDrifted):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, version.ErrNoPorts):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
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
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID)
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

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
