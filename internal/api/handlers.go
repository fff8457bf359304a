// Package api exposes the HTTP surface: login, provider OAuth, webhooks,
// milestones and account lifecycle.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"example.com/commitcollect/internal/account"
	"example.com/commitcollect/internal/audit"
	"example.com/commitcollect/internal/auth"
	"example.com/commitcollect/internal/besteffort"
	"example.com/commitcollect/internal/connection"
	"example.com/commitcollect/internal/domain"
	"example.com/commitcollect/internal/milestone"
	"example.com/commitcollect/internal/session"
	"example.com/commitcollect/internal/strava"
)

// IdentityExchanger trades login authorization codes for identities.
type IdentityExchanger interface {
	ExchangeCode(ctx context.Context, code string) (auth.Identity, error)
}

// Provider is the outbound Strava surface the handlers need.
type Provider interface {
	ExchangeCode(ctx context.Context, code string) (strava.ExchangeResult, error)
	Deauthorize(ctx context.Context, accessToken string) error
}

// EventPublisher forwards normalized webhook events to the worker.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.ProviderEvent) error
}

// Config carries the endpoint and cookie settings the handlers render into
// redirects and Set-Cookie headers.
type Config struct {
	FrontendBaseURL    string
	CookieDomain       string
	CookieSecure       bool
	SessionTTL         time.Duration
	LoginAuthorizeURL  string
	LoginClientID      string
	LoginRedirectURI   string
	StravaClientID     string
	StravaRedirectURI  string
	StravaOAuthBaseURL string
	WebhookVerifyToken string
}

// Handler coordinates HTTP requests with the domain services.
type Handler struct {
	cfg        Config
	sessions   *session.Manager
	identity   IdentityExchanger
	state      *auth.StateSigner
	registry   *connection.Registry
	profiles   *account.Profiles
	milestones *milestone.Service
	engine     *milestone.Engine
	deleter    *account.Deleter
	provider   Provider
	publisher  EventPublisher
	audit      *audit.Sink
	logger     *log.Logger
}

// Deps bundles the handler's collaborators.
type Deps struct {
	Sessions   *session.Manager
	Identity   IdentityExchanger
	State      *auth.StateSigner
	Registry   *connection.Registry
	Profiles   *account.Profiles
	Milestones *milestone.Service
	Engine     *milestone.Engine
	Deleter    *account.Deleter
	Provider   Provider
	Publisher  EventPublisher
	Audit      *audit.Sink
	Logger     *log.Logger
}

// NewHandler builds a Handler.
func NewHandler(cfg Config, deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[api] ", log.LstdFlags)
	}
	return &Handler{
		cfg:        cfg,
		sessions:   deps.Sessions,
		identity:   deps.Identity,
		state:      deps.State,
		registry:   deps.Registry,
		profiles:   deps.Profiles,
		milestones: deps.Milestones,
		engine:     deps.Engine,
		deleter:    deps.Deleter,
		provider:   deps.Provider,
		publisher:  deps.Publisher,
		audit:      deps.Audit,
		logger:     logger,
	}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", healthz)

	mux.HandleFunc("/auth/login", h.login)
	mux.HandleFunc("/auth/callback", h.loginCallback)
	mux.HandleFunc("/auth/logout", h.logout)
	mux.HandleFunc("/viewer", h.viewer)

	mux.HandleFunc("/oauth/strava/start", h.stravaStart)
	mux.HandleFunc("/oauth/strava/callback", h.stravaCallback)
	mux.HandleFunc("/strava/status", h.stravaStatus)
	mux.HandleFunc("/strava/connection", h.stravaConnection)

	mux.HandleFunc("/webhooks/strava", h.webhooks)

	mux.HandleFunc("/milestones", h.milestonesRoot)
	mux.HandleFunc("/milestones/", h.milestoneByID)

	mux.HandleFunc("/account", h.accountRoot)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// login redirects to the hosted identity provider's authorize endpoint.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	q := url.Values{
		"response_type": {"code"},
		"client_id":     {h.cfg.LoginClientID},
		"redirect_uri":  {h.cfg.LoginRedirectURI},
		"scope":         {"openid email"},
	}
	http.Redirect(w, r, h.cfg.LoginAuthorizeURL+"?"+q.Encode(), http.StatusFound)
}

// loginCallback exchanges the code, ensures the profile anchor exists, mints
// a session and hands the browser back to the frontend.
func (h *Handler) loginCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing code")
		return
	}

	identity, err := h.identity.ExchangeCode(r.Context(), code)
	if err != nil {
		h.logger.Printf("login exchange failed: %v", err)
		writeError(w, http.StatusUnauthorized, "unauthorized", "code exchange failed")
		return
	}

	if _, err := h.profiles.Ensure(r.Context(), identity.UserID, identity.Email); err != nil {
		h.logger.Printf("ensure profile: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "profile creation failed")
		return
	}

	sess, err := h.sessions.Create(r.Context(), identity.UserID, identity.Email, identity.RefreshToken)
	if err != nil {
		h.logger.Printf("create session: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "session creation failed")
		return
	}

	h.setSessionCookie(w, sess.SessionID, h.cfg.SessionTTL)
	h.audit.Record(r.Context(), identity.UserID, audit.ActionLogin, "hosted login")
	http.Redirect(w, r, h.cfg.FrontendBaseURL, http.StatusFound)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	sess := h.resolveSession(r)
	if sess != nil {
		if err := h.sessions.Revoke(r.Context(), sess.SessionID); err != nil {
			h.logger.Printf("revoke session: %v", err)
		}
		h.audit.Record(r.Context(), sess.UserID, audit.ActionLogout, "")
	}
	h.setSessionCookie(w, "", -time.Hour)
	w.WriteHeader(http.StatusNoContent)
}

// viewer returns the authenticated user's profile.
func (h *Handler) viewer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	sess := h.requireSession(w, r)
	if sess == nil {
		return
	}

	profile, err := h.profiles.Get(r.Context(), sess.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "profile not found")
			return
		}
		h.logger.Printf("load profile: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "profile lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, viewerResponse{
		UserID:    profile.UserID,
		Email:     profile.Email,
		Plan:      profile.Plan,
		Role:      profile.Role,
		CreatedAt: profile.CreatedAt,
	})
}

// stravaStart issues a signed state and redirects to the provider's
// authorize page.
func (h *Handler) stravaStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	sess := h.requireSession(w, r)
	if sess == nil {
		return
	}

	q := url.Values{
		"client_id":       {h.cfg.StravaClientID},
		"redirect_uri":    {h.cfg.StravaRedirectURI},
		"response_type":   {"code"},
		"approval_prompt": {"auto"},
		"scope":           {"read,activity:read_all"},
		"state":           {h.state.Issue(sess.UserID)},
	}
	http.Redirect(w, r, strings.TrimRight(h.cfg.StravaOAuthBaseURL, "/")+"/authorize?"+q.Encode(), http.StatusFound)
}

// stravaCallback validates the state, exchanges the code and claims the
// athlete for the state's user.
func (h *Handler) stravaCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	userID, err := h.state.Validate(r.URL.Query().Get("state"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_state", "state validation failed")
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing code")
		return
	}

	result, err := h.provider.ExchangeCode(r.Context(), code)
	if err != nil {
		h.logger.Printf("strava exchange failed: %v", err)
		writeError(w, http.StatusBadGateway, "provider_error", "code exchange failed")
		return
	}

	tokens := domain.Connection{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresAt:    result.ExpiresAt,
		Scope:        "read,activity:read_all",
	}
	if _, err := h.registry.Claim(r.Context(), userID, result.Athlete.ID, tokens); err != nil {
		if errors.Is(err, domain.ErrAlreadyConnected) {
			writeError(w, http.StatusConflict, "already_connected", "athlete is connected to another account")
			return
		}
		h.logger.Printf("claim athlete: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "connection failed")
		return
	}

	h.audit.Record(r.Context(), userID, audit.ActionConnectStrava, "")
	http.Redirect(w, r, h.cfg.FrontendBaseURL+"/settings/connections", http.StatusFound)
}

func (h *Handler) stravaStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	sess := h.requireSession(w, r)
	if sess == nil {
		return
	}

	conn, err := h.registry.Get(r.Context(), sess.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNoConnection) {
			writeJSON(w, http.StatusOK, connectionStatus{Connected: false})
			return
		}
		h.logger.Printf("load connection: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "status lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, connectionStatus{
		Connected: true,
		AthleteID: conn.AthleteID,
		Scope:     conn.Scope,
		ExpiresAt: conn.ExpiresAt,
	})
}

// stravaConnection handles DELETE: release ownership, then best-effort
// deauthorize at the provider.
func (h *Handler) stravaConnection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	sess := h.requireSession(w, r)
	if sess == nil {
		return
	}

	conn, err := h.registry.Get(r.Context(), sess.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNoConnection) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.logger.Printf("load connection: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "disconnect failed")
		return
	}

	if err := h.registry.Release(r.Context(), sess.UserID, conn.AthleteID); err != nil {
		h.logger.Printf("release connection: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "disconnect failed")
		return
	}

	besteffort.Run(r.Context(), h.logger, "strava deauthorize", func(ctx context.Context) error {
		return h.provider.Deauthorize(ctx, conn.AccessToken)
	})
	h.audit.Record(r.Context(), sess.UserID, audit.ActionDisconnectStrava, "")
	w.WriteHeader(http.StatusNoContent)
}

// webhooks serves the provider's subscription validation handshake on GET
// and accepts event deliveries on POST. Deliveries are acknowledged as soon
// as the event is on the topic; processing happens in the worker.
func (h *Handler) webhooks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.webhookVerify(w, r)
	case http.MethodPost:
		h.webhookReceive(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) webhookVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tokenOK := subtle.ConstantTimeCompare([]byte(q.Get("hub.verify_token")), []byte(h.cfg.WebhookVerifyToken)) == 1
	if q.Get("hub.mode") != "subscribe" || !tokenOK {
		writeError(w, http.StatusForbidden, "forbidden", "verification failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"hub.challenge": q.Get("hub.challenge")})
}

func (h *Handler) webhookReceive(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ObjectType string `json:"object_type"`
		ObjectID   int64  `json:"object_id"`
		AspectType string `json:"aspect_type"`
		OwnerID    int64  `json:"owner_id"`
		EventTime  int64  `json:"event_time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	event := domain.ProviderEvent{
		Source:     domain.SourceStrava,
		ObjectType: strings.ToLower(payload.ObjectType),
		ObjectID:   payload.ObjectID,
		AspectType: strings.ToLower(payload.AspectType),
		OwnerID:    payload.OwnerID,
		EventTime:  payload.EventTime,
	}
	if err := h.publisher.Publish(r.Context(), event); err != nil {
		h.logger.Printf("publish webhook event: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "event not accepted")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) milestonesRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	sess := h.requireSession(w, r)
	if sess == nil {
		return
	}

	var req createMilestoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	created, err := h.milestones.Create(r.Context(), sess.UserID, milestone.CreateInput{
		ModelID:       req.ModelID,
		Sport:         req.Sport,
		TargetType:    req.TargetType,
		TotalTarget:   req.TotalTarget,
		Period:        req.Period,
		PeriodStartAt: req.PeriodStartAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, milestone.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		case errors.Is(err, domain.ErrModelNotFound):
			writeError(w, http.StatusNotFound, "model_not_found", "milestone model not found")
		case errors.Is(err, domain.ErrModelNotActive):
			writeError(w, http.StatusConflict, "model_not_active", "milestone model is not active")
		default:
			h.logger.Printf("create milestone: %v", err)
			writeError(w, http.StatusInternalServerError, "server_error", "milestone creation failed")
		}
		return
	}

	h.audit.Record(r.Context(), sess.UserID, audit.ActionMilestoneCreate, created.MilestoneID)
	writeJSON(w, http.StatusCreated, toMilestoneView(milestone.Derive(created, nil)))
}

func (h *Handler) milestoneByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/milestones/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing milestone id")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		h.getMilestone(w, r, id)
	case action == "recompute" && r.Method == http.MethodPost:
		h.recomputeMilestone(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) getMilestone(w http.ResponseWriter, r *http.Request, id string) {
	sess := h.requireSession(w, r)
	if sess == nil {
		return
	}

	view, err := h.milestones.Get(r.Context(), sess.UserID, id)
	if err != nil {
		if errors.Is(err, domain.ErrMilestoneNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "milestone not found")
			return
		}
		h.logger.Printf("get milestone: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "milestone lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, toMilestoneView(view))
}

func (h *Handler) recomputeMilestone(w http.ResponseWriter, r *http.Request, id string) {
	sess := h.requireSession(w, r)
	if sess == nil {
		return
	}

	result, err := h.engine.Recompute(r.Context(), sess.UserID, id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrMilestoneNotFound):
			writeError(w, http.StatusNotFound, "not_found", "milestone not found")
		case errors.Is(err, domain.ErrVersionConflict):
			writeError(w, http.StatusConflict, "version_conflict", "concurrent update, retry")
		case errors.Is(err, domain.ErrRecomputeTooLarge):
			writeError(w, http.StatusConflict, "too_many_workouts", "workout history too large for synchronous recompute")
		case errors.Is(err, domain.ErrModelPartMissing):
			writeError(w, http.StatusConflict, "model_part_missing", "model part metadata missing")
		default:
			h.logger.Printf("recompute milestone: %v", err)
			writeError(w, http.StatusInternalServerError, "server_error", "recompute failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, recomputeResponse{
		ProgressValue:     result.ProgressValue,
		PartsAwardedCount: result.PartsAwardedCount,
		NewAwards:         result.NewAwards,
		Status:            result.Status,
		Version:           result.Version,
	})
}

// accountRoot handles DELETE: disconnect the provider, wipe the partition,
// revoke the session.
func (h *Handler) accountRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	sess := h.requireSession(w, r)
	if sess == nil {
		return
	}

	if conn, err := h.registry.Get(r.Context(), sess.UserID); err == nil {
		if err := h.registry.Release(r.Context(), sess.UserID, conn.AthleteID); err != nil {
			h.logger.Printf("release connection during account delete: %v", err)
			writeError(w, http.StatusInternalServerError, "server_error", "account deletion failed")
			return
		}
		besteffort.Run(r.Context(), h.logger, "strava deauthorize", func(ctx context.Context) error {
			return h.provider.Deauthorize(ctx, conn.AccessToken)
		})
	} else if !errors.Is(err, domain.ErrNoConnection) {
		h.logger.Printf("load connection during account delete: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "account deletion failed")
		return
	}

	summary, err := h.deleter.DeleteAllForOwner(r.Context(), sess.UserID)
	if err != nil {
		h.logger.Printf("account delete: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "account deletion failed")
		return
	}

	if err := h.sessions.Revoke(r.Context(), sess.SessionID); err != nil {
		h.logger.Printf("revoke session after delete: %v", err)
	}
	h.setSessionCookie(w, "", -time.Hour)
	h.audit.Record(r.Context(), sess.UserID, audit.ActionAccountDelete, "")

	if summary.PartialFailure() {
		writeJSON(w, http.StatusInternalServerError, deleteResponse{
			Deleted:     summary.Deleted,
			Unprocessed: len(summary.Unprocessed),
			Complete:    false,
		})
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{Deleted: summary.Deleted, Complete: true})
}

// resolveSession returns the live session for the request cookie, or nil.
func (h *Handler) resolveSession(r *http.Request) *domain.Session {
	cookie, err := r.Cookie(session.CookieName)
	if err != nil {
		return nil
	}
	sess, err := h.sessions.Resolve(r.Context(), cookie.Value)
	if err != nil {
		h.logger.Printf("resolve session: %v", err)
		return nil
	}
	return sess
}

// requireSession resolves the session or writes a 401 and returns nil.
func (h *Handler) requireSession(w http.ResponseWriter, r *http.Request) *domain.Session {
	sess := h.resolveSession(r)
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "login required")
		return nil
	}
	return sess
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.cfg.CookieDomain,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
