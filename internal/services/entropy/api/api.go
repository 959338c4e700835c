// Package api exposes the entropy service over HTTP. All payloads are
// JSON; errors carry a machine-readable code and a mapped status.
package api

import (
	"context"
	"encoding/hex"
	"log"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/goldenseed/entropy/internal/services/entropy/app"
	"github.com/goldenseed/entropy/internal/services/entropy/streams"
)

const maxBodyBytes = 1 << 16

var tracer = otel.Tracer("entropy/api")

// Handler serves the entropy HTTP API.
type Handler struct {
	app *app.App
}

// New builds the HTTP handler with all routes registered.
func New(application *app.App) http.Handler {
	h := &Handler{app: application}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/health", h.handleHealth)
	mux.HandleFunc("POST /api/v1/auth/register", h.handleRegister)
	mux.HandleFunc("POST /api/v1/auth/login", h.handleLogin)

	mux.Handle("POST /api/v1/auth/api-keys", h.withToken(h.handleCreateAPIKey))
	mux.Handle("GET /api/v1/auth/api-keys", h.withToken(h.handleListAPIKeys))
	mux.Handle("DELETE /api/v1/auth/api-keys/{id}", h.withToken(h.handleRevokeAPIKey))
	mux.Handle("GET /api/v1/account", h.withToken(h.handleAccount))
	mux.Handle("GET /api/v1/usage", h.withToken(h.handleUsage))

	mux.Handle("POST /api/v1/random/int", h.withPrincipal(h.handleRandomInt))
	mux.Handle("POST /api/v1/random/bytes", h.withPrincipal(h.handleRandomBytes))
	mux.Handle("POST /api/v1/random/float", h.withPrincipal(h.handleRandomFloat))

	mux.Handle("POST /api/v1/streams", h.withPrincipal(h.handleCreateStream))
	mux.Handle("GET /api/v1/streams", h.withPrincipal(h.handleListStreams))
	mux.Handle("DELETE /api/v1/streams/{id}", h.withPrincipal(h.handleRemoveStream))
	mux.Handle("POST /api/v1/streams/{id}/int", h.withPrincipal(h.handleStreamInt))
	mux.Handle("POST /api/v1/streams/{id}/bytes", h.withPrincipal(h.handleStreamBytes))
	mux.Handle("POST /api/v1/streams/{id}/float", h.withPrincipal(h.handleStreamFloat))

	return traced(mux)
}

// traced opens a span per request and records the route and status.
func traced(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path)
		defer span.End()

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r.WithContext(ctx))

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", r.URL.Path),
			attribute.Int("http.status_code", recorder.status),
		)
		if recorder.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(recorder.status))
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

type principalKey struct{}

func principalFrom(ctx context.Context) app.Principal {
	p, _ := ctx.Value(principalKey{}).(app.Principal)
	return p
}

// withToken authenticates the request with a Bearer session token.
func (h *Handler) withToken(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := h.app.ResolveToken(r.Context(), bearerToken(r))
		if err != nil {
			writeError(w, err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, principal)))
	})
}

// withPrincipal authenticates with an API key when one is presented,
// otherwise with a Bearer session token.
func (h *Handler) withPrincipal(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			principal app.Principal
			err       error
		)
		if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
			principal, err = h.app.ResolveAPIKey(r.Context(), apiKey)
		} else {
			principal, err = h.app.ResolveToken(r.Context(), bearerToken(r))
		}
		if err != nil {
			writeError(w, err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, principal)))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type sessionResponse struct {
	AccountID string    `json:"account_id"`
	Email     string    `json:"email"`
	Tier      string    `json:"tier"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func sessionPayload(session app.Session) sessionResponse {
	return sessionResponse{
		AccountID: session.Account.ID,
		Email:     session.Account.Email,
		Tier:      string(session.Account.Tier),
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
	}
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	session, err := h.app.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionPayload(session))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	session, err := h.app.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

type createKeyRequest struct {
	Name string `json:"name"`
}

type apiKeyResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	KeyPrefix  string     `json:"key_prefix"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	Active     bool       `json:"active"`
	APIKey     string     `json:"api_key,omitempty"`
}

func (h *Handler) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	minted, err := h.app.CreateAPIKey(r.Context(), principalFrom(r.Context()).Account.ID, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, apiKeyResponse{
		ID:        minted.Key.ID,
		Name:      minted.Key.Name,
		KeyPrefix: minted.Key.KeyPrefix,
		CreatedAt: minted.Key.CreatedAt,
		Active:    minted.Key.Active,
		APIKey:    minted.Plaintext,
	})
}

func (h *Handler) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.app.ListAPIKeys(r.Context(), principalFrom(r.Context()).Account.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	payload := make([]apiKeyResponse, 0, len(keys))
	for _, key := range keys {
		payload = append(payload, apiKeyResponse{
			ID:         key.ID,
			Name:       key.Name,
			KeyPrefix:  key.KeyPrefix,
			CreatedAt:  key.CreatedAt,
			LastUsedAt: key.LastUsedAt,
			Active:     key.Active,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"api_keys": payload})
}

func (h *Handler) handleRevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())
	if err := h.app.RevokeAPIKey(r.Context(), principal.Account.ID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type accountResponse struct {
	AccountID string    `json:"account_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Tier      string    `json:"tier"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handler) handleAccount(w http.ResponseWriter, r *http.Request) {
	account := principalFrom(r.Context()).Account
	writeJSON(w, http.StatusOK, accountResponse{
		AccountID: account.ID,
		Email:     account.Email,
		Name:      account.Name,
		Tier:      string(account.Tier),
		CreatedAt: account.CreatedAt,
	})
}

type usageResponse struct {
	Tier         string    `json:"tier"`
	PeriodStart  time.Time `json:"period_start"`
	Requests     int64     `json:"requests"`
	OutputBytes  int64     `json:"output_bytes"`
	RequestLimit int64     `json:"request_limit"`
	ByteLimit    int64     `json:"byte_limit"`
}

func (h *Handler) handleUsage(w http.ResponseWriter, r *http.Request) {
	report, err := h.app.Usage(r.Context(), principalFrom(r.Context()).Account.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, usageResponse{
		Tier:         string(report.Tier),
		PeriodStart:  report.PeriodStart,
		Requests:     report.Summary.Requests,
		OutputBytes:  report.Summary.OutputBytes,
		RequestLimit: report.Limits.MonthlyRequests,
		ByteLimit:    report.Limits.MonthlyBytes,
	})
}

type intRequest struct {
	Min   int64 `json:"min"`
	Max   int64 `json:"max"`
	Count int   `json:"count"`
}

func (r intRequest) count() int {
	if r.Count == 0 {
		return 1
	}
	return r.Count
}

type bytesRequest struct {
	Length int `json:"length"`
}

type floatRequest struct {
	Count int `json:"count"`
}

func (r floatRequest) count() int {
	if r.Count == 0 {
		return 1
	}
	return r.Count
}

func (h *Handler) handleRandomInt(w http.ResponseWriter, r *http.Request) {
	var req intRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	values, err := h.app.RandomInt(r.Context(), principalFrom(r.Context()), req.Min, req.Max, req.count())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"values": values})
}

func (h *Handler) handleRandomBytes(w http.ResponseWriter, r *http.Request) {
	var req bytesRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	data, err := h.app.RandomBytes(r.Context(), principalFrom(r.Context()), req.Length)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":   hex.EncodeToString(data),
		"length": len(data),
	})
}

func (h *Handler) handleRandomFloat(w http.ResponseWriter, r *http.Request) {
	var req floatRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	values, err := h.app.RandomFloat(r.Context(), principalFrom(r.Context()), req.count())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"values": values})
}

type createStreamRequest struct {
	Seed    string `json:"seed"`
	SeedInt *int64 `json:"seed_int"`
}

type streamResponse struct {
	StreamID  string    `json:"stream_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handler) handleCreateStream(w http.ResponseWriter, r *http.Request) {
	var req createStreamRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	principal := principalFrom(r.Context())
	var (
		stream *streams.Stream
		err    error
	)
	if req.SeedInt != nil {
		stream, err = h.app.CreateStreamInt(r.Context(), principal, *req.SeedInt)
	} else {
		stream, err = h.app.CreateStream(r.Context(), principal, []byte(req.Seed))
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, streamResponse{StreamID: stream.ID, CreatedAt: stream.CreatedAt})
}

func (h *Handler) handleListStreams(w http.ResponseWriter, r *http.Request) {
	owned := h.app.ListStreams(principalFrom(r.Context()))
	payload := make([]streamResponse, 0, len(owned))
	for _, stream := range owned {
		payload = append(payload, streamResponse{StreamID: stream.ID, CreatedAt: stream.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"streams": payload})
}

func (h *Handler) handleRemoveStream(w http.ResponseWriter, r *http.Request) {
	if err := h.app.RemoveStream(principalFrom(r.Context()), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleStreamInt(w http.ResponseWriter, r *http.Request) {
	var req intRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	values, err := h.app.StreamInt(r.Context(), principalFrom(r.Context()), r.PathValue("id"), req.Min, req.Max, req.count())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"values": values})
}

func (h *Handler) handleStreamBytes(w http.ResponseWriter, r *http.Request) {
	var req bytesRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	data, err := h.app.StreamBytes(r.Context(), principalFrom(r.Context()), r.PathValue("id"), req.Length)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":   hex.EncodeToString(data),
		"length": len(data),
	})
}

func (h *Handler) handleStreamFloat(w http.ResponseWriter, r *http.Request) {
	var req floatRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	values, err := h.app.StreamFloat(r.Context(), principalFrom(r.Context()), r.PathValue("id"), req.count())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"values": values})
}

// logServerError keeps 5xx causes out of responses but in the logs.
func logServerError(err error) {
	log.Printf("internal error: %v", err)
}
