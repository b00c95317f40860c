package tenantadmin

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/ghlmux/pkg/logger"
	"github.com/dmitrymomot/ghlmux/pkg/requestid"
	"github.com/dmitrymomot/ghlmux/pkg/tenant"
)

const maxBodyBytes = 1 << 20

// dataResponse wraps every successful payload.
type dataResponse struct {
	Data any `json:"data"`
}

type api struct {
	m   *Manager
	log *slog.Logger
}

// RouterOption configures Router.
type RouterOption func(*routerOptions)

type routerOptions struct {
	tokens []string
	log    *slog.Logger
}

// WithTokens sets the accepted bearer tokens. Empty values are ignored.
// With no tokens every request is rejected.
func WithTokens(tokens ...string) RouterOption {
	return func(o *routerOptions) {
		for _, t := range tokens {
			if t = strings.TrimSpace(t); t != "" {
				o.tokens = append(o.tokens, t)
			}
		}
	}
}

func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(o *routerOptions) {
		if l != nil {
			o.log = l
		}
	}
}

// Router exposes the Manager as a JSON REST API behind bearer auth:
//
//	GET    /tenants
//	POST   /tenants
//	GET    /tenants/{id}
//	PUT    /tenants/{id}
//	DELETE /tenants/{id}
//	POST   /tenants/{id}/test
//
// Example:
//
//	r := chi.NewRouter()
//	r.Mount("/admin", tenantadmin.Router(mgr, tenantadmin.WithTokens(cfg.APIKey)))
func Router(m *Manager, opts ...RouterOption) chi.Router {
	o := &routerOptions{log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(o)
	}
	a := &api{m: m, log: o.log}

	r := chi.NewRouter()
	r.Use(BearerAuth(o.tokens...))
	r.Route("/tenants", func(r chi.Router) {
		r.Get("/", a.list)
		r.Post("/", a.create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.get)
			r.Put("/", a.update)
			r.Delete("/", a.remove)
			r.Post("/test", a.test)
		})
	})
	return r
}

// BearerAuth rejects requests without a bearer token with 401 and requests
// with an unknown token with 403.
func BearerAuth(tokens ...string) func(http.Handler) http.Handler {
	digests := make([][32]byte, 0, len(tokens))
	for _, t := range tokens {
		digests = append(digests, sha256.Sum256([]byte(t)))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
				tenant.WriteError(w, tenant.ErrUnauthenticated)
				return
			}
			got := sha256.Sum256([]byte(token))
			match := 0
			for _, d := range digests {
				match |= subtle.ConstantTimeCompare(got[:], d[:])
			}
			if match != 1 {
				tenant.WriteError(w, tenant.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func (a *api) list(w http.ResponseWriter, r *http.Request) {
	all, err := a.m.GetAllTenants(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, all)
}

func (a *api) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	t, err := a.m.CreateTenant(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, t)
}

func (a *api) get(w http.ResponseWriter, r *http.Request) {
	t, err := a.m.GetTenant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, t.Redacted())
}

func (a *api) update(w http.ResponseWriter, r *http.Request) {
	var u tenant.Update
	if err := decode(w, r, &u); err != nil {
		a.fail(w, r, err)
		return
	}
	t, err := a.m.UpdateTenant(r.Context(), chi.URLParam(r, "id"), u)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, t.Redacted())
}

func (a *api) remove(w http.ResponseWriter, r *http.Request) {
	if err := a.m.DeleteTenant(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) test(w http.ResponseWriter, r *http.Request) {
	if err := a.m.TestTenant(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"valid": true})
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	if tenant.StatusCode(err) >= http.StatusInternalServerError {
		a.log.ErrorContext(r.Context(), "admin request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.RequestID(requestid.FromContext(r.Context())),
			logger.Error(err))
	}
	tenant.WriteError(w, err)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(tenant.ErrInvalidInput, ErrDecodeRequest, err)
	}
	return nil
}

func writeData(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(dataResponse{Data: v})
}
