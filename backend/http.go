package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fluxhook/fluxhook/backend/data"
	"github.com/fluxhook/fluxhook/backend/feedmanager"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "gopkg.in/inconshreveable/log15.v2"
)

type HTTPConfig struct {
	ListenAddress string
	ListenPort    string
}

type EnvHandlerFunc func(w http.ResponseWriter, req *http.Request, env *environment)

type environment struct {
	app    *App
	store  data.Store
	logger log.Logger
}

func EnvHandler(app *App, logger log.Logger, f EnvHandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		env := &environment{app: app, store: app.store, logger: logger}
		f(w, req, env)
	})
}

func NewAPIHandler(app *App, logger log.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Method(http.MethodPost, "/auth/login", EnvHandler(app, logger, LoginHandler))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(app.auth.Middleware)

		r.Method(http.MethodPost, "/flux", EnvHandler(app, logger, CreateFluxHandler))
		r.Method(http.MethodGet, "/flux", EnvHandler(app, logger, GetFluxHandler))
		r.Method(http.MethodPatch, "/flux", EnvHandler(app, logger, UpdateFluxHandler))
		r.Method(http.MethodDelete, "/flux", EnvHandler(app, logger, DeleteFluxHandler))
		r.Method(http.MethodPost, "/flux/{id}/poll", EnvHandler(app, logger, PollFluxHandler))

		r.Method(http.MethodPost, "/webhooks", EnvHandler(app, logger, CreateWebhookHandler))
		r.Method(http.MethodGet, "/webhooks", EnvHandler(app, logger, GetWebhooksHandler))
		r.Method(http.MethodPatch, "/webhooks", EnvHandler(app, logger, UpdateWebhookHandler))
		r.Method(http.MethodDelete, "/webhooks", EnvHandler(app, logger, DeleteWebhookHandler))

		r.Method(http.MethodPost, "/hooks", EnvHandler(app, logger, CreateHookHandler))
		r.Method(http.MethodDelete, "/hooks", EnvHandler(app, logger, DeleteHookHandler))
		r.Method(http.MethodGet, "/hooks/flux/{id}", EnvHandler(app, logger, GetHooksOfFluxHandler))
		r.Method(http.MethodGet, "/hooks/webhook/{id}", EnvHandler(app, logger, GetHooksOfWebhookHandler))

		r.Method(http.MethodGet, "/articles", EnvHandler(app, logger, GetArticlesHandler))
		r.Method(http.MethodGet, "/articles/flux", EnvHandler(app, logger, GetArticlesOfFluxHandler))

		r.Method(http.MethodGet, "/deliveries/articles", EnvHandler(app, logger, GetDeliveriesOfArticleHandler))
		r.Method(http.MethodGet, "/deliveries/webhooks", EnvHandler(app, logger, GetDeliveriesOfWebhookHandler))
	})

	return r
}

func requestLogger(logger log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
			startTime := time.Now()
			next.ServeHTTP(ww, req)
			logger.Info("request", "method", req.Method, "path", req.URL.Path, "status", ww.Status(), "duration", time.Since(startTime))
		})
	}
}

type urlRequest struct {
	ID  int32  `json:"id"`
	URL string `json:"url"`
}

type idRequest struct {
	ID int32 `json:"id"`
}

type hookRequest struct {
	FluxID    int32 `json:"fluxId"`
	WebhookID int32 `json:"webhookId"`
}

func LoginHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	var credentials struct {
		Password string `json:"pass"`
	}
	if !decodeRequest(w, req, &credentials) {
		return
	}

	token, err := env.app.auth.Login(credentials.Password)
	if errors.Is(err, ErrBadPassword) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprintln(w, "Bad password")
		return
	}
	if err != nil {
		writeError(w, env, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"access_token": token})
}

func CreateFluxHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	var request urlRequest
	if !decodeRequest(w, req, &request) || !validateURL(w, request.URL) {
		return
	}

	flux, err := env.app.CreateFlux(req.Context(), request.URL)
	if err != nil {
		writeError(w, env, err)
		return
	}

	writeJSON(w, http.StatusCreated, flux)
}

func GetFluxHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	fluxes, err := env.store.SelectAllFlux(req.Context())
	if err != nil {
		writeError(w, env, err)
		return
	}

	writeJSON(w, http.StatusOK, orEmpty(fluxes))
}

func UpdateFluxHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	var request urlRequest
	if !decodeRequest(w, req, &request) || !validateID(w, "id", request.ID) || !validateURL(w, request.URL) {
		return
	}

	flux, err := env.app.UpdateFlux(req.Context(), request.ID, request.URL)
	if err != nil {
		writeError(w, env, err)
		return
	}

	writeJSON(w, http.StatusOK, flux)
}

func DeleteFluxHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	var request idRequest
	if !decodeRequest(w, req, &request) || !validateID(w, "id", request.ID) {
		return
	}

	flux, err := env.app.DeleteFlux(req.Context(), request.ID)
	if err != nil {
		writeError(w, env, err)
		return
	}

	writeJSON(w, http.StatusOK, flux)
}

func PollFluxHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	id, ok := parseID(w, chi.URLParam(req, "id"))
	if !ok {
		return
	}

	n, err := env.app.PollFlux(req.Context(), id)
	if err != nil {
		writeError(w, env, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]int{"newItems": n})
}

func CreateWebhookHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	var request urlRequest
	if !decodeRequest(w, req, &request) || !validateURL(w, request.URL) {
		return
	}

	webhook, err := env.store.InsertWebhook(req.Context(), request.URL)
	if err != nil {
		writeError(w, env, err)
		return
	}

	writeJSON(w, http.StatusCreated, webhook)
}

func GetWebhooksHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	webhooks, err := env.store.SelectAllWebhooks(req.Context())
	if err != nil {
		writeError(w, env, err)
		return
	}

	writeJSON(w, http.StatusOK, orEmpty(webhooks))
}

func UpdateWebhookHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	var request urlRequest
	if !decodeRequest(w, req, &request) || !validateID(w, "id", request.ID) || !validateURL(w, request.URL) {
		return
	}

	webhook, err := env.store.UpdateWebhookURL(req.Context(), request.ID, request.URL)
	if err != nil {
		writeError(w, env, err)
		return
	}

	writeJSON(w, http.StatusOK, webhook)
}

func DeleteWebhookHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	var request idRequest
	if !decodeRequest(w, req, &request) || !validateID(w, "id", request.ID) {
		return
	}

	webhook, err := env.store.DeleteWebhook(req.Context(), request.ID)
	if err != nil {
		writeError(w, env, err)
		return
	}

	writeJSON(w, http.StatusOK, webhook)
}

func CreateHookHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	var request hookRequest
	if !decodeRequest(w, req, &request) || !validateID(w, "fluxId", request.FluxID) || !validateID(w, "webhookId", request.WebhookID) {
		return
	}

	binding, err := env.store.InsertBinding(req.Context(), request.FluxID, request.WebhookID)
	if err != nil {
		writeError(w, env, err)
		return
	}

	writeJSON(w, http.StatusCreated, binding)
}

func DeleteHookHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	var request hookRequest
	if !decodeRequest(w, req, &request) || !validateID(w, "fluxId", request.FluxID) || !validateID(w, "webhookId", request.WebhookID) {
		return
	}

	binding, err := env.store.DeleteBinding(req.Context(), request.FluxID, request.WebhookID)
	if err != nil {
		writeError(w, env, err)
		return
	}

	writeJSON(w, http.StatusOK, binding)
}

func GetHooksOfFluxHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	id, ok := parseID(w, chi.URLParam(req, "id"))
	if !ok {
		return
	}

	webhooks, err := env.store.SelectWebhooksByFluxID(req.Context(), id)
	if err != nil {
		writeError(w, env, err)
		return
	}

	writeJSON(w, http.StatusOK, orEmpty(webhooks))
}

func GetHooksOfWebhookHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	id, ok := parseID(w, chi.URLParam(req, "id"))
	if !ok {
		return
	}

	fluxes, err := env.store.SelectFluxByWebhookID(req.Context(), id)
	if err != nil {
		writeError(w, env, err)
		return
	}

	writeJSON(w, http.StatusOK, orEmpty(fluxes))
}

func GetArticlesHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	articles, err := env.store.SelectAllArticles(req.Context())
	if err != nil {
		writeError(w, env, err)
		return
	}

	writeJSON(w, http.StatusOK, orEmpty(articles))
}

func GetArticlesOfFluxHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	id, ok := parseID(w, req.URL.Query().Get("id"))
	if !ok {
		return
	}

	articles, err := env.store.SelectArticlesByFluxID(req.Context(), id)
	if err != nil {
		writeError(w, env, err)
		return
	}

	writeJSON(w, http.StatusOK, orEmpty(articles))
}

func GetDeliveriesOfArticleHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	id, ok := parseID(w, req.URL.Query().Get("id"))
	if !ok {
		return
	}

	webhooks, err := env.store.SelectWebhooksByArticleID(req.Context(), id)
	if err != nil {
		writeError(w, env, err)
		return
	}

	writeJSON(w, http.StatusOK, orEmpty(webhooks))
}

func GetDeliveriesOfWebhookHandler(w http.ResponseWriter, req *http.Request, env *environment) {
	id, ok := parseID(w, req.URL.Query().Get("id"))
	if !ok {
		return
	}

	articles, err := env.store.SelectArticlesByWebhookID(req.Context(), id)
	if err != nil {
		writeError(w, env, err)
		return
	}

	writeJSON(w, http.StatusOK, orEmpty(articles))
}

func decodeRequest(w http.ResponseWriter, req *http.Request, v any) bool {
	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(v); err != nil {
		w.WriteHeader(422)
		fmt.Fprintf(w, "Error decoding request: %v", err)
		return false
	}
	return true
}

func validateID(w http.ResponseWriter, name string, id int32) bool {
	if id <= 0 {
		w.WriteHeader(422)
		fmt.Fprintf(w, "Request must include the attribute %q as a positive integer\n", name)
		return false
	}
	return true
}

func validateURL(w http.ResponseWriter, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if rawURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		w.WriteHeader(422)
		fmt.Fprintln(w, `Request must include the attribute "url" as an absolute http or https URL`)
		return false
	}
	return true
}

func parseID(w http.ResponseWriter, s string) (int32, bool) {
	id, err := strconv.ParseInt(s, 10, 32)
	if err != nil || id <= 0 {
		w.WriteHeader(422)
		fmt.Fprintf(w, "Bad id %q\n", s)
		return 0, false
	}
	return int32(id), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps store and registry errors to HTTP statuses. Unexpected errors are logged and reported as 500.
func writeError(w http.ResponseWriter, env *environment, err error) {
	var parseErr *feedmanager.FeedParseError
	var dupFeedErr *feedmanager.DuplicateFeedError
	var dupErr data.DuplicationError
	var refErr data.ReferenceError

	switch {
	case errors.Is(err, data.ErrNotFound):
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintln(w, "Not found")
	case errors.As(err, &parseErr):
		w.WriteHeader(422)
		fmt.Fprintln(w, parseErr.Error())
	case errors.As(err, &dupErr), errors.As(err, &refErr), errors.As(err, &dupFeedErr):
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintln(w, err.Error())
	case errors.Is(err, feedmanager.ErrPollInProgress):
		w.WriteHeader(http.StatusConflict)
		fmt.Fprintln(w, err.Error())
	default:
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintln(w, "Internal server error")
		env.logger.Error("request failed", "error", err)
	}
}

func orEmpty[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}
