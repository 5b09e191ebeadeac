// Package handlers serves the console pages. Every handler reads through the
// tag-invalidated API cache and reports failures with the backend's own
// message; quota rejections route to the upgrade prompt and a 401 evicts the
// stored token and lands on the login page.
package handlers

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/mailward/web/internal/api"
	"github.com/mailward/web/internal/authtoken"
	"github.com/mailward/web/internal/config"
	"github.com/mailward/web/internal/table"
	"github.com/mailward/web/internal/views"
)

const flashCookie = "mw_flash"

type Handlers struct {
	cfg    *config.Config
	tokens *authtoken.Store
	client *api.Client
	mounts *api.Mounts
	tables *table.Registry
	views  *views.Engine
	logger *slog.Logger

	// loc is the timezone datetime-local form values are interpreted in
	// before conversion to the UTC instants the backend schedules with.
	loc *time.Location
}

func New(cfg *config.Config, tokens *authtoken.Store, client *api.Client, mounts *api.Mounts, tables *table.Registry, viewEngine *views.Engine, logger *slog.Logger) *Handlers {
	return &Handlers{
		cfg:    cfg,
		tokens: tokens,
		client: client,
		mounts: mounts,
		tables: tables,
		views:  viewEngine,
		logger: logger,
		loc:    time.Local,
	}
}

// Health check
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handlers) token(r *http.Request) string {
	return h.tokens.Get(r)
}

func (h *Handlers) clientID(r *http.Request) string {
	if id := authtoken.ClientID(r); id != "" {
		return id
	}
	return "anonymous"
}

// render executes a page template, merging the ambient fields every layout
// render needs (auth state, pending flash).
func (h *Handlers) render(w http.ResponseWriter, r *http.Request, name string, data map[string]any) {
	h.renderStatus(w, r, http.StatusOK, name, data)
}

// renderStatus is render with an explicit response status, used for error and
// upgrade pages so failures carry their real code instead of an implicit 200.
func (h *Handlers) renderStatus(w http.ResponseWriter, r *http.Request, status int, name string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	if _, ok := data["Authenticated"]; !ok {
		data["Authenticated"] = h.tokens.IsAuthenticated(r)
	}
	if _, ok := data["Flash"]; !ok {
		data["Flash"] = h.takeFlash(w, r)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.views.Render(w, name, data); err != nil {
		h.logger.Error("render failed", "template", name, "error", err)
	}
}

// flash stores a one-shot message shown on the next rendered page.
func (h *Handlers) flash(w http.ResponseWriter, message string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    url.QueryEscape(message),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
	})
}

func (h *Handlers) takeFlash(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(flashCookie)
	if err != nil || c.Value == "" {
		return ""
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	msg, err := url.QueryUnescape(c.Value)
	if err != nil {
		return ""
	}
	return msg
}

// fail routes an operation error to the right surface: a 401 evicts the
// stored token and redirects to login, a quota rejection renders the upgrade
// prompt, anything else renders the error page with the backend's message.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error, backURL string) {
	apiErr := api.AsAPIError(err)
	if apiErr == nil {
		h.logger.Error("backend unreachable", "path", r.URL.Path, "error", err)
		h.renderStatus(w, r, http.StatusBadGateway, "error", map[string]any{
			"Message": "Request failed, please try again",
			"BackURL": backURL,
		})
		return
	}

	if apiErr.IsUnauthorized() {
		h.tokens.Clear(w, r)
		h.mounts.Leave(h.clientID(r))
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	if apiErr.IsQuota() {
		h.renderStatus(w, r, apiErr.Status, "upgrade", map[string]any{
			"Message":      apiErr.UserMessage(),
			"PlanLimit":    apiErr.Body.PlanLimit,
			"CurrentCount": apiErr.Body.CurrentCount,
			"BackURL":      backURL,
		})
		return
	}

	h.logger.Warn("backend rejected request", "path", r.URL.Path, "status", apiErr.Status, "message", apiErr.UserMessage())
	h.renderStatus(w, r, apiErr.Status, "error", map[string]any{
		"Message": apiErr.UserMessage(),
		"BackURL": backURL,
	})
}
