package handlers

import (
	"net/http"
	"strings"
)

// LoginPage renders the sign-in page. The OAuth flow itself lives on the
// backend; the console only links to it and receives the callback.
func (h *Handlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	if h.tokens.IsAuthenticated(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.render(w, r, "login", map[string]any{
		"SignInURL": strings.TrimSuffix(h.cfg.Backend.BaseURL, "/") + "/api/auth/google",
	})
}

// AuthCallback lands the OAuth redirect. A token parameter is persisted and
// the user continues to the dashboard; an error parameter is shown before
// bouncing back to login; neither present is treated as an error.
func (h *Handlers) AuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if token := q.Get("token"); token != "" {
		if err := h.tokens.Set(w, r, token); err != nil {
			// The cookie channel is already written; log the degraded
			// redundancy and continue.
			h.logger.Warn("durable token write failed", "error", err)
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	message := q.Get("error")
	if message == "" {
		message = "No token received"
	}
	h.render(w, r, "callback_error", map[string]any{"Message": message})
}

// Logout invalidates the session server-side, drops this user's cached data
// and subscriptions, and clears both token channels.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	token := h.token(r)
	if token != "" {
		if err := h.client.Logout(r.Context(), token); err != nil {
			// The local state is cleared regardless; the backend session
			// expires on its own.
			h.logger.Warn("backend logout failed", "error", err)
		}
	}

	clientID := h.clientID(r)
	h.mounts.Leave(clientID)
	h.tables.Drop(clientID)
	h.tokens.Clear(w, r)

	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
