package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mailward/web/internal/api"
)

// CampaignList shows all campaigns for the signed-in user.
func (h *Handlers) CampaignList(w http.ResponseWriter, r *http.Request) {
	token := h.token(r)

	campaigns, err := h.client.GetCampaigns(r.Context(), token)
	if err != nil {
		h.fail(w, r, err, "/campaigns")
		return
	}

	h.mounts.Visit(h.clientID(r), "/campaigns", h.client.CampaignsQuery(token))

	h.render(w, r, "campaigns", map[string]any{"Campaigns": campaigns})
}

// CampaignNewPage renders the create form.
func (h *Handlers) CampaignNewPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "campaign_new", map[string]any{})
}

// CampaignCreate creates a campaign and lands on its detail page. An empty
// description never reaches the wire.
func (h *Handlers) CampaignCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, r, "campaign_new", map[string]any{"Error": "Invalid form data"})
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		h.render(w, r, "campaign_new", map[string]any{"Error": "Name is required"})
		return
	}

	camp, err := h.client.CreateCampaign(r.Context(), h.token(r), api.CreateCampaignRequest{
		Name:        name,
		Description: strings.TrimSpace(r.FormValue("description")),
	})
	if err != nil {
		h.fail(w, r, err, "/campaigns/new")
		return
	}

	h.flash(w, "Campaign created")
	http.Redirect(w, r, "/campaigns/"+camp.ID, http.StatusSeeOther)
}

// CampaignDeletePage renders the confirmation step. No delete is issued from
// here.
func (h *Handlers) CampaignDeletePage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	camp, err := h.client.GetCampaign(r.Context(), h.token(r), id)
	if err != nil {
		h.fail(w, r, err, "/campaigns")
		return
	}

	h.render(w, r, "campaign_delete", map[string]any{"Campaign": camp})
}

// CampaignDelete deletes a campaign and its recipients after confirmation.
func (h *Handlers) CampaignDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.client.DeleteCampaign(r.Context(), h.token(r), id); err != nil {
		h.fail(w, r, err, "/campaigns")
		return
	}

	h.flash(w, "Campaign deleted")
	http.Redirect(w, r, "/campaigns", http.StatusSeeOther)
}

// CampaignRecalculate asks the backend to recompute the rollup counters.
func (h *Handlers) CampaignRecalculate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.client.RecalculateCounts(r.Context(), h.token(r), id); err != nil {
		h.fail(w, r, err, "/campaigns/"+id)
		return
	}

	h.flash(w, "Counts recalculated")
	http.Redirect(w, r, "/campaigns/"+id, http.StatusSeeOther)
}
