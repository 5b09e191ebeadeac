package handlers

import (
	"net/http"
)

// Dashboard shows the signed-in user's profile, plan usage and campaigns.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	token := h.token(r)
	ctx := r.Context()

	user, err := h.client.GetUserProfile(ctx, token)
	if err != nil {
		h.fail(w, r, err, "/")
		return
	}
	campaigns, err := h.client.GetCampaigns(ctx, token)
	if err != nil {
		h.fail(w, r, err, "/")
		return
	}
	usage, err := h.client.GetPlanUsage(ctx, token)
	if err != nil {
		h.fail(w, r, err, "/")
		return
	}

	h.mounts.Visit(h.clientID(r), "/",
		h.client.ProfileQuery(token),
		h.client.CampaignsQuery(token),
		h.client.PlanUsageQuery(token),
	)

	h.render(w, r, "dashboard", map[string]any{
		"User":      user,
		"Campaigns": campaigns,
		"Usage":     usage,
	})
}
