package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mailward/web/internal/api"
	"github.com/mailward/web/internal/table"
)

func (h *Handlers) controller(r *http.Request, campaignID string) *table.Controller {
	return h.tables.Get(h.clientID(r), campaignID)
}

func findRecipient(page *api.RecipientsPage, id string) *api.EmailRecipient {
	for i := range page.Recipients {
		if page.Recipients[i].ID == id {
			return &page.Recipients[i]
		}
	}
	return nil
}

// CampaignView renders the campaign detail page with the recipients table.
func (h *Handlers) CampaignView(w http.ResponseWriter, r *http.Request) {
	h.renderCampaign(w, r, chi.URLParam(r, "id"), nil)
}

// renderCampaign renders the campaign detail page, merging any extra template
// data (the upload report) into the base fields.
func (h *Handlers) renderCampaign(w http.ResponseWriter, r *http.Request, id string, extra map[string]any) {
	token := h.token(r)
	ctx := r.Context()

	camp, err := h.client.GetCampaign(ctx, token, id)
	if err != nil {
		h.fail(w, r, err, "/campaigns")
		return
	}

	ctrl := h.controller(r, id)
	page, err := ctrl.Page(ctx, token)
	if err != nil {
		h.fail(w, r, err, "/campaigns")
		return
	}

	now := time.Now().UTC()
	actions := make(map[string]table.RowActions, len(page.Recipients))
	for i := range page.Recipients {
		actions[page.Recipients[i].ID] = table.ActionsFor(&page.Recipients[i], now)
	}

	h.mounts.Visit(h.clientID(r), "/campaigns/"+id,
		h.client.CampaignQuery(token, id),
		h.client.RecipientsQuery(token, id, ctrl.CurrentPage(), api.DefaultPageLimit),
	)

	data := map[string]any{
		"Campaign":      camp,
		"Page":          page,
		"Actions":       actions,
		"EditingID":     ctrl.EditingID(),
		"Draft":         ctrl.Draft(),
		"PendingDelete": ctrl.PendingDelete(),
	}
	for k, v := range extra {
		data[k] = v
	}
	h.render(w, r, "campaign", data)
}

// RecipientAdd schedules a new send. The datetime-local value is converted to
// a UTC instant before it reaches the backend.
func (h *Handlers) RecipientAdd(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	back := "/campaigns/" + id

	if err := r.ParseForm(); err != nil {
		h.flash(w, "Invalid form data")
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}

	instant, err := api.ToUTCInstant(r.FormValue("triggerDate"), h.loc)
	if err != nil {
		h.flash(w, "Invalid trigger date")
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}

	_, err = h.client.AddRecipient(r.Context(), h.token(r), id, api.AddRecipientRequest{
		Email:       strings.TrimSpace(r.FormValue("email")),
		Message:     r.FormValue("message"),
		TriggerDate: instant,
	})
	if err != nil {
		h.fail(w, r, err, back)
		return
	}

	h.flash(w, "Recipient added")
	http.Redirect(w, r, back, http.StatusSeeOther)
}

// RecipientEdit puts a row into edit mode. A second concurrent edit is
// refused, keeping the first draft intact.
func (h *Handlers) RecipientEdit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rid := chi.URLParam(r, "rid")
	back := "/campaigns/" + id

	ctrl := h.controller(r, id)
	page, err := ctrl.Page(r.Context(), h.token(r))
	if err != nil {
		h.fail(w, r, err, back)
		return
	}

	rec := findRecipient(page, rid)
	if rec == nil {
		h.flash(w, "Recipient not found on this page")
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}

	if err := ctrl.StartEdit(rec); err != nil {
		if errors.Is(err, table.ErrEditInProgress) {
			h.flash(w, "Finish or cancel the current edit first")
		} else {
			h.flash(w, "This recipient can no longer be edited")
		}
	}
	http.Redirect(w, r, back, http.StatusSeeOther)
}

// RecipientEditCancel discards the draft without a request.
func (h *Handlers) RecipientEditCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.controller(r, id).Cancel()
	http.Redirect(w, r, "/campaigns/"+id, http.StatusSeeOther)
}

// RecipientUpdate saves the edit draft. Only the draft fields are sent.
func (h *Handlers) RecipientUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	back := "/campaigns/" + id

	if err := r.ParseForm(); err != nil {
		h.flash(w, "Invalid form data")
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}

	ctrl := h.controller(r, id)
	if err := ctrl.SetDraft(table.Draft{
		Email:       strings.TrimSpace(r.FormValue("email")),
		Message:     r.FormValue("message"),
		TriggerDate: r.FormValue("triggerDate"),
	}); err != nil {
		h.flash(w, "No edit in progress")
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}

	if err := ctrl.Save(r.Context(), h.token(r), h.loc); err != nil {
		if errors.Is(err, table.ErrBusy) {
			h.flash(w, "Save already in progress")
			http.Redirect(w, r, back, http.StatusSeeOther)
			return
		}
		h.fail(w, r, err, back)
		return
	}

	h.flash(w, "Recipient updated")
	http.Redirect(w, r, back, http.StatusSeeOther)
}

// RecipientDelete is the two-step delete: the first submit marks the row for
// confirmation, the confirmed submit issues the DELETE.
func (h *Handlers) RecipientDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rid := chi.URLParam(r, "rid")
	back := "/campaigns/" + id

	ctrl := h.controller(r, id)

	if r.FormValue("confirm") == "" {
		page, err := ctrl.Page(r.Context(), h.token(r))
		if err != nil {
			h.fail(w, r, err, back)
			return
		}
		if rec := findRecipient(page, rid); rec != nil {
			if err := ctrl.RequestDelete(rec); err != nil {
				h.flash(w, "This recipient can no longer be deleted")
			}
		}
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}

	if err := ctrl.ConfirmDelete(r.Context(), h.token(r), rid); err != nil {
		if errors.Is(err, table.ErrNotConfirmed) || errors.Is(err, table.ErrBusy) {
			http.Redirect(w, r, back, http.StatusSeeOther)
			return
		}
		h.fail(w, r, err, back)
		return
	}

	h.flash(w, "Recipient deleted")
	http.Redirect(w, r, back, http.StatusSeeOther)
}

// RecipientDeleteCancel backs out of a pending confirmation.
func (h *Handlers) RecipientDeleteCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.controller(r, id).CancelDelete()
	http.Redirect(w, r, "/campaigns/"+id, http.StatusSeeOther)
}

// RecipientTrigger sends one recipient immediately. For failed rows this is
// the retry action. A success:false response is a normal outcome shown with
// the server's failure message.
func (h *Handlers) RecipientTrigger(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rid := chi.URLParam(r, "rid")
	back := "/campaigns/" + id

	ctrl := h.controller(r, id)
	page, err := ctrl.Page(r.Context(), h.token(r))
	if err != nil {
		h.fail(w, r, err, back)
		return
	}

	rec := findRecipient(page, rid)
	if rec == nil {
		h.flash(w, "Recipient not found on this page")
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}

	resp, err := ctrl.TriggerNow(r.Context(), h.token(r), rec)
	if err != nil {
		if errors.Is(err, table.ErrBusy) || errors.Is(err, table.ErrNotEditable) {
			http.Redirect(w, r, back, http.StatusSeeOther)
			return
		}
		h.fail(w, r, err, back)
		return
	}

	if resp.Success {
		h.flash(w, "Email sent")
	} else if resp.Error != "" {
		h.flash(w, "Send failed: "+resp.Error)
	} else {
		h.flash(w, "Send failed")
	}
	http.Redirect(w, r, back, http.StatusSeeOther)
}

// RecipientsPageNext moves the table one page forward. The move is gated on
// the server's pagination flags, so an out-of-range submit is a no-op.
func (h *Handlers) RecipientsPageNext(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.controller(r, id).NextPage()
	http.Redirect(w, r, "/campaigns/"+id, http.StatusSeeOther)
}

// RecipientsPagePrev moves the table one page back.
func (h *Handlers) RecipientsPagePrev(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.controller(r, id).PrevPage()
	http.Redirect(w, r, "/campaigns/"+id, http.StatusSeeOther)
}

// RecipientsUpload imports a spreadsheet of recipients.
func (h *Handlers) RecipientsUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	back := "/campaigns/" + id

	file, header, err := r.FormFile("file")
	if err != nil {
		h.flash(w, "Choose a file to upload")
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}
	defer file.Close()

	result, err := h.client.UploadRecipients(r.Context(), h.token(r), id, header.Filename, file)
	if err != nil {
		h.fail(w, r, err, back)
		return
	}

	// Per-row rejections render inline next to the upload form; a clean
	// import just flashes the summary.
	if !result.Success || (result.Data != nil && len(result.Data.Errors) > 0) {
		h.renderCampaign(w, r, id, map[string]any{"Upload": result})
		return
	}

	h.flash(w, result.Message)
	http.Redirect(w, r, back, http.StatusSeeOther)
}
