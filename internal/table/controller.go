// Package table holds the server-side state of a campaign's recipient table:
// which row is being edited, the edit draft, the pending delete confirmation
// and the current page. One Controller exists per (client, campaign) pair and
// survives across renders, so the table behaves like a stateful widget even
// though every interaction is a full request/response round trip.
package table

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mailward/web/internal/api"
)

var (
	// ErrEditInProgress is returned when a second row edit is started while
	// another row is still in edit mode. The first edit stays active; the
	// caller must save or cancel it explicitly.
	ErrEditInProgress = errors.New("another row is already being edited")

	// ErrNoEdit is returned by Save when no row is in edit mode.
	ErrNoEdit = errors.New("no row is being edited")

	// ErrNotEditable is returned for actions the row's status does not allow.
	ErrNotEditable = errors.New("row status does not allow this action")

	// ErrBusy is returned while a previous mutation on this table is still
	// in flight, preventing duplicate submission.
	ErrBusy = errors.New("a request for this table is already in flight")

	// ErrNotConfirmed is returned by ConfirmDelete when no delete was
	// requested for that row first.
	ErrNotConfirmed = errors.New("delete was not requested for this row")
)

// Draft is the snapshot taken when a row enters edit mode. TriggerDate holds
// the truncated wall-clock form suitable for an editable datetime field.
type Draft struct {
	Email       string
	Message     string
	TriggerDate string
}

// Controller tracks the interactive state of one campaign's recipient table.
type Controller struct {
	client     *api.Client
	campaignID string
	limit      int

	mu            sync.Mutex
	page          int
	meta          api.PaginationMeta
	editingID     string
	draft         Draft
	saving        bool
	confirmDelete string
	inflight      bool
}

// NewController creates a table controller starting on page 1.
func NewController(client *api.Client, campaignID string, limit int) *Controller {
	if limit <= 0 {
		limit = 10
	}
	return &Controller{
		client:     client,
		campaignID: campaignID,
		limit:      limit,
		page:       1,
	}
}

// Page loads the current page through the cached recipients query and records
// the server's pagination metadata. The metadata is authoritative: if the
// current page fell off the end after deletes, the cursor is clamped and the
// page re-read.
func (c *Controller) Page(ctx context.Context, token string) (*api.RecipientsPage, error) {
	c.mu.Lock()
	page := c.page
	c.mu.Unlock()

	res, err := c.client.GetCampaignRecipients(ctx, token, c.campaignID, page, c.limit)
	if err != nil {
		return nil, err
	}

	if res.Pagination.TotalPages > 0 && page > res.Pagination.TotalPages {
		c.mu.Lock()
		c.page = res.Pagination.TotalPages
		page = c.page
		c.mu.Unlock()
		res, err = c.client.GetCampaignRecipients(ctx, token, c.campaignID, page, c.limit)
		if err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	c.meta = res.Pagination
	c.mu.Unlock()
	return res, nil
}

// CurrentPage returns the 1-based cursor.
func (c *Controller) CurrentPage() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

// NextPage advances the cursor if the server reported a next page. Navigation
// is gated on the server's flags, never on a client-side bound computation.
func (c *Controller) NextPage() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.meta.HasNextPage {
		return false
	}
	c.page++
	return true
}

// PrevPage moves the cursor back if the server reported a previous page.
func (c *Controller) PrevPage() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.meta.HasPreviousPage {
		return false
	}
	c.page--
	return true
}

// SetPage jumps to an explicit page. Values below 1 are clamped.
func (c *Controller) SetPage(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 1 {
		n = 1
	}
	c.page = n
}

// StartEdit puts the given row into edit mode, snapshotting its fields into
// the draft. Starting a second edit is blocked, not silently switched, so a
// half-typed draft is never discarded behind the user's back.
func (c *Controller) StartEdit(r *api.EmailRecipient) error {
	if r.Status != api.RecipientPending {
		return fmt.Errorf("%w: status %s", ErrNotEditable, r.Status)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editingID != "" && c.editingID != r.ID {
		return ErrEditInProgress
	}
	c.editingID = r.ID
	c.draft = Draft{
		Email:       r.Email,
		Message:     r.Message,
		TriggerDate: api.TruncateForEdit(r.TriggerDate),
	}
	c.confirmDelete = ""
	return nil
}

// EditingID returns the id of the row in edit mode, or "".
func (c *Controller) EditingID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editingID
}

// Draft returns the current edit draft. Valid only while a row is editing.
func (c *Controller) Draft() Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// SetDraft replaces the draft fields with edited form values.
func (c *Controller) SetDraft(d Draft) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editingID == "" {
		return ErrNoEdit
	}
	c.draft = d
	return nil
}

// Save sends the draft fields, and only the draft fields, to the update
// endpoint. The locally entered trigger date is converted to a UTC instant in
// loc before transmission. On success the row collapses back to viewing.
func (c *Controller) Save(ctx context.Context, token string, loc *time.Location) error {
	c.mu.Lock()
	if c.editingID == "" {
		c.mu.Unlock()
		return ErrNoEdit
	}
	if c.saving || c.inflight {
		c.mu.Unlock()
		return ErrBusy
	}
	id := c.editingID
	draft := c.draft
	c.saving = true
	c.inflight = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.saving = false
		c.inflight = false
		c.mu.Unlock()
	}()

	instant, err := api.ToUTCInstant(draft.TriggerDate, loc)
	if err != nil {
		return err
	}

	_, err = c.client.UpdateRecipient(ctx, token, c.campaignID, id, api.UpdateRecipientRequest{
		Email:       draft.Email,
		Message:     draft.Message,
		TriggerDate: instant,
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.editingID = ""
	c.draft = Draft{}
	c.mu.Unlock()
	return nil
}

// Cancel discards the draft without issuing a request.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editingID = ""
	c.draft = Draft{}
}

// RequestDelete marks a row for deletion pending confirmation. No request is
// issued until ConfirmDelete.
func (c *Controller) RequestDelete(r *api.EmailRecipient) error {
	if r.Status != api.RecipientPending {
		return fmt.Errorf("%w: status %s", ErrNotEditable, r.Status)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confirmDelete = r.ID
	return nil
}

// PendingDelete returns the id awaiting confirmation, or "".
func (c *Controller) PendingDelete() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.confirmDelete
}

// CancelDelete clears a pending confirmation without a request.
func (c *Controller) CancelDelete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confirmDelete = ""
}

// ConfirmDelete issues exactly one DELETE for the previously requested row.
func (c *Controller) ConfirmDelete(ctx context.Context, token, recipientID string) error {
	c.mu.Lock()
	if c.confirmDelete == "" || c.confirmDelete != recipientID {
		c.mu.Unlock()
		return ErrNotConfirmed
	}
	if c.inflight {
		c.mu.Unlock()
		return ErrBusy
	}
	c.inflight = true
	c.confirmDelete = ""
	if c.editingID == recipientID {
		c.editingID = ""
		c.draft = Draft{}
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inflight = false
		c.mu.Unlock()
	}()

	return c.client.DeleteRecipient(ctx, token, c.campaignID, recipientID)
}

// TriggerNow sends (or retries) one recipient immediately. Allowed for
// pending and failed rows only.
func (c *Controller) TriggerNow(ctx context.Context, token string, r *api.EmailRecipient) (*api.TriggerResponse, error) {
	if r.Status != api.RecipientPending && r.Status != api.RecipientFailed {
		return nil, fmt.Errorf("%w: status %s", ErrNotEditable, r.Status)
	}

	c.mu.Lock()
	if c.inflight {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.inflight = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inflight = false
		c.mu.Unlock()
	}()

	return c.client.TriggerNow(ctx, token, c.campaignID, r.ID)
}

// RowActions is the per-row action set derived from recipient status.
type RowActions struct {
	CanEdit    bool
	CanDelete  bool
	CanTrigger bool
	Expired    bool
	Sending    bool
}

// ActionsFor gates row actions by status. Pending rows get the full set plus
// an expired indicator when the trigger date has passed; failed rows get only
// retry; sent and processing rows are read-only.
func ActionsFor(r *api.EmailRecipient, now time.Time) RowActions {
	switch r.Status {
	case api.RecipientPending:
		return RowActions{
			CanEdit:    true,
			CanDelete:  true,
			CanTrigger: true,
			Expired:    r.Expired(now),
		}
	case api.RecipientFailed:
		return RowActions{CanTrigger: true}
	case api.RecipientProcessing:
		return RowActions{Sending: true}
	default:
		return RowActions{}
	}
}
