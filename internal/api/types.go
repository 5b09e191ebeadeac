package api

import "time"

// Campaign statuses as reported by the backend.
const (
	CampaignDraft      = "draft"
	CampaignScheduled  = "scheduled"
	CampaignInProgress = "in_progress"
	CampaignCompleted  = "completed"
	CampaignPaused     = "paused"
)

// Recipient statuses. A recipient is created pending or scheduled, moves to
// processing when the backend dispatches it, and ends sent or failed. Failed
// recipients can be retried via TriggerNow, returning them to processing.
const (
	RecipientPending    = "pending"
	RecipientScheduled  = "scheduled"
	RecipientProcessing = "processing"
	RecipientSent       = "sent"
	RecipientFailed     = "failed"
)

// User is the backend's account record.
type User struct {
	ID        string `json:"_id"`
	GoogleID  string `json:"googleId"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Picture   string `json:"picture,omitempty"`
	CreatedAt string `json:"createdAt"`
	LastLogin string `json:"lastLogin"`

	CurrentPlan           string `json:"currentPlan,omitempty"`
	EmailsSentThisMonth   int    `json:"emailsSentThisMonth,omitempty"`
	PlanResetDate         string `json:"planResetDate,omitempty"`
	SubscriptionActive    bool   `json:"subscriptionActive,omitempty"`
	SubscriptionStartDate string `json:"subscriptionStartDate,omitempty"`
	LastPaymentID         string `json:"lastPaymentId,omitempty"`
}

// Campaign is a named collection of scheduled sends with rollup counters. The
// counters are server-maintained; the client never derives them.
type Campaign struct {
	ID              string `json:"_id"`
	UserID          string `json:"userId"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	Status          string `json:"status"`
	TotalRecipients int    `json:"totalRecipients"`
	SentCount       int    `json:"sentCount"`
	FailedCount     int    `json:"failedCount"`
	CreatedAt       string `json:"createdAt"`
	UpdatedAt       string `json:"updatedAt"`
}

// EmailRecipient is one scheduled (or completed) send within a campaign.
type EmailRecipient struct {
	ID          string `json:"_id"`
	CampaignID  string `json:"campaignId"`
	Email       string `json:"email"`
	Message     string `json:"message"`
	TriggerDate string `json:"triggerDate"`
	Status      string `json:"status"`
	SentAt      string `json:"sentAt,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Expired reports whether a pending recipient's trigger date has passed.
func (r *EmailRecipient) Expired(now time.Time) bool {
	ts, err := time.Parse(time.RFC3339, r.TriggerDate)
	if err != nil {
		return false
	}
	return ts.Before(now)
}

// PaginationMeta is recomputed by the server on every recipients-list request
// and treated as authoritative.
type PaginationMeta struct {
	CurrentPage     int  `json:"currentPage"`
	TotalPages      int  `json:"totalPages"`
	TotalRecipients int  `json:"totalRecipients"`
	Limit           int  `json:"limit"`
	HasNextPage     bool `json:"hasNextPage"`
	HasPreviousPage bool `json:"hasPreviousPage"`
}

// RecipientsPage is one page of a campaign's recipients.
type RecipientsPage struct {
	Recipients []EmailRecipient `json:"recipients"`
	Pagination PaginationMeta   `json:"pagination"`
}

// CreateCampaignRequest creates a campaign. An empty description is omitted
// from the wire body entirely.
type CreateCampaignRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// AddRecipientRequest schedules one send. TriggerDate must be a UTC ISO-8601
// instant (see ToUTCInstant).
type AddRecipientRequest struct {
	Email       string `json:"email"`
	Message     string `json:"message"`
	TriggerDate string `json:"triggerDate"`
}

// UpdateRecipientRequest carries the edited draft fields and nothing else.
type UpdateRecipientRequest struct {
	Email       string `json:"email,omitempty"`
	Message     string `json:"message,omitempty"`
	TriggerDate string `json:"triggerDate,omitempty"`
}

// TriggerResponse is the body of a trigger-now call. Success false is a
// normal response describing a server-side send failure, not an error.
type TriggerResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// MessageResponse is the generic {message} acknowledgement body.
type MessageResponse struct {
	Message string `json:"message"`
}

// UploadResult reports a spreadsheet import: rows accepted and per-row
// rejections.
type UploadResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    *struct {
		ValidRecipients []AddRecipientRequest `json:"validRecipients"`
		Errors          []UploadRowError      `json:"errors"`
	} `json:"data,omitempty"`
}

type UploadRowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// Plan is one entry of the public plan catalog.
type Plan struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	DisplayName string  `json:"displayName"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
	EmailLimit  int     `json:"emailLimit"`
	IsUnlimited bool    `json:"isUnlimited"`
	Features    []string `json:"features,omitempty"`
}

// PlanUsage summarizes the current billing period for the signed-in user.
type PlanUsage struct {
	PlanDisplayName string `json:"planDisplayName"`
	EmailLimit      int    `json:"emailLimit"`
	IsUnlimited     bool   `json:"isUnlimited"`
	Used            int    `json:"used"`
	Remaining       int    `json:"remaining"`
	PercentageUsed  int    `json:"percentageUsed"`
}

// MyPlan is the signed-in user's plan plus usage.
type MyPlan struct {
	Plan  Plan      `json:"plan"`
	Usage PlanUsage `json:"usage"`
}

// CreateOrderRequest starts a payment for a plan. The order body is opaque to
// this client; it is handed back to the payment provider verbatim.
type CreateOrderRequest struct {
	PlanID     string `json:"planId"`
	CouponCode string `json:"couponCode,omitempty"`
}

type CreateOrderResponse struct {
	OrderID  string  `json:"orderId"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	KeyID    string  `json:"keyId,omitempty"`
}

// VerifyPaymentRequest confirms a completed payment with the backend.
type VerifyPaymentRequest struct {
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
	PlanID    string `json:"planId"`
}

type VerifyPaymentResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ValidateCouponRequest checks a discount code against a plan.
type ValidateCouponRequest struct {
	Code   string `json:"code"`
	PlanID string `json:"planId"`
}

type ValidateCouponResponse struct {
	Valid           bool    `json:"valid"`
	DiscountPercent float64 `json:"discountPercent,omitempty"`
	FinalPrice      float64 `json:"finalPrice,omitempty"`
	Message         string  `json:"message,omitempty"`
}
