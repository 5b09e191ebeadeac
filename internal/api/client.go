// Package api is the typed surface for every Mailward backend operation. It
// owns the HTTP transport, bearer auth, the tag-invalidated response cache
// and the fixed-interval poller. All entities live server-side; what this
// package holds is an invalidatable copy, never a source of truth.
package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultPageLimit is the recipients page size when none is requested.
const DefaultPageLimit = 10

// Client talks to the Mailward scheduling backend. Query results are cached
// per user scope and tagged for invalidation; mutations bypass the cache and
// dirty the tags they declare. No request is retried automatically: every
// failure surfaces synchronously to the caller.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *Cache
	logger     *slog.Logger

	observe func(method string, status int, dur time.Duration)
}

// NewClient creates a backend client.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		cache:      NewCache(),
		logger:     logger.With("component", "api"),
	}
}

// Cache exposes the underlying cache, mainly so a poller can be attached.
func (c *Client) Cache() *Cache { return c.cache }

// ObserveRequests registers a hook called once per backend request.
func (c *Client) ObserveRequests(fn func(method string, status int, dur time.Duration)) {
	c.observe = fn
}

// scope derives the per-user cache namespace from the bearer token.
func scope(token string) string {
	if token == "" {
		return "public"
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:4])
}

// request performs one HTTP round trip. A non-2xx response decodes into an
// *APIError carrying the status and structured body; a transport failure
// returns a plain wrapped error with no *APIError in its chain.
func (c *Client) request(ctx context.Context, token, method, path string, params url.Values, body, result any) error {
	var reqBody io.Reader
	contentType := ""
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, token, method, path, params, reqBody, contentType, result)
}

func (c *Client) do(ctx context.Context, token, method, path string, params url.Values, reqBody io.Reader, contentType string, result any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if c.observe != nil {
			c.observe(method, 0, time.Since(start))
		}
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if c.observe != nil {
		c.observe(method, resp.StatusCode, time.Since(start))
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		// A body that fails to decode still yields the status code.
		json.NewDecoder(resp.Body).Decode(&apiErr.Body)
		return apiErr
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// runQuery serves q through the cache, asserting the cached type.
func runQuery[T any](ctx context.Context, c *Client, q Query) (T, error) {
	v, err := c.cache.GetOrFetch(ctx, q.Key, q.Tags, q.Fetch)
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// --- Query definitions. Handlers use these both to fetch and to subscribe
// --- the poller while a page stays mounted.

// ProfileQuery is the signed-in user's profile.
func (c *Client) ProfileQuery(token string) Query {
	return Query{
		Key:  QueryKey(scope(token), "/api/user/profile", nil),
		Tags: []Tag{TagUser},
		Fetch: func(ctx context.Context) (any, error) {
			var u User
			if err := c.request(ctx, token, http.MethodGet, "/api/user/profile", nil, nil, &u); err != nil {
				return nil, err
			}
			return &u, nil
		},
	}
}

// CampaignsQuery is the user's campaign list.
func (c *Client) CampaignsQuery(token string) Query {
	return Query{
		Key:  QueryKey(scope(token), "/api/campaigns", nil),
		Tags: []Tag{TagCampaign},
		Fetch: func(ctx context.Context) (any, error) {
			var list []Campaign
			if err := c.request(ctx, token, http.MethodGet, "/api/campaigns", nil, nil, &list); err != nil {
				return nil, err
			}
			return list, nil
		},
	}
}

// CampaignQuery is one campaign by id.
func (c *Client) CampaignQuery(token, id string) Query {
	path := "/api/campaigns/" + id
	return Query{
		Key:  QueryKey(scope(token), path, nil),
		Tags: []Tag{TagCampaign},
		Fetch: func(ctx context.Context) (any, error) {
			var camp Campaign
			if err := c.request(ctx, token, http.MethodGet, path, nil, nil, &camp); err != nil {
				return nil, err
			}
			return &camp, nil
		},
	}
}

// RecipientsQuery is one page of a campaign's recipients. The key includes
// the full (campaign, page, limit) tuple so pages cache independently.
func (c *Client) RecipientsQuery(token, campaignID string, page, limit int) Query {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	path := "/api/campaigns/" + campaignID + "/recipients"
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(limit))
	return Query{
		Key:  QueryKey(scope(token), path, params),
		Tags: []Tag{TagRecipient},
		Fetch: func(ctx context.Context) (any, error) {
			var pg RecipientsPage
			if err := c.request(ctx, token, http.MethodGet, path, params, nil, &pg); err != nil {
				return nil, err
			}
			return &pg, nil
		},
	}
}

// PlanUsageQuery is the current billing-period usage.
func (c *Client) PlanUsageQuery(token string) Query {
	return Query{
		Key:  QueryKey(scope(token), "/api/user/plan-usage", nil),
		Tags: []Tag{TagUser},
		Fetch: func(ctx context.Context) (any, error) {
			var u PlanUsage
			if err := c.request(ctx, token, http.MethodGet, "/api/user/plan-usage", nil, nil, &u); err != nil {
				return nil, err
			}
			return &u, nil
		},
	}
}

// --- Queries.

func (c *Client) GetUserProfile(ctx context.Context, token string) (*User, error) {
	return runQuery[*User](ctx, c, c.ProfileQuery(token))
}

func (c *Client) GetCampaigns(ctx context.Context, token string) ([]Campaign, error) {
	return runQuery[[]Campaign](ctx, c, c.CampaignsQuery(token))
}

func (c *Client) GetCampaign(ctx context.Context, token, id string) (*Campaign, error) {
	return runQuery[*Campaign](ctx, c, c.CampaignQuery(token, id))
}

func (c *Client) GetCampaignRecipients(ctx context.Context, token, campaignID string, page, limit int) (*RecipientsPage, error) {
	return runQuery[*RecipientsPage](ctx, c, c.RecipientsQuery(token, campaignID, page, limit))
}

func (c *Client) GetPlanUsage(ctx context.Context, token string) (*PlanUsage, error) {
	return runQuery[*PlanUsage](ctx, c, c.PlanUsageQuery(token))
}

func (c *Client) GetMyPlan(ctx context.Context, token string) (*MyPlan, error) {
	q := Query{
		Key:  QueryKey(scope(token), "/api/pricing/my-plan", nil),
		Tags: []Tag{TagUser},
		Fetch: func(ctx context.Context) (any, error) {
			var p MyPlan
			if err := c.request(ctx, token, http.MethodGet, "/api/pricing/my-plan", nil, nil, &p); err != nil {
				return nil, err
			}
			return &p, nil
		},
	}
	return runQuery[*MyPlan](ctx, c, q)
}

// GetPlans returns the public plan catalog. No auth, no tags.
func (c *Client) GetPlans(ctx context.Context) ([]Plan, error) {
	q := Query{
		Key: QueryKey("public", "/api/pricing/plans", nil),
		Fetch: func(ctx context.Context) (any, error) {
			var plans []Plan
			if err := c.request(ctx, "", http.MethodGet, "/api/pricing/plans", nil, nil, &plans); err != nil {
				return nil, err
			}
			return plans, nil
		},
	}
	return runQuery[[]Plan](ctx, c, q)
}

// --- Mutations. Each one dirties its declared tags on success, forcing every
// --- mounted query carrying those tags to refetch immediately.

func (c *Client) Logout(ctx context.Context, token string) error {
	if err := c.request(ctx, token, http.MethodPost, "/api/auth/logout", nil, nil, nil); err != nil {
		return err
	}
	c.cache.DropScope(scope(token))
	c.cache.Invalidate(TagUser)
	return nil
}

func (c *Client) CreateCampaign(ctx context.Context, token string, req CreateCampaignRequest) (*Campaign, error) {
	var camp Campaign
	if err := c.request(ctx, token, http.MethodPost, "/api/campaigns", nil, req, &camp); err != nil {
		return nil, err
	}
	c.cache.Invalidate(TagCampaign)
	return &camp, nil
}

func (c *Client) DeleteCampaign(ctx context.Context, token, id string) error {
	if err := c.request(ctx, token, http.MethodDelete, "/api/campaigns/"+id, nil, nil, nil); err != nil {
		return err
	}
	c.cache.Invalidate(TagCampaign)
	return nil
}

// RecalculateCounts asks the backend to recompute a campaign's rollup
// counters. The client never adjusts counters itself.
func (c *Client) RecalculateCounts(ctx context.Context, token, id string) error {
	if err := c.request(ctx, token, http.MethodPost, "/api/campaigns/"+id+"/recalculate-counts", nil, nil, nil); err != nil {
		return err
	}
	c.cache.Invalidate(TagCampaign)
	return nil
}

func (c *Client) AddRecipient(ctx context.Context, token, campaignID string, req AddRecipientRequest) (*EmailRecipient, error) {
	var rec EmailRecipient
	if err := c.request(ctx, token, http.MethodPost, "/api/campaigns/"+campaignID+"/recipients", nil, req, &rec); err != nil {
		return nil, err
	}
	c.cache.Invalidate(TagRecipient, TagCampaign)
	return &rec, nil
}

func (c *Client) UpdateRecipient(ctx context.Context, token, campaignID, recipientID string, req UpdateRecipientRequest) (*EmailRecipient, error) {
	var rec EmailRecipient
	path := "/api/campaigns/" + campaignID + "/recipients/" + recipientID
	if err := c.request(ctx, token, http.MethodPut, path, nil, req, &rec); err != nil {
		return nil, err
	}
	c.cache.Invalidate(TagRecipient)
	return &rec, nil
}

func (c *Client) DeleteRecipient(ctx context.Context, token, campaignID, recipientID string) error {
	path := "/api/campaigns/" + campaignID + "/recipients/" + recipientID
	if err := c.request(ctx, token, http.MethodDelete, path, nil, nil, nil); err != nil {
		return err
	}
	c.cache.Invalidate(TagRecipient, TagCampaign)
	return nil
}

// TriggerNow sends one recipient's email immediately, bypassing its schedule.
// It doubles as the retry action for failed recipients. A response with
// Success false reports a server-side send failure and is returned as a
// value, not an error.
func (c *Client) TriggerNow(ctx context.Context, token, campaignID, recipientID string) (*TriggerResponse, error) {
	var resp TriggerResponse
	path := "/api/campaigns/" + campaignID + "/recipients/" + recipientID + "/trigger"
	if err := c.request(ctx, token, http.MethodPost, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	c.cache.Invalidate(TagRecipient, TagCampaign)
	return &resp, nil
}

// UploadRecipients imports a spreadsheet of recipients into a campaign.
func (c *Client) UploadRecipients(ctx context.Context, token, campaignID, filename string, file io.Reader) (*UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}

	var result UploadResult
	path := "/api/campaigns/" + campaignID + "/upload"
	if err := c.do(ctx, token, http.MethodPost, path, nil, &buf, mw.FormDataContentType(), &result); err != nil {
		return nil, err
	}
	c.cache.Invalidate(TagRecipient, TagCampaign)
	return &result, nil
}

// --- Payment flow. The order bodies are opaque to this client; nothing here
// --- verifies signatures or talks to the payment gateway.

func (c *Client) CreateOrder(ctx context.Context, token string, req CreateOrderRequest) (*CreateOrderResponse, error) {
	var resp CreateOrderResponse
	if err := c.request(ctx, token, http.MethodPost, "/api/payment/create-order", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) VerifyPayment(ctx context.Context, token string, req VerifyPaymentRequest) (*VerifyPaymentResponse, error) {
	var resp VerifyPaymentResponse
	if err := c.request(ctx, token, http.MethodPost, "/api/payment/verify", nil, req, &resp); err != nil {
		return nil, err
	}
	c.cache.Invalidate(TagUser)
	return &resp, nil
}

func (c *Client) ActivateFree(ctx context.Context, token string) error {
	if err := c.request(ctx, token, http.MethodPost, "/api/payment/activate-free", nil, nil, nil); err != nil {
		return err
	}
	c.cache.Invalidate(TagUser)
	return nil
}

func (c *Client) ValidateCoupon(ctx context.Context, token string, req ValidateCouponRequest) (*ValidateCouponResponse, error) {
	var resp ValidateCouponResponse
	if err := c.request(ctx, token, http.MethodPost, "/api/coupon/validate", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
