package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second, testLogger()), srv
}

func TestRequestAttachesBearerToken(t *testing.T) {
	var gotAuth string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode([]Campaign{})
	}))

	if _, err := c.GetCampaigns(context.Background(), "tok-abc"); err != nil {
		t.Fatalf("GetCampaigns() error = %v", err)
	}
	if gotAuth != "Bearer tok-abc" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer tok-abc")
	}
}

func TestGetCampaignRecipientsPagination(t *testing.T) {
	var pages []string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		pages = append(pages, page)
		json.NewEncoder(w).Encode(RecipientsPage{
			Recipients: []EmailRecipient{{ID: "r" + page}},
			Pagination: PaginationMeta{CurrentPage: atoi(page), Limit: 10},
		})
	}))

	ctx := context.Background()
	p1, err := c.GetCampaignRecipients(ctx, "tok", "c1", 1, 10)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	p2, err := c.GetCampaignRecipients(ctx, "tok", "c1", 2, 10)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}

	if p1.Pagination.CurrentPage != 1 || p2.Pagination.CurrentPage != 2 {
		t.Errorf("currentPage echo = %d, %d; want 1, 2", p1.Pagination.CurrentPage, p2.Pagination.CurrentPage)
	}

	// Both pages must be cached independently: re-reading page 1 must not
	// hit the backend again or return page 2's data.
	p1again, err := c.GetCampaignRecipients(ctx, "tok", "c1", 1, 10)
	if err != nil {
		t.Fatalf("page 1 again: %v", err)
	}
	if p1again.Recipients[0].ID != "r1" {
		t.Errorf("page 1 cache returned %q", p1again.Recipients[0].ID)
	}
	if len(pages) != 2 {
		t.Errorf("backend saw %d list requests, want 2 (page 1 cached)", len(pages))
	}
}

func TestMutationInvalidatesCampaignCache(t *testing.T) {
	var listCalls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/campaigns":
			listCalls.Add(1)
			json.NewEncoder(w).Encode([]Campaign{{ID: "c1", Name: "Launch"}})
		case r.Method == http.MethodPost && r.URL.Path == "/api/campaigns":
			json.NewEncoder(w).Encode(Campaign{ID: "c2", Name: "Next"})
		default:
			http.NotFound(w, r)
		}
	}))

	ctx := context.Background()
	c.GetCampaigns(ctx, "tok")
	c.GetCampaigns(ctx, "tok")
	if n := listCalls.Load(); n != 1 {
		t.Fatalf("list calls before mutation = %d, want 1", n)
	}

	if _, err := c.CreateCampaign(ctx, "tok", CreateCampaignRequest{Name: "Next"}); err != nil {
		t.Fatalf("CreateCampaign() error = %v", err)
	}

	c.GetCampaigns(ctx, "tok")
	if n := listCalls.Load(); n != 2 {
		t.Errorf("list calls after mutation = %d, want 2 (cache invalidated)", n)
	}
}

func TestCreateCampaignOmitsEmptyDescription(t *testing.T) {
	var body string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		json.NewEncoder(w).Encode(Campaign{ID: "c1", Name: "Launch"})
	}))

	if _, err := c.CreateCampaign(context.Background(), "tok", CreateCampaignRequest{Name: "Launch"}); err != nil {
		t.Fatalf("CreateCampaign() error = %v", err)
	}

	if strings.Contains(body, "description") {
		t.Errorf("empty description serialized in body %s", body)
	}
	if !strings.Contains(body, `"name":"Launch"`) {
		t.Errorf("body missing name: %s", body)
	}
}

func TestTriggerNowSuccessFalseIsNotAnError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(TriggerResponse{Success: false, Error: "SMTP timeout"})
	}))

	resp, err := c.TriggerNow(context.Background(), "tok", "c1", "r1")
	if err != nil {
		t.Fatalf("TriggerNow() error = %v, want nil (success:false is a normal response)", err)
	}
	if resp.Success {
		t.Error("Success = true, want false")
	}
	if resp.Error != "SMTP timeout" {
		t.Errorf("Error = %q, want %q", resp.Error, "SMTP timeout")
	}
}

func TestQuotaErrorIsDistinguished(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(ErrorBody{Error: "Monthly email limit reached", PlanLimit: 100, CurrentCount: 100})
	}))

	_, err := c.AddRecipient(context.Background(), "tok", "c1", AddRecipientRequest{Email: "a@b.c"})
	apiErr := AsAPIError(err)
	if apiErr == nil {
		t.Fatalf("error %v is not an *APIError", err)
	}
	if !apiErr.IsQuota() {
		t.Error("IsQuota() = false for 403 with planLimit")
	}
	if apiErr.Body.PlanLimit != 100 || apiErr.Body.CurrentCount != 100 {
		t.Errorf("quota fields = %d/%d, want 100/100", apiErr.Body.PlanLimit, apiErr.Body.CurrentCount)
	}
}

func TestBare403IsGenericError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(ErrorBody{Error: "not your campaign"})
	}))

	err := c.DeleteCampaign(context.Background(), "tok", "c1")
	apiErr := AsAPIError(err)
	if apiErr == nil {
		t.Fatalf("error %v is not an *APIError", err)
	}
	if apiErr.IsQuota() {
		t.Error("IsQuota() = true for 403 without quota fields")
	}
	if apiErr.UserMessage() != "not your campaign" {
		t.Errorf("UserMessage() = %q", apiErr.UserMessage())
	}
}

func TestTransportFailureIsNotAPIError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 200*time.Millisecond, testLogger())

	_, err := c.GetUserProfile(context.Background(), "tok")
	if err == nil {
		t.Fatal("expected transport error")
	}
	if AsAPIError(err) != nil {
		t.Errorf("transport failure decoded as *APIError: %v", err)
	}
}

func TestLogoutDropsUserScope(t *testing.T) {
	var profileCalls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/user/profile":
			profileCalls.Add(1)
			json.NewEncoder(w).Encode(User{ID: "u1"})
		case "/api/auth/logout":
			json.NewEncoder(w).Encode(MessageResponse{Message: "bye"})
		}
	}))

	ctx := context.Background()
	c.GetUserProfile(ctx, "tok")
	if err := c.Logout(ctx, "tok"); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	c.GetUserProfile(ctx, "tok")

	if n := profileCalls.Load(); n != 2 {
		t.Errorf("profile calls = %d, want 2 (scope dropped on logout)", n)
	}
}

func TestUploadRecipientsMultipart(t *testing.T) {
	var contentType, filename string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		f, hdr, err := r.FormFile("file")
		if err == nil {
			filename = hdr.Filename
			f.Close()
		}
		json.NewEncoder(w).Encode(UploadResult{Success: true, Message: "2 recipients added"})
	}))

	res, err := c.UploadRecipients(context.Background(), "tok", "c1", "list.xlsx", strings.NewReader("fake"))
	if err != nil {
		t.Fatalf("UploadRecipients() error = %v", err)
	}
	if !res.Success {
		t.Error("Success = false")
	}
	if !strings.HasPrefix(contentType, "multipart/form-data") {
		t.Errorf("Content-Type = %q, want multipart", contentType)
	}
	if filename != "list.xlsx" {
		t.Errorf("filename = %q, want list.xlsx", filename)
	}
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
