package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mailward/web/internal/authtoken"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecoveryCatchesPanics(t *testing.T) {
	handler := Recovery(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestLoggerPassesThrough(t *testing.T) {
	handler := Logger(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/campaigns", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
}

func TestMethodOverride(t *testing.T) {
	var got string
	handler := MethodOverride(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Method
	}))

	form := url.Values{"_method": {"DELETE"}}
	req := httptest.NewRequest("POST", "/campaigns/c1", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got != http.MethodDelete {
		t.Errorf("method = %q, want DELETE", got)
	}
}

func TestRequireTokenRedirectsAnonymous(t *testing.T) {
	store, err := authtoken.Open(filepath.Join(t.TempDir(), "tokens.db"), false)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	var reached bool
	handler := RequireToken(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/campaigns", nil))

	if reached {
		t.Error("anonymous request reached the protected handler")
	}
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Errorf("redirect = %d %q, want 303 /login", rec.Code, rec.Header().Get("Location"))
	}
}

func TestRequireTokenAllowsAuthenticated(t *testing.T) {
	store, err := authtoken.Open(filepath.Join(t.TempDir(), "tokens.db"), false)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	// Persist a token, then replay the cookies it set.
	setRec := httptest.NewRecorder()
	if err := store.Set(setRec, httptest.NewRequest("GET", "/", nil), "tok-abc"); err != nil {
		t.Fatalf("set token: %v", err)
	}

	var reached bool
	handler := RequireToken(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	req := httptest.NewRequest("GET", "/campaigns", nil)
	for _, c := range setRec.Result().Cookies() {
		req.AddCookie(c)
	}
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !reached {
		t.Error("authenticated request did not reach the protected handler")
	}
}
