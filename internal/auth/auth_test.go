package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestCredentialsValidate(t *testing.T) {
	if err := (Credentials{ClientID: "id", APIKey: "key"}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	err := (Credentials{ClientID: " "}).Validate()
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ConfigError, got %v", err)
	}
	if len(ce.Missing) != 2 || !strings.Contains(err.Error(), "client id") {
		t.Fatalf("unexpected missing list: %v", ce.Missing)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"origin", &CallbackError{Code: "origin_mismatch"}, KindOriginMismatch},
		{"redirect", &oauth2.RetrieveError{ErrorCode: "redirect_uri_mismatch"}, KindOriginMismatch},
		{"closed", &CallbackError{Code: "popup_closed_by_user"}, KindCancelled},
		{"ctx cancel", context.Canceled, KindCancelled},
		{"timeout", fmt.Errorf("wait: %w", context.DeadlineExceeded), KindCancelled},
		{"denied", &CallbackError{Code: "access_denied"}, KindAccessDenied},
		{"other code", &CallbackError{Code: "server_error"}, KindUnknown},
		{"plain", errors.New("boom"), KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			if got.Kind != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got.Kind)
			}
			if got.Benign() != (tc.want == KindCancelled) {
				t.Fatalf("benign mismatch for %s", tc.want)
			}
			if !errors.Is(got, tc.err) && !errors.As(got, new(*CallbackError)) && !errors.As(got, new(*oauth2.RetrieveError)) {
				t.Fatalf("classified error lost its cause: %v", got)
			}
		})
	}
	if Classify(nil) != nil {
		t.Fatal("nil error must classify to nil")
	}
}

func TestGuidance(t *testing.T) {
	if Guidance(KindCancelled) != "" {
		t.Fatal("cancellation must have no guidance")
	}
	if !strings.Contains(Guidance(KindAccessDenied), "Access Denied") {
		t.Fatal("access denied guidance missing")
	}
	if !strings.Contains(Guidance(KindOriginMismatch), "Origin Mismatch") {
		t.Fatal("origin mismatch guidance missing")
	}
	if Guidance(KindUnknown) == "" {
		t.Fatal("unknown errors need a generic message")
	}
}

// browser follows the consent URL by calling the redirect directly.
func browser(t *testing.T, params func(state string) url.Values) func(string) error {
	return func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		q := u.Query()
		redirect := q.Get("redirect_uri")
		go func() {
			resp, err := http.Get(redirect + "?" + params(q.Get("state")).Encode())
			if err != nil {
				t.Errorf("callback: %v", err)
				return
			}
			resp.Body.Close()
		}()
		return nil
	}
}

func testConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID: "client",
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://accounts.example.com/o/oauth2/auth",
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: []string{Scope},
	}
}

func TestLoopbackGranter_Success(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "the-code" || r.Form.Get("code_verifier") == "" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"ya29.ok","token_type":"Bearer","expires_in":3600}`)
	}))
	defer tokenSrv.Close()

	g := &LoopbackGranter{
		Config:  testConfig(tokenSrv.URL),
		Addr:    "127.0.0.1:0",
		Timeout: 5 * time.Second,
		Prompt: browser(t, func(state string) url.Values {
			return url.Values{"state": {state}, "code": {"the-code"}}
		}),
	}
	tok, err := g.Grant(context.Background())
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if tok.AccessToken != "ya29.ok" || tok.Expiry.IsZero() {
		t.Fatalf("unexpected token: %+v", tok)
	}
}

func TestLoopbackGranter_AccessDenied(t *testing.T) {
	g := &LoopbackGranter{
		Config:  testConfig("http://127.0.0.1:1/token"),
		Addr:    "127.0.0.1:0",
		Timeout: 5 * time.Second,
		Prompt: browser(t, func(state string) url.Values {
			return url.Values{"state": {state}, "error": {"access_denied"}}
		}),
	}
	_, err := g.Grant(context.Background())
	var ae *AuthError
	if !errors.As(err, &ae) || ae.Kind != KindAccessDenied {
		t.Fatalf("expected access denied, got %v", err)
	}
}

func TestLoopbackGranter_Timeout(t *testing.T) {
	g := &LoopbackGranter{
		Config:  testConfig("http://127.0.0.1:1/token"),
		Addr:    "127.0.0.1:0",
		Timeout: 50 * time.Millisecond,
	}
	_, err := g.Grant(context.Background())
	var ae *AuthError
	if !errors.As(err, &ae) || !ae.Benign() {
		t.Fatalf("expected benign cancellation, got %v", err)
	}
}

func TestRevoker(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		got = r.Form.Get("token")
	}))
	defer srv.Close()

	r := Revoker{Client: srv.Client(), Endpoint: srv.URL}
	if err := r.Revoke(context.Background(), "tok"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if got != "tok" {
		t.Fatalf("expected token posted, got %q", got)
	}
	if err := r.Revoke(context.Background(), ""); err != nil {
		t.Fatalf("empty token should be a no-op, got %v", err)
	}
}
