package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	applog "sitecost/internal/log"
)

// Granter obtains a fresh bearer token interactively.
type Granter interface {
	Grant(ctx context.Context) (*oauth2.Token, error)
}

// LoopbackGranter runs the consent flow through a redirect listener on the
// local machine. The consent URL is handed to Prompt, which typically prints it
// or opens a browser.
type LoopbackGranter struct {
	Config  *oauth2.Config
	Addr    string // listen address, e.g. "localhost:8085"; port 0 picks a free port
	Timeout time.Duration
	Prompt  func(authURL string) error
}

type callbackResult struct {
	code string
	err  error
}

// Grant blocks until the redirect delivers a code or an error, ctx is done, or
// the timeout elapses. Every failure is returned as *AuthError.
func (g *LoopbackGranter) Grant(ctx context.Context) (*oauth2.Token, error) {
	if g.Config == nil {
		return nil, &AuthError{Kind: KindUnknown, Err: errors.New("oauth config not initialized")}
	}
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ln, err := net.Listen("tcp", g.Addr)
	if err != nil {
		return nil, &AuthError{Kind: KindUnknown, Err: fmt.Errorf("listen for oauth redirect: %w", err)}
	}

	cfg := *g.Config
	cfg.RedirectURL = "http://" + ln.Addr().String() + "/callback"

	state := randomState()
	verifier := oauth2.GenerateVerifier()
	results := make(chan callbackResult, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		var res callbackResult
		if code := q.Get("error"); code != "" {
			res.err = &CallbackError{Code: code, Description: q.Get("error_description")}
			http.Error(w, "OAuth error: "+code, http.StatusBadRequest)
		} else {
			res.code = q.Get("code")
			fmt.Fprintln(w, "You may close this window and return to the application.")
		}
		select {
		case results <- res:
		default:
		}
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := cfg.AuthCodeURL(state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.S256ChallengeOption(verifier))
	if g.Prompt != nil {
		if err := g.Prompt(authURL); err != nil {
			return nil, &AuthError{Kind: KindUnknown, Err: fmt.Errorf("show consent url: %w", err)}
		}
	}
	slog.Default().With(applog.FieldComponent, applog.ComponentAuth).
		InfoContext(ctx, "Waiting for drive authorization", "redirect_url", cfg.RedirectURL)

	select {
	case res := <-results:
		if res.err != nil {
			return nil, Classify(res.err)
		}
		tok, err := cfg.Exchange(ctx, res.code, oauth2.VerifierOption(verifier))
		if err != nil {
			return nil, Classify(fmt.Errorf("token exchange: %w", err))
		}
		return tok, nil
	case <-ctx.Done():
		return nil, Classify(ctx.Err())
	}
}

func randomState() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("state_%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
