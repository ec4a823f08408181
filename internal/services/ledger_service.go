package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"sitecost/internal/auth"
	"sitecost/internal/core"
	"sitecost/internal/drive"
	"sitecost/internal/session"
	"sitecost/internal/state"
)

// defaultTokenLifetime is assumed when the grant carries no expiry.
const defaultTokenLifetime = time.Hour

var ErrNotReady = errors.New("drive client not initialized")

// Revoker invalidates a bearer token at the provider.
type Revoker interface {
	Revoke(ctx context.Context, token string) error
}

// Deps are the collaborators of a LedgerService. Granter, Revoker, Dispatcher
// and Notifier are optional.
type Deps struct {
	State      *state.Store
	Session    *session.Session
	Remote     drive.Remote
	Tokens     session.TokenStore
	Granter    auth.Granter
	Revoker    Revoker
	Dispatcher Dispatcher
	Notifier   Notifier
}

// LedgerService applies user mutations to the local store and mirrors them to
// the remote document.
type LedgerService struct {
	state      *state.Store
	session    *session.Session
	remote     drive.Remote
	tokens     session.TokenStore
	granter    auth.Granter
	revoker    Revoker
	dispatcher Dispatcher
	notifier   Notifier
	now        func() time.Time
}

// Receipt is an image attached to a transaction on save.
type Receipt struct {
	Name     string
	MimeType string
	Content  io.Reader
}

// SaveResult reports a saved transaction. Warning is set when the receipt
// could not be uploaded; the transaction is still saved.
type SaveResult struct {
	Transaction core.Transaction `json:"transaction"`
	Created     bool             `json:"created"`
	Warning     string           `json:"warning,omitempty"`
}

func NewLedgerService(d Deps) *LedgerService {
	s := &LedgerService{
		state:      d.State,
		session:    d.Session,
		remote:     d.Remote,
		tokens:     d.Tokens,
		granter:    d.Granter,
		revoker:    d.Revoker,
		dispatcher: d.Dispatcher,
		notifier:   d.Notifier,
		now:        time.Now,
	}
	if s.state == nil {
		s.state = state.NewSeeded()
	}
	if s.session == nil {
		s.session = session.New()
	}
	if s.notifier == nil {
		s.notifier = NopNotifier{}
	}
	if s.dispatcher == nil {
		s.dispatcher = NewInlineDispatcher(s.remote, s.notifier)
	}
	return s
}

// Initialize checks the credentials and marks the session ready. A
// *auth.ConfigError is returned, and readiness reset, when they are incomplete.
func (s *LedgerService) Initialize(creds auth.Credentials) error {
	if err := creds.Validate(); err != nil {
		s.session.ResetReadiness()
		return err
	}
	s.session.MarkAPIReady()
	s.session.MarkAuthReady()
	return nil
}

// AutoConnect restores a persisted token and, when that works, pulls once.
func (s *LedgerService) AutoConnect(ctx context.Context) bool {
	if s.tokens == nil || !s.session.TryAutoConnect(ctx, s.tokens) {
		return false
	}
	s.notify()
	if _, err := s.Pull(ctx); err != nil {
		slog.WarnContext(ctx, "Pull after auto-connect failed", "error", err)
	}
	return true
}

// Connect runs the interactive grant. Failures come back as *auth.AuthError
// and leave both the session and the local state untouched.
func (s *LedgerService) Connect(ctx context.Context) error {
	if !s.session.Ready() || s.granter == nil {
		return ErrNotReady
	}
	tok, err := s.granter.Grant(ctx)
	if err != nil {
		ae := auth.Classify(err)
		if ae.Benign() {
			slog.InfoContext(ctx, "Drive authorization cancelled")
		} else {
			slog.ErrorContext(ctx, "Drive authorization failed", "kind", ae.Kind, "code", ae.Code, "error", ae.Err)
		}
		return ae
	}
	if tok.Expiry.IsZero() {
		tok.Expiry = s.now().Add(defaultTokenLifetime)
	}
	if s.tokens != nil {
		if err := s.tokens.SaveToken(ctx, session.PersistedToken{AccessToken: tok.AccessToken, Expiry: tok.Expiry}); err != nil {
			slog.WarnContext(ctx, "Failed to persist drive token", "error", err)
		}
	}
	s.session.SetToken(tok)
	slog.InfoContext(ctx, "Drive connected", "expiry", tok.Expiry)
	s.notify()

	if _, err := s.Pull(ctx); err != nil {
		slog.WarnContext(ctx, "Pull after connect failed", "error", err)
	}
	return nil
}

// Disconnect revokes the active token and forgets it locally. Revocation
// failures are logged only.
func (s *LedgerService) Disconnect(ctx context.Context) error {
	if tok := s.session.Token(); tok != nil && s.revoker != nil {
		if err := s.revoker.Revoke(ctx, tok.AccessToken); err != nil {
			slog.WarnContext(ctx, "Token revocation failed", "error", err)
		}
	}
	s.session.Clear()
	var err error
	if s.tokens != nil {
		if cerr := s.tokens.ClearToken(ctx); cerr != nil {
			err = fmt.Errorf("clear persisted token: %w", cerr)
		}
	}
	slog.InfoContext(ctx, "Drive disconnected")
	s.notify()
	return err
}

// Pull replaces the local state with the remote snapshot, if there is one.
// It reports whether anything was applied.
func (s *LedgerService) Pull(ctx context.Context) (bool, error) {
	if s.remote == nil {
		return false, drive.ErrNotAuthenticated
	}
	snap, err := s.remote.Pull(ctx)
	if err != nil {
		return false, err
	}
	if snap == nil {
		slog.InfoContext(ctx, "No remote snapshot found")
		return false, nil
	}
	s.state.Replace(*snap)
	slog.InfoContext(ctx, "Applied remote snapshot",
		"transactions", len(snap.Transactions),
		"budgets", len(snap.Budgets),
		"last_updated", snap.LastUpdated)
	return true, nil
}

// SaveTransaction stores tx, uploading receipt first when connected. Without a
// connection the receipt is kept inline as a data URI.
func (s *LedgerService) SaveTransaction(ctx context.Context, tx core.Transaction, receipt *Receipt) (SaveResult, error) {
	tx = tx.Normalize()
	if err := tx.Validate(); err != nil {
		return SaveResult{}, err
	}

	var warning string
	if receipt != nil && receipt.Content != nil {
		body, err := io.ReadAll(receipt.Content)
		if err != nil {
			return SaveResult{}, fmt.Errorf("read receipt: %w", err)
		}
		switch {
		case s.session.Connected() && s.remote != nil:
			res, err := s.remote.UploadBlob(ctx, drive.Blob{Name: receipt.Name, MimeType: receipt.MimeType, Content: bytes.NewReader(body)})
			if err != nil {
				slog.ErrorContext(ctx, "Receipt upload failed", "transaction_id", tx.ID, "error", err)
				warning = "receipt upload failed; transaction saved without image"
			} else {
				tx.ReceiptURL = res.WebContentLink
				tx.DriveFileID = res.FileID
			}
		default:
			tx.ReceiptURL = drive.DataURI(receipt.MimeType, body)
		}
	}

	snap, created, err := s.state.SaveTransaction(tx)
	if err != nil {
		return SaveResult{}, err
	}
	saved, _ := s.state.Transaction(tx.ID)
	reason := "transaction_updated"
	if created {
		reason = "transaction_created"
	}
	s.push(ctx, snap, reason)
	return SaveResult{Transaction: saved, Created: created, Warning: warning}, nil
}

func (s *LedgerService) UpdateBudget(ctx context.Context, category string, amount float64) (core.Snapshot, error) {
	snap, err := s.state.UpdateBudget(category, amount)
	if err != nil {
		return core.Snapshot{}, err
	}
	s.push(ctx, snap, "budget_updated")
	return snap, nil
}

func (s *LedgerService) AddCategory(ctx context.Context, category string, amount float64) (core.Snapshot, error) {
	snap, err := s.state.AddCategory(category, amount)
	if err != nil {
		return core.Snapshot{}, err
	}
	s.push(ctx, snap, "category_added")
	return snap, nil
}

// FetchReceipt resolves a stored receipt reference to a servable URI.
func (s *LedgerService) FetchReceipt(ctx context.Context, ref string) (string, bool) {
	if drive.IsDirectURI(ref) {
		return ref, true
	}
	if s.remote == nil {
		return "", false
	}
	return s.remote.FetchPrivateBlob(ctx, ref)
}

func (s *LedgerService) Snapshot() core.Snapshot { return s.state.Snapshot() }

func (s *LedgerService) Summary(f core.Filter) core.Summary {
	snap := s.state.Snapshot()
	return core.Summarize(snap.Transactions, snap.Budgets, f)
}

func (s *LedgerService) Transaction(id string) (core.Transaction, bool) {
	return s.state.Transaction(id)
}

// Status is the connection state shown next to the sync indicator.
func (s *LedgerService) Status() Status {
	return Status{Ready: s.session.Ready(), Connected: s.session.Connected()}
}

func (s *LedgerService) Session() *session.Session { return s.session }

func (s *LedgerService) push(ctx context.Context, snap core.Snapshot, reason string) {
	if !s.session.Connected() {
		slog.DebugContext(ctx, "Skipping push while disconnected", "reason", reason)
		return
	}
	s.dispatcher.Dispatch(ctx, snap, reason)
}

func (s *LedgerService) notify() {
	s.notifier.Notify(Event{Type: EventStatus, Status: s.Status()})
}
