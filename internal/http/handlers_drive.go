package http

import (
	"errors"
	"net/http"
	"strings"

	"sitecost/internal/auth"
	applog "sitecost/internal/log"
)

func (s *Server) handleDriveStatus(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(s.ledger.Status()).Write(w)
}

// handleDriveConnect blocks for the interactive grant. A user cancellation
// is not an error and answers 204.
func (s *Server) handleDriveConnect(w http.ResponseWriter, r *http.Request) {
	err := s.ledger.Connect(r.Context())
	var ae *auth.AuthError
	switch {
	case err == nil:
	case errors.As(err, &ae) && ae.Benign():
		NewJSONResponse().Status(http.StatusNoContent).Write(w)
		return
	default:
		s.fail(w, r, applog.OpConnect, err, false)
		return
	}
	s.receipts.Invalidate()
	NewJSONResponse().Body(s.ledger.Status()).Write(w)
}

func (s *Server) handleDriveDisconnect(w http.ResponseWriter, r *http.Request) {
	err := s.ledger.Disconnect(r.Context())
	s.receipts.Invalidate()
	if err != nil {
		// The session is already cleared; only local token cleanup failed.
		s.logger.WarnContext(r.Context(), "Disconnect incomplete", applog.FieldError, err.Error())
	}
	NewJSONResponse().Body(s.ledger.Status()).Write(w)
}

func (s *Server) handleDrivePull(w http.ResponseWriter, r *http.Request) {
	applied, err := s.ledger.Pull(r.Context())
	if err != nil {
		s.fail(w, r, applog.OpPull, err, false)
		return
	}
	NewJSONResponse().Body(map[string]any{
		"applied":  applied,
		"snapshot": s.ledger.Snapshot(),
	}).Write(w)
}

type receiptResponse struct {
	Available bool   `json:"available"`
	URI       string `json:"uri,omitempty"`
}

// handleReceipt resolves a stored receipt reference. Failures are reported
// as unavailable rather than as errors.
func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	ref := strings.TrimSpace(r.URL.Query().Get("ref"))
	if ref == "" {
		BadRequestError("ref is required").Write(w)
		return
	}
	uri, ok := s.receipts.Resolve(r.Context(), ref)
	NewJSONResponse().Body(receiptResponse{Available: ok, URI: uri}).Write(w)
}
