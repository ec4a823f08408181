package http

import (
	"net/http"

	applog "sitecost/internal/log"
	"sitecost/internal/settings"
)

type settingsResponse struct {
	settings.Profile
	DriveReady bool `json:"driveReady"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	p, err := s.settings.Profile(r.Context())
	if err != nil {
		s.fail(w, r, applog.OpRead, err, false)
		return
	}
	NewJSONResponse().Body(settingsResponse{Profile: p, DriveReady: s.ledger.Status().Ready}).Write(w)
}

// handlePutSettings saves the profile and, when given, a new passphrase. The
// current passphrase must accompany the request once one is set. Drive
// readiness is re-evaluated against the merged credentials.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.settings.VerifyPassphrase(ctx, passphraseFrom(r)); err != nil {
		s.fail(w, r, applog.OpValidate, err, false)
		return
	}
	var in settingsInput
	if err := decodeJSON(r, &in); err != nil {
		s.fail(w, r, applog.OpParse, err, true)
		return
	}

	err := s.settings.SaveProfile(ctx, settings.Profile{
		ProjectName:    sanitizeInput(in.ProjectName),
		GoogleClientID: sanitizeInput(in.GoogleClientID),
		GoogleAPIKey:   sanitizeInput(in.GoogleAPIKey),
	})
	if err != nil {
		s.fail(w, r, applog.OpUpdate, err, false)
		return
	}
	if in.Passphrase != nil {
		if err := s.settings.SetPassphrase(ctx, *in.Passphrase); err != nil {
			s.fail(w, r, applog.OpUpdate, err, false)
			return
		}
	}

	creds, err := s.settings.Credentials(ctx, s.defaults)
	if err != nil {
		s.fail(w, r, applog.OpRead, err, false)
		return
	}
	if err := s.ledger.Initialize(creds); err != nil {
		s.logger.WarnContext(ctx, "Drive credentials incomplete", applog.FieldError, err.Error())
	}

	p, err := s.settings.Profile(ctx)
	if err != nil {
		s.fail(w, r, applog.OpRead, err, false)
		return
	}
	NewJSONResponse().Body(settingsResponse{Profile: p, DriveReady: s.ledger.Status().Ready}).Write(w)
}
