package http

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"sitecost/internal/core"
	applog "sitecost/internal/log"
)

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(s.ledger.Snapshot()).Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	NewJSONResponse().Body(s.ledger.Summary(f)).Write(w)
}

// handleCategories lists the fixed form categories plus any budget lines
// added at runtime.
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	expense := append([]string(nil), core.ExpenseCategories...)
	known := make(map[string]bool, len(expense))
	for _, c := range expense {
		known[c] = true
	}
	for _, b := range s.ledger.Snapshot().Budgets {
		if !known[b.Category] {
			expense = append(expense, b.Category)
			known[b.Category] = true
		}
	}
	NewJSONResponse().Body(map[string][]string{
		"expense": expense,
		"income":  core.IncomeCategories,
	}).Write(w)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, ok := s.ledger.Transaction(chi.URLParam(r, "id"))
	if !ok {
		NotFoundError("transaction not found").Write(w)
		return
	}
	NewJSONResponse().Body(tx).Write(w)
}

// handleSaveTransaction creates or edits a transaction. Editing an existing
// id is gated by the shared passphrase, and keeps the stored receipt unless
// the request brings a new one.
func (s *Server) handleSaveTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tx, receipt, err := ParseTransactionRequest(w, r)
	if err != nil {
		s.fail(w, r, applog.OpParse, err, true)
		return
	}

	if tx.ID != "" {
		if prev, exists := s.ledger.Transaction(tx.ID); exists {
			if err := s.settings.VerifyPassphrase(ctx, passphraseFrom(r)); err != nil {
				s.fail(w, r, applog.OpValidate, err, false)
				return
			}
			if receipt == nil && tx.ReceiptURL == "" {
				tx.ReceiptURL, tx.DriveFileID = prev.ReceiptURL, prev.DriveFileID
			}
		}
	}

	res, err := s.ledger.SaveTransaction(ctx, tx, receipt)
	if err != nil {
		s.fail(w, r, applog.OpCreate, err, false)
		return
	}
	saved := res.Transaction
	s.events.LogTransactionSaved(ctx, saved.ID, string(saved.Type), saved.Category, saved.Amount, res.Created, saved.DriveFileID)

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	NewJSONResponse().Status(status).Body(res).Write(w)
}

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	category, amount, err := ParseBudgetRequest(r)
	if err != nil {
		s.fail(w, r, applog.OpParse, err, true)
		return
	}
	snap, err := s.ledger.AddCategory(r.Context(), category, amount)
	if err != nil {
		s.fail(w, r, applog.OpCreate, err, false)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(snap).Write(w)
}

// handleUpdateBudget takes the category from the path; a category in the
// body, if any, is ignored.
func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	category, err := url.PathUnescape(chi.URLParam(r, "category"))
	if err != nil {
		BadRequestError("invalid category").Write(w)
		return
	}
	_, amount, err := ParseBudgetRequest(r)
	if err != nil {
		s.fail(w, r, applog.OpParse, err, true)
		return
	}
	snap, err := s.ledger.UpdateBudget(r.Context(), category, amount)
	if err != nil {
		s.fail(w, r, applog.OpUpdate, err, false)
		return
	}
	NewJSONResponse().Body(snap).Write(w)
}
