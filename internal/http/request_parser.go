package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"sitecost/internal/core"
	"sitecost/internal/services"
)

const (
	maxJSONBody     = 1 << 20
	maxReceiptBytes = 10 << 20
	receiptField    = "receipt"
)

var errBadFilter = errors.New("month must be 1-12 or all, year must be a number or all")

// ParseFilter reads month/year query parameters. Empty or "all" selects
// every period.
func ParseFilter(query url.Values) (core.Filter, error) {
	var f core.Filter
	month, err := filterPart(query.Get("month"))
	if err != nil || month < 0 || month > 12 {
		return core.Filter{}, errBadFilter
	}
	year, err := filterPart(query.Get("year"))
	if err != nil || year < 0 {
		return core.Filter{}, errBadFilter
	}
	f.Month, f.Year = month, year
	return f, nil
}

func filterPart(v string) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, "all") {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// amountField accepts both JSON numbers and user-typed strings such as "12,5".
type amountField struct {
	value float64
	set   bool
}

func (a *amountField) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var raw string
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
	} else {
		raw = string(b)
	}
	v, err := core.ParseAmount(raw)
	if err != nil {
		return err
	}
	a.value, a.set = v, true
	return nil
}

// transactionInput is the wire shape of a transaction save request.
type transactionInput struct {
	ID          string      `json:"id"`
	Date        string      `json:"date"`
	Type        string      `json:"type"`
	Merchant    string      `json:"merchant"`
	Category    string      `json:"category"`
	Amount      amountField `json:"amount"`
	Currency    string      `json:"currency"`
	Description string      `json:"description"`
	ReceiptURL  string      `json:"receiptUrl"`
	DriveFileID string      `json:"driveFileId"`
}

func (in transactionInput) transaction() (core.Transaction, error) {
	if !in.Amount.set {
		return core.Transaction{}, core.ErrInvalidAmount
	}
	date, err := core.ParseDate(in.Date)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		ID:          strings.TrimSpace(in.ID),
		Date:        date,
		Type:        core.TransactionType(strings.ToUpper(strings.TrimSpace(in.Type))),
		Merchant:    sanitizeInput(in.Merchant),
		Category:    sanitizeInput(in.Category),
		Amount:      in.Amount.value,
		Currency:    strings.ToUpper(strings.TrimSpace(in.Currency)),
		Description: sanitizeInput(in.Description),
		ReceiptURL:  strings.TrimSpace(in.ReceiptURL),
		DriveFileID: strings.TrimSpace(in.DriveFileID),
	}, nil
}

// ParseTransactionRequest decodes a JSON body, or a multipart form with an
// optional receipt file part.
func ParseTransactionRequest(w http.ResponseWriter, r *http.Request) (core.Transaction, *services.Receipt, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return parseMultipartTransaction(w, r)
	}

	var in transactionInput
	if err := decodeJSON(r, &in); err != nil {
		return core.Transaction{}, nil, err
	}
	tx, err := in.transaction()
	return tx, nil, err
}

func parseMultipartTransaction(w http.ResponseWriter, r *http.Request) (core.Transaction, *services.Receipt, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxReceiptBytes+maxJSONBody)
	if err := r.ParseMultipartForm(maxReceiptBytes); err != nil {
		return core.Transaction{}, nil, fmt.Errorf("invalid multipart form: %w", err)
	}
	in := transactionInput{
		ID:          r.FormValue("id"),
		Date:        r.FormValue("date"),
		Type:        r.FormValue("type"),
		Merchant:    r.FormValue("merchant"),
		Category:    r.FormValue("category"),
		Currency:    r.FormValue("currency"),
		Description: r.FormValue("description"),
		ReceiptURL:  r.FormValue("receiptUrl"),
		DriveFileID: r.FormValue("driveFileId"),
	}
	if raw := r.FormValue("amount"); raw != "" {
		v, err := core.ParseAmount(raw)
		if err != nil {
			return core.Transaction{}, nil, err
		}
		in.Amount = amountField{value: v, set: true}
	}
	tx, err := in.transaction()
	if err != nil {
		return core.Transaction{}, nil, err
	}

	file, header, err := r.FormFile(receiptField)
	if errors.Is(err, http.ErrMissingFile) {
		return tx, nil, nil
	}
	if err != nil {
		return core.Transaction{}, nil, fmt.Errorf("read receipt: %w", err)
	}
	defer file.Close()
	body, err := io.ReadAll(io.LimitReader(file, maxReceiptBytes+1))
	if err != nil {
		return core.Transaction{}, nil, fmt.Errorf("read receipt: %w", err)
	}
	if len(body) > maxReceiptBytes {
		return core.Transaction{}, nil, errReceiptTooLarge
	}
	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(body)
	}
	return tx, &services.Receipt{
		Name:     header.Filename,
		MimeType: mimeType,
		Content:  bytes.NewReader(body),
	}, nil
}

var errReceiptTooLarge = errors.New("receipt exceeds 10 MB")

// budgetInput is the body of budget create/update requests.
type budgetInput struct {
	Category string      `json:"category"`
	Amount   amountField `json:"amount"`
}

func ParseBudgetRequest(r *http.Request) (string, float64, error) {
	var in budgetInput
	if err := decodeJSON(r, &in); err != nil {
		return "", 0, err
	}
	if !in.Amount.set {
		return "", 0, core.ErrInvalidAmount
	}
	return sanitizeInput(in.Category), in.Amount.value, nil
}

// settingsInput is the body of PUT /api/settings. A nil Passphrase leaves the
// gate unchanged; an empty one removes it.
type settingsInput struct {
	ProjectName    string  `json:"projectName"`
	GoogleClientID string  `json:"googleClientId"`
	GoogleAPIKey   string  `json:"googleApiKey"`
	Passphrase     *string `json:"passphrase"`
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		if errors.Is(err, core.ErrInvalidAmount) {
			return core.ErrInvalidAmount
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

var errEmptyBody = errors.New("request body is empty")

// sanitizeInput drops control characters other than tab and newlines and
// trims surrounding whitespace.
func sanitizeInput(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s))
}

func passphraseFrom(r *http.Request) string {
	return r.Header.Get(headerPassphrase)
}

const headerPassphrase = "X-Passphrase"
