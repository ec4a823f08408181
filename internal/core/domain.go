package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	Expense TransactionType = "EXPENSE"
	Income  TransactionType = "INCOME"
)

// DefaultCurrency is the currency stamped on transactions that do not carry one.
const DefaultCurrency = "USD"

const dateLayout = "2006-01-02"

type (
	TransactionType string

	// Date is a calendar day without a time component.
	Date struct {
		time.Time
	}

	Transaction struct {
		ID          string          `json:"id"`
		Date        Date            `json:"date"`
		Type        TransactionType `json:"type"`
		Merchant    string          `json:"merchant"`
		Category    string          `json:"category"`
		Amount      float64         `json:"amount"`
		Currency    string          `json:"currency"`
		Description string          `json:"description"`
		ReceiptURL  string          `json:"receiptUrl,omitempty"`
		DriveFileID string          `json:"driveFileId,omitempty"`
	}

	Budget struct {
		Category string  `json:"category"`
		Amount   float64 `json:"amount"`
	}

	// Snapshot is the unit of remote persistence: every push replaces the whole document.
	Snapshot struct {
		Transactions []Transaction `json:"transactions"`
		Budgets      []Budget      `json:"budgets"`
		LastUpdated  time.Time     `json:"lastUpdated"`
	}
)

var (
	ErrEmptyID         = errors.New("empty transaction id")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidType     = errors.New("invalid transaction type")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrEmptyCategory   = errors.New("empty category")
	ErrDescriptionSize = errors.New("description too long (max 500 characters)")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, string(b))
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	// Some documents carry a full timestamp; only the day matters.
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

func (t TransactionType) Valid() bool {
	return t == Expense || t == Income
}

// NewID returns a fresh opaque transaction id.
func NewID() string {
	return uuid.NewString()
}

func (tx Transaction) Validate() error {
	if strings.TrimSpace(tx.ID) == "" {
		return ErrEmptyID
	}
	if tx.Date.IsZero() {
		return ErrInvalidDate
	}
	if !tx.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, tx.Type)
	}
	if tx.Amount < 0 || !finite(tx.Amount) {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(tx.Category) == "" {
		return ErrEmptyCategory
	}
	if len(tx.Description) > 500 {
		return ErrDescriptionSize
	}
	return nil
}

// Normalize fills defaults for optional fields.
func (tx Transaction) Normalize() Transaction {
	tx.Merchant = strings.TrimSpace(tx.Merchant)
	tx.Category = strings.TrimSpace(tx.Category)
	tx.Description = strings.TrimSpace(tx.Description)
	if tx.Currency == "" {
		tx.Currency = DefaultCurrency
	}
	if tx.ID == "" {
		tx.ID = NewID()
	}
	return tx
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Category) == "" {
		return ErrEmptyCategory
	}
	if b.Amount < 0 || !finite(b.Amount) {
		return ErrInvalidAmount
	}
	return nil
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{LastUpdated: s.LastUpdated}
	if s.Transactions != nil {
		out.Transactions = append([]Transaction(nil), s.Transactions...)
	}
	if s.Budgets != nil {
		out.Budgets = append([]Budget(nil), s.Budgets...)
	}
	return out
}
