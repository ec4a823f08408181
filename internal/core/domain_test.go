package core

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
)

func TestDateJSON(t *testing.T) {
	d := NewDate(2025, 10, 24)
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `"2025-10-24"` {
		t.Fatalf("unexpected json %s", b)
	}

	var got Date
	if err := json.Unmarshal([]byte(`"2025-10-24T08:30:00.000Z"`), &got); err != nil {
		t.Fatalf("unmarshal timestamp: %v", err)
	}
	if !got.Equal(d.Time) {
		t.Fatalf("expected %v, got %v", d, got)
	}

	if err := json.Unmarshal([]byte(`"24/10/2025"`), &got); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		ID:       "1",
		Date:     NewDate(2025, 10, 24),
		Type:     Expense,
		Merchant: "Steel Supplier Inc",
		Category: "Vật tư",
		Amount:   2500,
		Currency: "USD",
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	zeroOK := good
	zeroOK.Amount = 0
	if err := zeroOK.Validate(); err != nil {
		t.Fatalf("zero amount should be accepted, got %v", err)
	}

	cases := []struct {
		name string
		mut  func(*Transaction)
		want error
	}{
		{"empty id", func(tx *Transaction) { tx.ID = " " }, ErrEmptyID},
		{"zero date", func(tx *Transaction) { tx.Date = Date{} }, ErrInvalidDate},
		{"bad type", func(tx *Transaction) { tx.Type = "REFUND" }, ErrInvalidType},
		{"negative amount", func(tx *Transaction) { tx.Amount = -1 }, ErrInvalidAmount},
		{"infinite amount", func(tx *Transaction) { tx.Amount = math.Inf(1) }, ErrInvalidAmount},
		{"NaN amount", func(tx *Transaction) { tx.Amount = math.NaN() }, ErrInvalidAmount},
		{"empty category", func(tx *Transaction) { tx.Category = "" }, ErrEmptyCategory},
		{"long description", func(tx *Transaction) { tx.Description = strings.Repeat("x", 501) }, ErrDescriptionSize},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx := good
			tc.mut(&tx)
			if err := tx.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestBudgetValidate(t *testing.T) {
	if err := (Budget{Category: "Vật tư", Amount: 20000}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	for _, amount := range []float64{-1, math.Inf(1), math.NaN()} {
		if err := (Budget{Category: "Vật tư", Amount: amount}).Validate(); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("amount %v: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestTransactionNormalize(t *testing.T) {
	tx := Transaction{Merchant: "  A  ", Category: " Vật tư "}.Normalize()
	if tx.ID == "" {
		t.Fatal("expected generated id")
	}
	if tx.Currency != DefaultCurrency {
		t.Fatalf("expected default currency, got %q", tx.Currency)
	}
	if tx.Merchant != "A" || tx.Category != "Vật tư" {
		t.Fatalf("expected trimmed fields, got %+v", tx)
	}

	keep := Transaction{ID: "abc", Currency: "VND"}.Normalize()
	if keep.ID != "abc" || keep.Currency != "VND" {
		t.Fatalf("normalize overwrote provided values: %+v", keep)
	}
}

func TestSnapshotJSONShape(t *testing.T) {
	raw := `{"transactions":[{"id":"1","date":"2025-10-24","type":"EXPENSE","merchant":"m","category":"Vật tư","amount":2500,"currency":"USD","description":"d","receiptUrl":"https://drive.google.com/uc?id=abc","driveFileId":"abc"}],"budgets":[{"category":"Vật tư","amount":20000}],"lastUpdated":"2025-10-24T10:00:00.000Z"}`
	var s Snapshot
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(s.Transactions) != 1 || s.Transactions[0].DriveFileID != "abc" {
		t.Fatalf("unexpected transactions: %+v", s.Transactions)
	}
	if len(s.Budgets) != 1 || s.Budgets[0].Amount != 20000 {
		t.Fatalf("unexpected budgets: %+v", s.Budgets)
	}
	if s.LastUpdated.IsZero() {
		t.Fatal("expected lastUpdated")
	}
}

func TestSnapshotClone(t *testing.T) {
	s := Snapshot{Budgets: []Budget{{Category: "A", Amount: 1}}}
	c := s.Clone()
	c.Budgets[0].Amount = 99
	if s.Budgets[0].Amount != 1 {
		t.Fatal("clone shares backing array with original")
	}
}
