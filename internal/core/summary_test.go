package core

import (
	"fmt"
	"testing"
)

func TestSummarize_SingleCategory(t *testing.T) {
	budgets := []Budget{{Category: "Vật tư", Amount: 20000}}
	txs := []Transaction{
		{ID: "1", Date: NewDate(2025, 10, 24), Type: Expense, Category: "Vật tư", Amount: 2500},
	}

	s := Summarize(txs, budgets, Filter{})
	u, ok := s.UsageFor("Vật tư")
	if !ok {
		t.Fatal("expected usage line for Vật tư")
	}
	if u.Spent != 2500 || u.Remaining != 17500 || u.OverBudget {
		t.Fatalf("unexpected usage: %+v", u)
	}
	if u.Percent != 12.5 {
		t.Fatalf("expected 12.5%%, got %v", u.Percent)
	}
	if s.TotalExpense != 2500 || s.Balance != -2500 {
		t.Fatalf("unexpected totals: %+v", s)
	}
}

func TestSummarize_OverBudgetAndIncome(t *testing.T) {
	budgets := []Budget{
		{Category: "Cơ giới", Amount: 800},
		{Category: "Chi phí khác", Amount: 0},
	}
	txs := []Transaction{
		{ID: "1", Date: NewDate(2025, 10, 25), Type: Expense, Category: "Cơ giới", Amount: 500},
		{ID: "2", Date: NewDate(2025, 10, 26), Type: Expense, Category: "Cơ giới", Amount: 400},
		{ID: "3", Date: NewDate(2025, 10, 26), Type: Income, Category: "Thu từ ứng tiền", Amount: 10000},
		{ID: "4", Date: NewDate(2025, 10, 27), Type: Expense, Category: "Chi phí khác", Amount: 10},
	}
	s := Summarize(txs, budgets, Filter{Year: 2025, Month: 10})

	mech, _ := s.UsageFor("Cơ giới")
	if !mech.OverBudget || mech.Remaining != 0 || mech.Spent != 900 {
		t.Fatalf("unexpected Cơ giới usage: %+v", mech)
	}
	other, _ := s.UsageFor("Chi phí khác")
	if other.Percent != 0 || !other.OverBudget {
		t.Fatalf("zero budget should report 0%% and over budget: %+v", other)
	}
	if s.TotalIncome != 10000 || s.TotalExpense != 910 || s.Balance != 9090 {
		t.Fatalf("unexpected totals: income=%v expense=%v balance=%v", s.TotalIncome, s.TotalExpense, s.Balance)
	}
}

func TestSummarize_FilterAndShares(t *testing.T) {
	budgets := []Budget{{Category: "A", Amount: 300}, {Category: "B", Amount: 100}}
	txs := []Transaction{
		{ID: "1", Date: NewDate(2025, 1, 5), Type: Expense, Category: "A", Amount: 10},
		{ID: "2", Date: NewDate(2025, 2, 5), Type: Expense, Category: "A", Amount: 20},
		{ID: "3", Date: NewDate(2024, 1, 5), Type: Expense, Category: "A", Amount: 40},
	}

	cases := []struct {
		f    Filter
		want float64
	}{
		{Filter{}, 70},
		{Filter{Year: 2025}, 30},
		{Filter{Month: 1}, 50},
		{Filter{Year: 2025, Month: 2}, 20},
		{Filter{Year: 2023}, 0},
	}
	for _, tc := range cases {
		s := Summarize(txs, budgets, tc.f)
		if s.TotalExpense != tc.want {
			t.Fatalf("filter %+v expected %v, got %v", tc.f, tc.want, s.TotalExpense)
		}
	}

	s := Summarize(nil, budgets, Filter{})
	if s.TotalBudget != 400 || s.Shares[0].Percent != 75 || s.Shares[1].Percent != 25 {
		t.Fatalf("unexpected shares: %+v total=%v", s.Shares, s.TotalBudget)
	}
}

func TestSummarize_RecentSortedAndCapped(t *testing.T) {
	var txs []Transaction
	for day := 1; day <= 15; day++ {
		txs = append(txs, Transaction{ID: fmt.Sprint(day), Date: NewDate(2025, 3, day), Type: Expense, Category: "A", Amount: 1})
	}
	s := Summarize(txs, nil, Filter{})
	if len(s.RecentExpenses) != 10 {
		t.Fatalf("expected 10 recent expenses, got %d", len(s.RecentExpenses))
	}
	if s.RecentExpenses[0].ID != "15" || s.RecentExpenses[9].ID != "6" {
		t.Fatalf("expected newest first, got first=%s last=%s", s.RecentExpenses[0].ID, s.RecentExpenses[9].ID)
	}
	if len(s.RecentIncomes) != 0 {
		t.Fatalf("expected no incomes, got %d", len(s.RecentIncomes))
	}
}

func TestSummarize_DecimalAccumulation(t *testing.T) {
	budgets := []Budget{{Category: "A", Amount: 1}}
	txs := []Transaction{
		{ID: "1", Date: NewDate(2025, 1, 1), Type: Expense, Category: "A", Amount: 0.1},
		{ID: "2", Date: NewDate(2025, 1, 1), Type: Expense, Category: "A", Amount: 0.2},
	}
	s := Summarize(txs, budgets, Filter{})
	if s.TotalExpense != 0.3 {
		t.Fatalf("expected exact 0.3, got %v", s.TotalExpense)
	}
}
