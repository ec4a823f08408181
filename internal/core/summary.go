package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

const recentLimit = 10

// Filter is the month/year slicer. Zero values mean "all".
type Filter struct {
	Year  int
	Month int // 1-12
}

func (f Filter) Matches(tx Transaction) bool {
	if f.Year != 0 && tx.Date.Year() != f.Year {
		return false
	}
	if f.Month != 0 && tx.Date.Month() != f.Month {
		return false
	}
	return true
}

// BudgetUsage is the actual-vs-budget line for one category.
type BudgetUsage struct {
	Category   string  `json:"category"`
	Budget     float64 `json:"budget"`
	Spent      float64 `json:"spent"`
	Remaining  float64 `json:"remaining"`
	Percent    float64 `json:"percent"`
	OverBudget bool    `json:"isOverBudget"`
}

// BudgetShare is a category's slice of the total allocation.
type BudgetShare struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
	Percent  float64 `json:"percent"`
}

// Summary is the dashboard view over a filtered transaction list.
type Summary struct {
	Filter         Filter        `json:"-"`
	TotalIncome    float64       `json:"totalIncome"`
	TotalExpense   float64       `json:"totalExpense"`
	Balance        float64       `json:"balance"`
	TotalBudget    float64       `json:"totalBudget"`
	Usage          []BudgetUsage `json:"usage"`
	Shares         []BudgetShare `json:"shares"`
	RecentExpenses []Transaction `json:"recentExpenses"`
	RecentIncomes  []Transaction `json:"recentIncomes"`
}

// Summarize aggregates transactions against budgets for the given slicer.
// Budget lines follow the order of budgets; expenses in categories without a
// budget count toward totals only.
func Summarize(transactions []Transaction, budgets []Budget, f Filter) Summary {
	var (
		income, expense decimal.Decimal
		spent           = map[string]decimal.Decimal{}
		expenses        []Transaction
		incomes         []Transaction
	)
	for _, tx := range transactions {
		if !f.Matches(tx) {
			continue
		}
		amt := decimal.NewFromFloat(tx.Amount)
		switch tx.Type {
		case Expense:
			expense = expense.Add(amt)
			spent[tx.Category] = spent[tx.Category].Add(amt)
			expenses = append(expenses, tx)
		case Income:
			income = income.Add(amt)
			incomes = append(incomes, tx)
		}
	}

	var total decimal.Decimal
	for _, b := range budgets {
		total = total.Add(decimal.NewFromFloat(b.Amount))
	}

	hundred := decimal.NewFromInt(100)
	usage := make([]BudgetUsage, 0, len(budgets))
	shares := make([]BudgetShare, 0, len(budgets))
	for _, b := range budgets {
		alloc := decimal.NewFromFloat(b.Amount)
		s := spent[b.Category]
		remaining := alloc.Sub(s)
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}
		var pct decimal.Decimal
		if alloc.IsPositive() {
			pct = s.Div(alloc).Mul(hundred).Round(1)
		}
		usage = append(usage, BudgetUsage{
			Category:   b.Category,
			Budget:     alloc.InexactFloat64(),
			Spent:      s.InexactFloat64(),
			Remaining:  remaining.InexactFloat64(),
			Percent:    pct.InexactFloat64(),
			OverBudget: s.GreaterThan(alloc),
		})

		var share decimal.Decimal
		if total.IsPositive() {
			share = alloc.Div(total).Mul(hundred).Round(1)
		}
		shares = append(shares, BudgetShare{
			Category: b.Category,
			Amount:   alloc.InexactFloat64(),
			Percent:  share.InexactFloat64(),
		})
	}

	return Summary{
		Filter:         f,
		TotalIncome:    income.InexactFloat64(),
		TotalExpense:   expense.InexactFloat64(),
		Balance:        income.Sub(expense).InexactFloat64(),
		TotalBudget:    total.InexactFloat64(),
		Usage:          usage,
		Shares:         shares,
		RecentExpenses: recent(expenses),
		RecentIncomes:  recent(incomes),
	}
}

// UsageFor returns the usage line for category, if budgeted.
func (s Summary) UsageFor(category string) (BudgetUsage, bool) {
	for _, u := range s.Usage {
		if u.Category == category {
			return u, true
		}
	}
	return BudgetUsage{}, false
}

func recent(in []Transaction) []Transaction {
	out := append([]Transaction{}, in...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date.Time)
	})
	if len(out) > recentLimit {
		out = out[:recentLimit]
	}
	return out
}
