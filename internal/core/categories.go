package core

// Expense categories known to the receipt form. Budgets may add more at runtime.
var ExpenseCategories = []string{
	"Vật tư",
	"Cơ giới",
	"Nhân công",
	"Chi phí công trường",
	"Chi phí khác",
}

var IncomeCategories = []string{
	"Thu từ ứng tiền",
	"Thu thanh lý",
	"Thu khác",
}

// DefaultBudgets returns the starting allocation for a new project.
func DefaultBudgets() []Budget {
	return []Budget{
		{Category: "Vật tư", Amount: 20000},
		{Category: "Cơ giới", Amount: 8000},
		{Category: "Nhân công", Amount: 12000},
		{Category: "Chi phí công trường", Amount: 2000},
		{Category: "Chi phí khác", Amount: 1000},
	}
}
