package google

import (
	"testing"

	"github.com/shopspring/decimal"

	"risparmi/internal/core"
)

func TestRowValues(t *testing.T) {
	tx := core.Transaction{
		ID:          "abc",
		Amount:      decimal.RequireFromString("1234.5"),
		Description: "Rent",
		Date:        core.NewDate(2024, 2, 29),
		Kind:        core.Expense,
	}
	got := rowValues(tx)
	want := []any{"abc", "2024-02-29", "Rent", "EXPENSE", "1234.50"}
	if len(got) != len(want) {
		t.Fatalf("got %d columns, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("column %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFindRowIndex(t *testing.T) {
	values := [][]any{{"ID"}, {"a"}, {}, {" b "}}
	tests := []struct {
		id   string
		want int
	}{
		{"a", 2},
		{"b", 4},
		{"missing", 0},
	}
	for _, tt := range tests {
		if got := findRowIndex(values, tt.id); got != tt.want {
			t.Errorf("findRowIndex(%q) = %d, want %d", tt.id, got, tt.want)
		}
	}
}

func TestParseArchiveRows_SkipsHeaderAndBrokenRows(t *testing.T) {
	values := [][]any{
		{"ID", "Date", "Description", "Kind", "Amount"},
		{"1", "2024-05-01", "Salary", "INCOME", "3,000.00"},
		{"2", "not a date", "Rent", "EXPENSE", "900"},
		{"3", "2024-05-02", "Rent", "EXPENSE", 900.5},
		{"4", "2024-05-03", "Short row"},
		{"5", "2024-05-04", "Gift", "TRANSFER", "10"},
	}
	got := parseArchiveRows(values)
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d: %+v", len(got), got)
	}
	if got[0].ID != "1" || !got[0].Amount.Equal(decimal.NewFromInt(3000)) || got[0].Kind != core.Income {
		t.Errorf("unexpected first row %+v", got[0])
	}
	if got[1].ID != "3" || !got[1].Amount.Equal(decimal.RequireFromString("900.5")) {
		t.Errorf("unexpected second row %+v", got[1])
	}
}
