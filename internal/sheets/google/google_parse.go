package google

import (
	"fmt"
	"strings"

	"risparmi/internal/core"
)

// Archive columns: A id, B date, C description, D kind, E amount.
func rowValues(tx core.Transaction) []any {
	return []any{tx.ID, tx.Date.String(), tx.Description, string(tx.Kind), tx.Amount.StringFixed(2)}
}

func findRowIndex(values [][]any, id string) int {
	id = strings.TrimSpace(id)
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == id {
			return i + 1
		}
	}
	return 0
}

// parseArchiveRows skips the header and anything that no longer parses, so a
// hand-edited sheet never breaks listing.
func parseArchiveRows(values [][]any) []core.Transaction {
	var out []core.Transaction
	for _, row := range values {
		cols := toStrings(row)
		if len(cols) < 5 {
			continue
		}
		date, err := core.ParseDate(cols[1])
		if err != nil {
			continue
		}
		kind, err := core.ParseKind(cols[3])
		if err != nil {
			continue
		}
		amount, err := core.ParseAmount(strings.ReplaceAll(cols[4], ",", ""))
		if err != nil {
			continue
		}
		tx := core.Transaction{ID: cols[0], Date: date, Description: cols[2], Kind: kind, Amount: amount}
		if tx.Validate() != nil {
			continue
		}
		out = append(out, tx)
	}
	return out
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}
