package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  Kind = "INCOME"
	Expense Kind = "EXPENSE"
)

const (
	ImpactLow    Impact = "Low"
	ImpactMedium Impact = "Medium"
	ImpactHigh   Impact = "High"
)

type (
	Kind string

	Impact string

	Date struct {
		time.Time
	}

	// Transaction is an immutable ledger row. Description doubles as the
	// expense category key.
	Transaction struct {
		ID          string          `json:"id"`
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
		Date        Date            `json:"date"`
		Kind        Kind            `json:"kind"`
	}

	// SavingsGoal is owned by the goal pool; callers only ever see copies.
	SavingsGoal struct {
		ID            string          `json:"id"`
		Name          string          `json:"name"`
		TargetAmount  decimal.Decimal `json:"target_amount"`
		CurrentAmount decimal.Decimal `json:"current_amount"`
	}

	SavingsTip struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Impact      Impact `json:"impact"`
		Actionable  bool   `json:"actionable"`
		Source      string `json:"source"`
	}

	RecommendedMethod struct {
		Title            string `json:"title"`
		Description      string `json:"description"`
		SuitabilityScore int    `json:"suitability_score"`
		Source           string `json:"source"`
	}
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrNetworkUnavailable = errors.New("network unavailable")

	ErrEmptyDescription = fmt.Errorf("%w: empty description", ErrInvalidArgument)
	ErrInvalidAmount    = fmt.Errorf("%w: invalid amount", ErrInvalidArgument)
	ErrInvalidKind      = fmt.Errorf("%w: invalid transaction kind", ErrInvalidArgument)
	ErrInvalidDate      = fmt.Errorf("%w: invalid date", ErrInvalidArgument)
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// MonthKey returns the YYYY-MM bucket the date falls in.
func (d Date) MonthKey() string {
	return d.Format("2006-01")
}

func (d Date) String() string {
	return d.Format(time.DateOnly)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	parsed, err := ParseDate(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// ParseKind accepts INCOME / EXPENSE case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToUpper(strings.TrimSpace(s))); k {
	case Income, Expense:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// ParseImpact normalises a free-form impact label. Unknown labels map to Low.
func ParseImpact(s string) Impact {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return ImpactHigh
	case "medium":
		return ImpactMedium
	default:
		return ImpactLow
	}
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidArgument)
	}
	if t.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(t.Description) == "" {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return fmt.Errorf("%w: description too long (max 200 characters)", ErrInvalidArgument)
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if t.Kind != Income && t.Kind != Expense {
		return ErrInvalidKind
	}
	return nil
}

// Progress returns current/target as a percentage, 0 for a zero target.
func (g SavingsGoal) Progress() float64 {
	if !g.TargetAmount.IsPositive() {
		return 0
	}
	return g.CurrentAmount.Div(g.TargetAmount).Mul(decimal.NewFromInt(100)).InexactFloat64()
}
