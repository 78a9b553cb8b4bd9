// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts typed by users
// and for rendering amounts and dates with an injected currency and locale.
package core

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var (
	plainNumber    = regexp.MustCompile(`^[0-9]*\.?[0-9]+$|^[0-9]+\.$`)
	mathExpression = regexp.MustCompile(`^[0-9+\-*/.() ]+$`)
)

// ParseAmount converts user input to a non-negative amount rounded half-up to
// two decimal places.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators, strips
// common currency symbols and evaluates simple arithmetic such as "19.99 * 2".
//
// Examples:
//
//	ParseAmount("12.34")     -> 12.34
//	ParseAmount("12,345")    -> 12.35 (half-up)
//	ParseAmount("$10 + 2.5") -> 12.50
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	for _, sym := range []string{"$", "€", "£", "¥"} {
		s = strings.ReplaceAll(s, sym, "")
	}
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}

	if plainNumber.MatchString(s) {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, ErrInvalidAmount
		}
		return d.Round(2), nil
	}

	if !mathExpression.MatchString(s) {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number or arithmetic expression", ErrInvalidAmount, s)
	}
	expr, err := govaluate.NewEvaluableExpression(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	result, err := expr.Evaluate(nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	f, ok := result.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, fmt.Errorf("%w: expression did not produce a finite number", ErrInvalidAmount)
	}
	d := decimal.NewFromFloat(f).Round(2)
	if d.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// Formatter renders amounts and dates for display. The zero value is not
// usable; build one with NewFormatter.
type Formatter struct {
	unit       currency.Unit
	printer    *message.Printer
	dateLayout string
}

// NewFormatter builds a formatter for an ISO 4217 currency code and a BCP 47
// locale tag. An empty dateLayout defaults to YYYY-MM-DD.
func NewFormatter(currencyCode, locale, dateLayout string) (*Formatter, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(currencyCode)))
	if err != nil {
		return nil, fmt.Errorf("parse currency %q: %w", currencyCode, err)
	}
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		return nil, fmt.Errorf("parse locale %q: %w", locale, err)
	}
	if dateLayout == "" {
		dateLayout = "2006-01-02"
	}
	return &Formatter{
		unit:       unit,
		printer:    message.NewPrinter(tag),
		dateLayout: dateLayout,
	}, nil
}

// Currency returns the ISO code the formatter renders.
func (f *Formatter) Currency() string {
	return f.unit.String()
}

// FormatMoney renders an amount as "<ISO code> <number>" with locale grouping,
// e.g. "USD 1,234.50" for en-US.
func (f *Formatter) FormatMoney(amount decimal.Decimal) string {
	return f.printer.Sprintf("%v %v", f.unit, number.Decimal(amount.Round(2).InexactFloat64(), number.Scale(2)))
}

// FormatDate renders a date with the configured layout.
func (f *Formatter) FormatDate(d Date) string {
	return d.Format(f.dateLayout)
}
