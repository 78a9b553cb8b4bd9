package core

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{"1.005", "1.01", true}, // half-up rounding
		{" 2.50 ", "2.5", true},
		{"$42.50", "42.5", true},
		{"0", "0", true},
		{"19.99 * 2", "39.98", true},
		{"(10 + 5) * 2", "30", true},
		{"100 / 4", "25", true},
		{"-1", "", false},
		{"5 - 10", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"", "", false},
		{"1 / 0", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
			continue
		}
		if err == nil {
			t.Fatalf("%q expected error, got %s", tc.in, got)
		}
		if !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("%q expected invalid argument, got %v", tc.in, err)
		}
	}
}

func TestFormatter(t *testing.T) {
	f, err := NewFormatter("usd", "en-US", "")
	if err != nil {
		t.Fatalf("NewFormatter: %v", err)
	}
	if f.Currency() != "USD" {
		t.Fatalf("expected USD, got %s", f.Currency())
	}
	got := f.FormatMoney(decimal.RequireFromString("1234.5"))
	if !strings.HasPrefix(got, "USD") || !strings.Contains(got, "1,234") {
		t.Fatalf("expected grouped amount, got %q", got)
	}
	if d := f.FormatDate(NewDate(2025, 3, 7)); d != "2025-03-07" {
		t.Fatalf("unexpected date %q", d)
	}

	if _, err := NewFormatter("not-a-currency", "en-US", ""); err == nil {
		t.Fatalf("expected error for bad currency")
	}
}
