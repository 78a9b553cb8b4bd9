// Package http provides HTTP server and handler implementations.
//
// This file implements decoding and validation of JSON request bodies.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"risparmi/internal/core"
)

const maxBodyBytes = 1 << 16

// Amount accepts either a JSON number or a string in any form core.ParseAmount
// understands, such as "12,50" or "19.99*2".
type Amount struct {
	decimal.Decimal
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		return core.ErrInvalidAmount
	}
	var s string
	if strings.HasPrefix(raw, `"`) {
		if err := json.Unmarshal(b, &s); err != nil {
			return core.ErrInvalidAmount
		}
	} else {
		s = raw
	}
	d, err := core.ParseAmount(s)
	if err != nil {
		return err
	}
	a.Decimal = d
	return nil
}

type transactionRequest struct {
	Kind        string `json:"kind"`
	Amount      Amount `json:"amount"`
	Description string `json:"description"`
}

type goalRequest struct {
	Name   string `json:"name"`
	Target Amount `json:"target_amount"`
}

type amountRequest struct {
	Amount Amount `json:"amount"`
}

// decodeJSON reads a single JSON object into v. Unknown fields and trailing
// data are rejected. Every failure wraps core.ErrInvalidArgument so callers
// can map it with statusFor.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, core.ErrInvalidArgument) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty request body", core.ErrInvalidArgument)
		}
		return fmt.Errorf("%w: malformed JSON: %v", core.ErrInvalidArgument, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: request body must contain a single JSON object", core.ErrInvalidArgument)
	}
	return nil
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, then trims whitespace.
func sanitizeInput(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
