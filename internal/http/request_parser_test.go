package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"risparmi/internal/core"
)

func TestAmountUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{"json number", `{"amount": 12.345}`, "12.35", false},
		{"dot string", `{"amount": "12.34"}`, "12.34", false},
		{"comma string", `{"amount": "12,5"}`, "12.5", false},
		{"currency symbol", `{"amount": "€ 7"}`, "7", false},
		{"expression", `{"amount": "19.99*2"}`, "39.98", false},
		{"letters", `{"amount": "ten"}`, "", true},
		{"null", `{"amount": null}`, "", true},
		{"empty", `{"amount": ""}`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req amountRequest
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			err := decodeJSON(httptest.NewRecorder(), r, &req)
			if tt.wantErr {
				if !errors.Is(err, core.ErrInvalidArgument) {
					t.Fatalf("expected ErrInvalidArgument, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if got := req.Amount.String(); got != tt.want {
				t.Fatalf("amount=%s, want %s", got, tt.want)
			}
		})
	}
}

func TestDecodeJSON_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"trailing object", `{"amount":"1"} {"amount":"2"}`},
		{"unknown field", `{"amount":"1","note":"x"}`},
		{"too large", `{"amount":"1","pad":"` + strings.Repeat("x", maxBodyBytes) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req amountRequest
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			if err := decodeJSON(httptest.NewRecorder(), r, &req); !errors.Is(err, core.ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := map[string]string{
		"  Rent  ":        "Rent",
		"Gro\x00ceries":   "Groceries",
		"line\nbreak":     "line\nbreak",
		"\x1b[31mred\x07": "[31mred",
	}
	for in, want := range tests {
		if got := sanitizeInput(in); got != want {
			t.Errorf("sanitizeInput(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("goal x: %w", core.ErrNotFound), http.StatusNotFound, "not_found"},
		{core.ErrEmptyDescription, http.StatusUnprocessableEntity, "invalid_argument"},
		{core.ErrInsufficientFunds, http.StatusConflict, "insufficient_funds"},
		{core.ErrNetworkUnavailable, http.StatusServiceUnavailable, "network_unavailable"},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{errors.New("disk full"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		status, code := statusFor(tt.err)
		if status != tt.status || code != tt.code {
			t.Errorf("statusFor(%v)=%d %s, want %d %s", tt.err, status, code, tt.status, tt.code)
		}
	}
}

func TestWriteDomainError_HidesInternalMessage(t *testing.T) {
	rr := httptest.NewRecorder()
	writeDomainError(context.Background(), rr, "test", errors.New("sqlite: disk I/O error"))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "sqlite") {
		t.Fatalf("internal detail leaked: %s", rr.Body.String())
	}
}
