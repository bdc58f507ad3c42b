package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestEscrowTransitions(t *testing.T) {
	tests := []struct {
		from     EscrowStatus
		to       EscrowStatus
		expected bool
	}{
		// Happy path
		{EscrowStatusCreated, EscrowStatusFunded, true},
		{EscrowStatusFunded, EscrowStatusReleased, true},
		{EscrowStatusFunded, EscrowStatusRefunded, true},
		{EscrowStatusFunded, EscrowStatusDisputed, true},

		// Resolution
		{EscrowStatusDisputed, EscrowStatusReleased, true},
		{EscrowStatusDisputed, EscrowStatusRefunded, true},

		// Invalid transitions
		{EscrowStatusCreated, EscrowStatusReleased, false},
		{EscrowStatusCreated, EscrowStatusDisputed, false},
		{EscrowStatusDisputed, EscrowStatusFunded, false},
		{EscrowStatusReleased, EscrowStatusRefunded, false},
		{EscrowStatusRefunded, EscrowStatusReleased, false},
		{EscrowStatusReleased, EscrowStatusDisputed, false},
		{"nonexistent", EscrowStatusFunded, false},
		{EscrowStatusCreated, "nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			result := tt.from.CanTransition(tt.to)
			if result != tt.expected {
				t.Errorf("%q.CanTransition(%q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestEscrowTerminalStatuses(t *testing.T) {
	terminal := map[EscrowStatus]bool{
		EscrowStatusCreated:  false,
		EscrowStatusFunded:   false,
		EscrowStatusDisputed: false,
		EscrowStatusReleased: true,
		EscrowStatusRefunded: true,
	}
	for status, want := range terminal {
		if _, ok := ValidEscrowTransitions[status]; !ok {
			t.Errorf("status %q missing from ValidEscrowTransitions map", status)
		}
		if got := status.IsTerminal(); got != want {
			t.Errorf("%q.IsTerminal() = %v, want %v", status, got, want)
		}
	}
}

func TestEscrowIDRoundTrip(t *testing.T) {
	id := NewEscrowID(7, "D", "B", "A", 1000, "USDC")

	parsed, err := ParseEscrowID(id.String())
	if err != nil {
		t.Fatalf("ParseEscrowID: %v", err)
	}
	if parsed != id {
		t.Errorf("parsed id %s, want %s", parsed, id)
	}

	data, err := json.Marshal(Escrow{ID: id})
	if err != nil {
		t.Fatal(err)
	}
	var e Escrow
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatal(err)
	}
	if e.ID != id {
		t.Errorf("json id %s, want %s", e.ID, id)
	}
}

func TestNewEscrowIDDeterministic(t *testing.T) {
	a := NewEscrowID(1, "D", "B", "A", 1000, "USDC")
	b := NewEscrowID(1, "D", "B", "A", 1000, "USDC")
	if a != b {
		t.Errorf("same inputs produced different ids")
	}
	if a == NewEscrowID(2, "D", "B", "A", 1000, "USDC") {
		t.Errorf("sequence number does not affect id")
	}
	// Length prefixes keep field boundaries unambiguous.
	if NewEscrowID(1, "DB", "", "A", 1, "T") == NewEscrowID(1, "D", "B", "A", 1, "T") {
		t.Errorf("field boundaries collide")
	}
}

func TestParseEscrowIDRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "zz", "abcd"} {
		if _, err := ParseEscrowID(in); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("ParseEscrowID(%q) error = %v, want ErrInvalidInput", in, err)
		}
	}
}

func TestPartiesDistinct(t *testing.T) {
	tests := []struct {
		p    Parties
		want bool
	}{
		{Parties{"D", "B", "A"}, true},
		{Parties{"D", "D", "A"}, false},
		{Parties{"D", "B", "D"}, false},
		{Parties{"D", "B", "B"}, false},
		{Parties{"", "B", "A"}, false},
	}
	for _, tt := range tests {
		if got := tt.p.Distinct(); got != tt.want {
			t.Errorf("%+v.Distinct() = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestErrorCode(t *testing.T) {
	wrapped := fmt.Errorf("%w: caller is not the arbiter", ErrNotAuthorized)
	if got := ErrorCode(wrapped); got != "not_authorized" {
		t.Errorf("ErrorCode = %q, want not_authorized", got)
	}
	if got := ErrorCode(ErrInvalidSigner); got != "invalid_signer" {
		t.Errorf("ErrorCode = %q, want invalid_signer", got)
	}
	if got := ErrorCode(errors.New("boom")); got != "internal" {
		t.Errorf("ErrorCode = %q, want internal", got)
	}
}
