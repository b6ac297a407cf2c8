package enums

import "fmt"

// InvoiceIntentState tracks the two-phase invoice creation handshake for a
// checkout session: a local claim first, then the provider call, then the
// recorded result. Sessions stuck in "claimed" are surfaced by the sweeper.
type InvoiceIntentState string

const (
	InvoiceIntentStateNone     InvoiceIntentState = "none"
	InvoiceIntentStateClaimed  InvoiceIntentState = "claimed"
	InvoiceIntentStateRecorded InvoiceIntentState = "recorded"
)

var validInvoiceIntentStates = []InvoiceIntentState{
	InvoiceIntentStateNone,
	InvoiceIntentStateClaimed,
	InvoiceIntentStateRecorded,
}

// String implements fmt.Stringer.
func (i InvoiceIntentState) String() string {
	return string(i)
}

// IsValid reports whether the value is a known InvoiceIntentState.
func (i InvoiceIntentState) IsValid() bool {
	for _, candidate := range validInvoiceIntentStates {
		if candidate == i {
			return true
		}
	}
	return false
}

// ParseInvoiceIntentState converts raw input into an InvoiceIntentState.
func ParseInvoiceIntentState(value string) (InvoiceIntentState, error) {
	for _, candidate := range validInvoiceIntentStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid invoice intent state %q", value)
}
