package chatflow

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Option is one selectable choice presented to the customer. Token is the
// machine-readable selector a structured chat client echoes back; Label is
// what a human reads.
type Option struct {
	ID    uuid.UUID
	Token string
	Label string
}

// MatchOption resolves free-text input against the presented options. The
// structured token path is the primary contract; label matching is the
// degraded-mode fallback for channels that echo display text. Precedence:
// exact token, exact label, case-insensitive label, substring. A tier with
// more than one hit is ambiguous and does not match.
func MatchOption(input string, options []Option) (Option, bool) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return Option{}, false
	}

	for _, opt := range options {
		if trimmed == opt.Token {
			return opt, true
		}
	}

	tiers := []func(input string, opt Option) bool{
		func(input string, opt Option) bool {
			return input == opt.Label
		},
		func(input string, opt Option) bool {
			return strings.EqualFold(input, opt.Label)
		},
		func(input string, opt Option) bool {
			return strings.Contains(strings.ToLower(input), strings.ToLower(opt.Label))
		},
	}

	for _, match := range tiers {
		var hits []Option
		for _, opt := range options {
			if match(trimmed, opt) {
				hits = append(hits, opt)
			}
		}
		if len(hits) == 1 {
			return hits[0], true
		}
		if len(hits) > 1 {
			return Option{}, false
		}
	}
	return Option{}, false
}

// renderOptions formats options as a numbered list for a chat reply.
func renderOptions(options []Option) string {
	var b strings.Builder
	for i, opt := range options {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, opt.Label)
	}
	return b.String()
}
