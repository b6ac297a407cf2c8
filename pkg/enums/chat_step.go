package enums

import "fmt"

// ChatStep is the current dialogue step of a conversational order session.
type ChatStep string

const (
	ChatStepVariantSelection ChatStep = "VARIANT_SELECTION"
	ChatStepSizeSelection    ChatStep = "SIZE_SELECTION"
	ChatStepQuantityInput    ChatStep = "QUANTITY_INPUT"
	ChatStepNotesInput       ChatStep = "NOTES_INPUT"
	ChatStepEmailInput       ChatStep = "EMAIL_INPUT"
	ChatStepOTPVerification  ChatStep = "OTP_VERIFICATION"
	ChatStepCheckout         ChatStep = "CHECKOUT"
	ChatStepCompleted        ChatStep = "COMPLETED"
	ChatStepCancelled        ChatStep = "CANCELLED"
)

var validChatSteps = []ChatStep{
	ChatStepVariantSelection,
	ChatStepSizeSelection,
	ChatStepQuantityInput,
	ChatStepNotesInput,
	ChatStepEmailInput,
	ChatStepOTPVerification,
	ChatStepCheckout,
	ChatStepCompleted,
	ChatStepCancelled,
}

// String implements fmt.Stringer.
func (c ChatStep) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ChatStep.
func (c ChatStep) IsValid() bool {
	for _, candidate := range validChatSteps {
		if candidate == c {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the session has finished.
func (c ChatStep) IsTerminal() bool {
	return c == ChatStepCompleted || c == ChatStepCancelled
}

// ParseChatStep converts raw input into a ChatStep.
func ParseChatStep(value string) (ChatStep, error) {
	for _, candidate := range validChatSteps {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid chat step %q", value)
}
