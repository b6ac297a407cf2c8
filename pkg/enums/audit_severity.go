package enums

import "fmt"

// AuditSeverity grades audit log entries.
type AuditSeverity string

const (
	AuditSeverityInfo     AuditSeverity = "info"
	AuditSeverityWarning  AuditSeverity = "warning"
	AuditSeveritySecurity AuditSeverity = "security"
)

var validAuditSeverities = []AuditSeverity{
	AuditSeverityInfo,
	AuditSeverityWarning,
	AuditSeveritySecurity,
}

// String implements fmt.Stringer.
func (a AuditSeverity) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AuditSeverity.
func (a AuditSeverity) IsValid() bool {
	for _, candidate := range validAuditSeverities {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAuditSeverity converts raw input into an AuditSeverity.
func ParseAuditSeverity(value string) (AuditSeverity, error) {
	for _, candidate := range validAuditSeverities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid audit severity %q", value)
}
