package storage

import "github.com/harbinger-sec/warden/internal/audit"

// ExportWriter is a durable destination for audit entries. Export must
// NEVER block the caller.
type ExportWriter interface {
	audit.Exporter
	Close()
}

// ReasonMaxLength is the max chars stored in the reason column.
const ReasonMaxLength = 500

// PayloadPreviewMaxLength bounds the argument preview on audit entries.
const PayloadPreviewMaxLength = 200

// TruncateReason returns the first maxLen runes of a reason string for
// storage. It never splits a multi-byte UTF-8 character.
func TruncateReason(reason string, maxLen int) string {
	runes := []rune(reason)
	if len(runes) <= maxLen {
		return reason
	}
	return string(runes[:maxLen])
}
