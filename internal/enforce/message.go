package enforce

import (
	"fmt"
	"strings"

	"github.com/harbinger-sec/warden/internal/approval"
	"github.com/harbinger-sec/warden/internal/classify"
)

// primaryOf picks the detection that fronts user-facing messages: highest
// severity wins, and on equal severity the earlier detection wins. Falls
// back to the classification's own primary fields when the detection list is
// empty (e.g. a classification supplied by an external analyzer).
func primaryOf(cls *classify.Classification) classify.Detection {
	if len(cls.Detections) == 0 {
		return classify.Detection{
			Category: cls.PrimaryCategory,
			Severity: cls.Severity,
			Reason:   cls.Reason,
		}
	}
	primary := cls.Detections[0]
	for _, det := range cls.Detections[1:] {
		if det.Severity.Rank() > primary.Severity.Rank() {
			primary = det
		}
	}
	return primary
}

// displayCategory renders a category identifier for humans:
// "data_exfiltration" becomes "Data Exfiltration".
func displayCategory(category string) string {
	if category == "" {
		return "Unclassified"
	}
	words := strings.Split(category, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func detectionSummary(det classify.Detection) string {
	return fmt.Sprintf("%s (%s): %s", displayCategory(det.Category), det.Severity, det.Reason)
}

func blockMessage(det classify.Detection) string {
	return "Tool call blocked: " + detectionSummary(det)
}

func warnMessage(det classify.Detection) string {
	return "Warning: " + detectionSummary(det)
}

func confirmMessage(det classify.Detection, methods []approval.Method, timeoutSeconds int) string {
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = string(m)
	}
	return fmt.Sprintf("Approval required: %s. Respond via %s within %ds.",
		detectionSummary(det), strings.Join(names, ", "), timeoutSeconds)
}
