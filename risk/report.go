package risk

import (
	"fmt"
	"strings"

	"vaprisk/ml"
)

// BuildReport renders the plain-text clinical report for an
// assessment. The probability and tier in the text are exactly the
// assessed values.
func BuildReport(a *Assessment) string {
	var b strings.Builder
	b.WriteString("POSTOPERATIVE PNEUMONIA RISK ASSESSMENT REPORT\n\n")
	fmt.Fprintf(&b, "Patient Risk Level: %s (%.1f%%)\n", a.RiskLevel, a.Probability*100)
	fmt.Fprintf(&b, "Recommended Protocol: %s\n\n", a.Protocol.Tier)

	b.WriteString("INPUT PARAMETERS:\n")
	values := a.Features.Vector()
	for i, name := range ml.FeatureNames() {
		fmt.Fprintf(&b, "%-45s %g\n", ml.FeatureLabel(name), values[i])
	}

	b.WriteString("\nRECOMMENDATIONS:\n")
	for i, rec := range a.Protocol.Recommendations {
		fmt.Fprintf(&b, "%d. %s\n", i+1, rec)
	}
	return b.String()
}

// ReportFilename derives the download name from the risk level.
func ReportFilename(a *Assessment) string {
	level := strings.ReplaceAll(string(a.RiskLevel), " ", "_")
	return fmt.Sprintf("VAP_Assessment_%s.txt", level)
}
