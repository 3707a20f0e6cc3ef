package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/optionflow/gexd/internal/gex"
)

// FormatSuccessMessage builds the body for a successful computation.
func FormatSuccessMessage(result *gex.Result, duration time.Duration) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Index: %.2f\n", result.IndexPrice))
	if result.GEXFlipLevel != nil {
		sb.WriteString(fmt.Sprintf("Flip level: %.0f\n", *result.GEXFlipLevel))
	} else {
		sb.WriteString("Flip level: none\n")
	}
	if result.MaxGEXStrike != nil {
		sb.WriteString(fmt.Sprintf("Max GEX: %.0f (%.0f USD)\n", *result.MaxGEXStrike, result.MaxGEXValue))
	}
	sb.WriteString(fmt.Sprintf("Expirations: %d\n", len(result.GammaByExpiration)))
	sb.WriteString(fmt.Sprintf("Processed: %d, skipped: %d\n", result.Processed, result.Skipped))
	sb.WriteString(fmt.Sprintf("Duration: %s", duration.Round(time.Millisecond)))

	return sb.String()
}

// FormatFailureMessage builds the body for a failed computation.
func FormatFailureMessage(duration time.Duration, err error) string {
	return fmt.Sprintf("Error: %v\nDuration: %s", err, duration.Round(time.Millisecond))
}
