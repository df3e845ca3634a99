package mcp

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/prefpilot/api/schemas"
)

// RenderWorkflowResult formats a workflow envelope as a plain-text
// report. Rendering is lossless: every populated field of the envelope
// appears under a tagged section, and steps keep their order.
func RenderWorkflowResult(title string, res schemas.WorkflowResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n\n", title)
	if res.Success {
		b.WriteString("Status: SUCCESS\n")
	} else {
		b.WriteString("Status: FAILED\n")
	}
	fmt.Fprintf(&b, "Message: %s\n", res.Message)

	if len(res.WorkflowSteps) > 0 {
		b.WriteString("Steps:\n")
		for i, step := range res.WorkflowSteps {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, step)
		}
	}

	if res.FinalPreference != "" {
		fmt.Fprintf(&b, "Final preference: %s\n", res.FinalPreference)
	}
	if res.DatabaseVerification != nil {
		fmt.Fprintf(&b, "Database verification: %s\n", res.DatabaseVerification.Message)
		if rec := res.DatabaseVerification.Record; rec != nil {
			fmt.Fprintf(&b, "  Record: name=%q email=%q mhmd_preference=%s\n",
				rec.Name, rec.Email, rec.MHMDPreference)
		}
	}
	if res.VerificationFilePath != "" {
		fmt.Fprintf(&b, "Verification file: %s\n", res.VerificationFilePath)
	}
	if res.APIResponseStatus != "" {
		fmt.Fprintf(&b, "API response status: %s\n", res.APIResponseStatus)
	}
	if res.Screenshot != "" {
		fmt.Fprintf(&b, "Screenshot: captured (%d base64 chars)\n", len(res.Screenshot))
	}
	if res.ScreenshotFilePath != "" {
		fmt.Fprintf(&b, "Screenshot file: %s\n", res.ScreenshotFilePath)
	}
	if res.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", res.Error)
	}

	return b.String()
}

// RenderCombinedResult formats the combined envelope: an overall
// verdict followed by each phase's full report. A phase that never
// started says so explicitly.
func RenderCombinedResult(res schemas.CombinedResult) string {
	var b strings.Builder

	b.WriteString("Combined MHMD + Swagger workflow\n\n")
	if res.Success {
		b.WriteString("Status: SUCCESS\n")
	} else {
		b.WriteString("Status: FAILED\n")
	}
	fmt.Fprintf(&b, "Message: %s\n\n", res.Message)

	if res.MHMD != nil {
		b.WriteString("--- MHMD phase ---\n")
		b.WriteString(RenderWorkflowResult("MHMD preference workflow", *res.MHMD))
		b.WriteString("\n")
	}

	if res.Swagger != nil {
		b.WriteString("--- Swagger phase ---\n")
		b.WriteString(RenderWorkflowResult("Swagger API verification", *res.Swagger))
	} else {
		b.WriteString("--- Swagger phase ---\nNot started: the MHMD phase failed first.\n")
	}

	return b.String()
}
