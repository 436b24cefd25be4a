package worker

import (
	"fmt"
	"strings"

	"github.com/complycheck/complycheck/pkg/models"
)

const batchInstructions = `You are a building-code compliance reviewer. Evaluate the building drawing evidence against each code section below. A section is compliant only if its own requirements AND every referenced section's requirements are satisfied.

Respond with a single JSON object:
{
  "sections": [
    {
      "section_key": "<key>",
      "compliance_status": "compliant" | "non_compliant" | "needs_more_info" | "not_applicable",
      "confidence": "high" | "medium" | "low",
      "reasoning": "<why>",
      "violations": ["<violation>", ...],
      "recommendations": ["<recommendation>", ...]
    }
  ],
  "summary": "<overall summary>"
}`

const singleInstructions = `You are a building-code compliance reviewer. Evaluate the building drawing evidence against the code section below. The section is compliant only if its own requirements AND every referenced section's requirements are satisfied.

Respond with a single JSON object:
{
  "compliance_status": "compliant" | "non_compliant" | "needs_more_info" | "not_applicable",
  "confidence": "high" | "medium" | "low",
  "reasoning": "<why>",
  "violations": ["<violation>", ...],
  "recommendations": ["<recommendation>", ...]
}`

// buildBatchPrompt renders the prompt for a batch_analysis job: shared
// building context followed by each section's text, requirements, and
// referenced sections.
func buildBatchPrompt(payload models.BatchPayload) string {
	var b strings.Builder

	if payload.CustomPrompt != "" {
		b.WriteString(payload.CustomPrompt)
	} else {
		b.WriteString(batchInstructions)
	}
	b.WriteString("\n")

	writeContext(&b, payload.Context)

	for i, bundle := range payload.Sections {
		fmt.Fprintf(&b, "\n--- Code section %d of %d ---\n", i+1, len(payload.Sections))
		writeSection(&b, bundle)
	}

	return b.String()
}

// buildSinglePrompt renders the prompt for a legacy single_analysis job.
func buildSinglePrompt(payload models.SinglePayload) string {
	var b strings.Builder

	if payload.CustomPrompt != "" {
		b.WriteString(payload.CustomPrompt)
	} else {
		b.WriteString(singleInstructions)
	}
	b.WriteString("\n")

	writeContext(&b, payload.Context)

	b.WriteString("\n--- Code section ---\n")
	writeSection(&b, payload.Section)

	return b.String()
}

func writeContext(b *strings.Builder, shared models.SharedContext) {
	if shared.BuildingInfo != "" {
		b.WriteString("\nBuilding context:\n")
		b.WriteString(shared.BuildingInfo)
		b.WriteString("\n")
	}
	if shared.ExtraContext != "" {
		b.WriteString("\nAdditional context from the engineer:\n")
		b.WriteString(shared.ExtraContext)
		b.WriteString("\n")
	}
}

func writeSection(b *strings.Builder, bundle models.SectionBundle) {
	sec := bundle.Section
	fmt.Fprintf(b, "Section %s: %s\n", sec.Key, sec.Title)
	if sec.Text != "" {
		b.WriteString(sec.Text)
		b.WriteString("\n")
	}
	if len(sec.Requirements) > 0 {
		b.WriteString("Requirements:\n")
		for _, req := range sec.Requirements {
			b.WriteString("- ")
			b.WriteString(req)
			b.WriteString("\n")
		}
	}
	if len(bundle.References) > 0 {
		b.WriteString("Referenced sections (compliance with these is mandatory):\n")
		for _, ref := range bundle.References {
			fmt.Fprintf(b, "  Section %s: %s\n", ref.Key, ref.Title)
			if ref.Text != "" {
				b.WriteString("  ")
				b.WriteString(ref.Text)
				b.WriteString("\n")
			}
			for _, req := range ref.Requirements {
				b.WriteString("  - ")
				b.WriteString(req)
				b.WriteString("\n")
			}
		}
	}
}
