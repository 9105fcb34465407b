package vaultapi

import (
	"fmt"
	"strings"

	"github.com/kirillkom/evidence-vault/internal/core/domain"
)

const maxPromptSnippet = 8000

const classificationSystemPrompt = `You are a litigation support analyst classifying evidence for a legal team.
Return a strict JSON object with keys:
category (one of: contract, email, photo, handwritten_note, medical_record, financial_document, legal_filing, correspondence, report, other),
confidence (number from 0 to 1),
tags (array of 3 to 5 short lowercase strings),
summary (one or two sentences),
dateDetected (the most relevant date in the document as YYYY-MM-DD, or null),
relevanceScore (integer from 0 to 100, how likely the item matters to a dispute).
No markdown, no extra keys.`

func buildClassificationPrompt(input domain.ClassificationInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Filename: %s\n", input.Filename)
	if input.ContentType != "" {
		fmt.Fprintf(&b, "Content type: %s\n", input.ContentType)
	}

	text := strings.TrimSpace(input.Text)
	if text == "" {
		b.WriteString("\nNo text could be extracted. Classify from the filename and content type alone.\n")
		return b.String()
	}

	runes := []rune(text)
	if len(runes) > maxPromptSnippet {
		text = string(runes[:maxPromptSnippet])
	}
	b.WriteString("\nDocument:\n")
	b.WriteString(text)
	return b.String()
}
