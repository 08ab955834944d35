package main

import (
	"fmt"
	"io"
	"strings"

	"declarations/declaration"
	"declarations/models"
)

const confirmPrompt = "Do you want to submit the business expense?"

func renderDeclaration(w io.Writer, s declaration.State) {
	title := s.Title
	if title == "" {
		title = "(no title)"
	}

	fmt.Fprintln(w, strings.Repeat("-", 48))
	fmt.Fprintf(w, "Business expense: %s\n", title)
	if s.Description != "" {
		fmt.Fprintf(w, "%s\n", s.Description)
	}
	for _, row := range s.Rows {
		fmt.Fprintf(w, "  %-30s %10.2f EUR\n", row.Title, row.Amount)
		if row.GifURL != "" {
			fmt.Fprintf(w, "    %s\n", row.GifURL)
		}
	}
	fmt.Fprintf(w, "  %-30s %10.2f EUR\n", "Total", s.Total())
	fmt.Fprintln(w, strings.Repeat("-", 48))
}

// renderTranscript prints text messages; tool activity shows as a count.
func renderTranscript(w io.Writer, messages []models.Message) {
	for _, msg := range messages {
		if msg.Content != "" {
			fmt.Fprintf(w, "%s: %s\n", msg.Role, msg.Content)
		}
		for _, att := range msg.Attachments {
			fmt.Fprintf(w, "  [attachment %s]\n", att.Name)
		}
		if n := len(msg.ToolInvocations); n > 0 {
			fmt.Fprintf(w, "  [%d tool calls]\n", n)
		}
	}
}
