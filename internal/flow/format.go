// Package flow implements the SMS survey conversation engine.
//
// This file holds the outbound message texts and the question formatting
// rules.
package flow

import (
	"fmt"
	"strings"

	"github.com/TextLoop/TextLoop/internal/models"
)

// Fixed outbound message texts. Question prompts are built by FormatQuestion.
const (
	msgApology = "Sorry, something went wrong on our end. Please send your last message again."

	msgDeclined = "No problem, thank you for your time! You will not receive any survey questions."

	msgNoQuestions = "Thanks for your interest! %s has no survey questions configured right now, so there is nothing to answer. Goodbye!"

	msgClosing = "That was the last question. Thank you for sharing your feedback with %s!"

	msgAlreadyCompleted = "This survey is already complete. Thank you again! Reply START to take a new survey."
)

// consentPrompt invites a respondent into the survey, used when a finished
// conversation is explicitly restarted.
func consentPrompt(orgName string) string {
	return fmt.Sprintf("Hi! %s would like your feedback. Reply YES to answer a few short questions.", orgName)
}

// FormatQuestion renders one survey question as an outbound SMS. Every
// prompt carries a 1-based sequence label and a type-specific reply
// instruction: numbered options for choice questions, the numeric bounds
// (with optional endpoint labels) for scale questions, and a free-text
// instruction otherwise.
func FormatQuestion(q models.Question, seq, total int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question %d of %d: %s", seq, total, q.Text)

	switch q.Type {
	case models.QuestionTypeChoice:
		for i, opt := range q.Options {
			fmt.Fprintf(&b, "\n%d. %s", i+1, opt.Label)
		}
		b.WriteString("\nReply with the number of your choice.")
	case models.QuestionTypeScale:
		min, max := q.ScaleBounds()
		b.WriteString("\nReply with a number between ")
		writeBound(&b, min, q.MinLabel)
		b.WriteString(" and ")
		writeBound(&b, max, q.MaxLabel)
		b.WriteString(".")
	default:
		b.WriteString("\nReply with a short text message.")
	}
	return b.String()
}

// writeBound renders one scale endpoint, appending its label when set,
// e.g. "5 (Excellent)".
func writeBound(b *strings.Builder, bound int, label string) {
	fmt.Fprintf(b, "%d", bound)
	if label != "" {
		fmt.Fprintf(b, " (%s)", label)
	}
}
