package flow

import (
	"strings"
	"testing"

	"github.com/TextLoop/TextLoop/internal/models"
)

func TestFormatQuestionChoice(t *testing.T) {
	q := models.Question{
		Text: "How was your visit?",
		Type: models.QuestionTypeChoice,
		Options: []models.QuestionOption{
			{Label: "Good"},
			{Label: "Okay"},
			{Label: "Bad"},
		},
	}
	got := FormatQuestion(q, 1, 3)
	want := "Question 1 of 3: How was your visit?\n1. Good\n2. Okay\n3. Bad\nReply with the number of your choice."
	if got != want {
		t.Errorf("FormatQuestion =\n%q\nwant\n%q", got, want)
	}
}

func TestFormatQuestionScaleWithLabels(t *testing.T) {
	q := models.Question{
		Text:     "How likely are you to recommend us?",
		Type:     models.QuestionTypeScale,
		ScaleMin: 1,
		ScaleMax: 10,
		MinLabel: "Not at all",
		MaxLabel: "Extremely",
	}
	got := FormatQuestion(q, 2, 2)
	if !strings.Contains(got, "between 1 (Not at all) and 10 (Extremely)") {
		t.Errorf("scale prompt missing labeled bounds: %q", got)
	}
	if !strings.HasPrefix(got, "Question 2 of 2: ") {
		t.Errorf("scale prompt missing sequence label: %q", got)
	}
}

func TestFormatQuestionScaleDefaults(t *testing.T) {
	q := models.Question{Text: "Rate your wait time.", Type: models.QuestionTypeScale}
	got := FormatQuestion(q, 1, 1)
	if !strings.Contains(got, "between 1 and 5") {
		t.Errorf("default scale prompt = %q, want bounds 1 and 5", got)
	}
}

func TestFormatQuestionFreeText(t *testing.T) {
	q := models.Question{Text: "Anything else to share?", Type: models.QuestionTypeText}
	got := FormatQuestion(q, 3, 3)
	if !strings.Contains(got, "Reply with a short text message.") {
		t.Errorf("free-text prompt = %q, want reply instruction", got)
	}
}

func TestConsentPromptNamesOrganization(t *testing.T) {
	got := consentPrompt("Lakeside Clinic")
	if !strings.Contains(got, "Lakeside Clinic") || !strings.Contains(got, "YES") {
		t.Errorf("consent prompt = %q", got)
	}
}
