package models

import "testing"

func TestStepStringEncoding(t *testing.T) {
	cases := []struct {
		step Step
		want string
	}{
		{ConsentStep(), "consent"},
		{QuestionStep(0), "question_0"},
		{QuestionStep(12), "question_12"},
		{CompletedStep(), "completed"},
	}
	for _, tc := range cases {
		if got := tc.step.String(); got != tc.want {
			t.Errorf("Step%+v.String() = %q, want %q", tc.step, got, tc.want)
		}
	}
}

func TestParseStepRoundTrip(t *testing.T) {
	steps := []Step{ConsentStep(), QuestionStep(0), QuestionStep(7), QuestionStep(42), CompletedStep()}
	for _, s := range steps {
		parsed, err := ParseStep(s.String())
		if err != nil {
			t.Errorf("ParseStep(%q) error: %v", s.String(), err)
			continue
		}
		if parsed != s {
			t.Errorf("ParseStep(%q) = %+v, want %+v", s.String(), parsed, s)
		}
	}
}

func TestParseStepRejectsInvalid(t *testing.T) {
	for _, raw := range []string{"", "question_", "question_-1", "question_x", "done", "CONSENT"} {
		if _, err := ParseStep(raw); err == nil {
			t.Errorf("ParseStep(%q) succeeded, want error", raw)
		}
	}
}

func TestStepTerminal(t *testing.T) {
	if ConsentStep().Terminal() || QuestionStep(3).Terminal() {
		t.Error("non-terminal steps reported terminal")
	}
	if !CompletedStep().Terminal() {
		t.Error("completed step not reported terminal")
	}
}
