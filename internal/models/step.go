// Package models defines conversation step types for TextLoop surveys.
package models

import (
	"fmt"
	"strconv"
	"strings"
)

// StepKind identifies the phase of a conversation.
type StepKind string

const (
	// StepConsent is the initial state gating entry into the survey.
	StepConsent StepKind = "consent"
	// StepQuestion means the respondent is being asked the question at Index.
	StepQuestion StepKind = "question"
	// StepCompleted is the terminal state; no further transitions occur.
	StepCompleted StepKind = "completed"
)

// Step is the current position of a conversation. Index is only meaningful
// for StepQuestion and is derived from the catalog order, so there is no
// upper bound on the number of questions a survey may have.
type Step struct {
	Kind  StepKind `json:"kind"`
	Index int      `json:"index,omitempty"`
}

// ConsentStep returns the initial step.
func ConsentStep() Step { return Step{Kind: StepConsent} }

// QuestionStep returns the step asking the i-th catalog question.
func QuestionStep(i int) Step { return Step{Kind: StepQuestion, Index: i} }

// CompletedStep returns the terminal step.
func CompletedStep() Step { return Step{Kind: StepCompleted} }

// Terminal reports whether no further transitions are possible.
func (s Step) Terminal() bool { return s.Kind == StepCompleted }

// String encodes the step for storage: "consent", "question_<i>" or "completed".
func (s Step) String() string {
	if s.Kind == StepQuestion {
		return fmt.Sprintf("question_%d", s.Index)
	}
	return string(s.Kind)
}

// ParseStep decodes a stored step string. It accepts the encodings produced
// by Step.String.
func ParseStep(raw string) (Step, error) {
	switch raw {
	case string(StepConsent):
		return ConsentStep(), nil
	case string(StepCompleted):
		return CompletedStep(), nil
	}
	if idx, ok := strings.CutPrefix(raw, "question_"); ok {
		i, err := strconv.Atoi(idx)
		if err != nil || i < 0 {
			return Step{}, fmt.Errorf("invalid question step index %q", idx)
		}
		return QuestionStep(i), nil
	}
	return Step{}, fmt.Errorf("unknown conversation step %q", raw)
}
