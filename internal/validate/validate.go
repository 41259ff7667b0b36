// Package validate decides whether a raw inbound SMS reply answers a survey
// question, and coerces accepted replies to their canonical stored value.
//
// Validation never fails with an error: every outcome is representable in
// the returned Result, and rejected replies carry a human-readable reason
// the engine sends back as part of the re-prompt.
package validate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/TextLoop/TextLoop/internal/models"
)

// Result is the outcome of validating one reply against one question.
type Result struct {
	Accepted bool
	Value    string // canonical stored value, set when accepted
	Score    *int   // numeric score, set when the value is an integer
	Reason   string // rejection reason, set when not accepted
}

// Validate checks raw against the question's type rules. It is a pure
// function with no side effects.
func Validate(q models.Question, raw string) Result {
	trimmed := strings.TrimSpace(raw)

	switch q.Type {
	case models.QuestionTypeChoice:
		return validateChoice(q, trimmed)
	case models.QuestionTypeScale:
		return validateScale(q, trimmed)
	case models.QuestionTypeText:
		return validateText(raw, trimmed)
	default:
		return reject(fmt.Sprintf("This question cannot be answered right now (unsupported type %q).", q.Type))
	}
}

// validateChoice expects the 1-based number of one of the listed options.
// The stored value is the option's canonical value, falling back to its
// label when no canonical value is configured.
func validateChoice(q models.Question, trimmed string) Result {
	count := len(q.Options)
	if count == 0 {
		return reject("This question has no answer options configured.")
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil || n < 1 || n > count {
		return reject(fmt.Sprintf("Please reply with a number between 1 and %d.", count))
	}
	opt := q.Options[n-1]
	value := opt.Value
	if value == "" {
		value = opt.Label
	}
	return accept(value)
}

// validateScale expects an integer within the question's configured bounds.
func validateScale(q models.Question, trimmed string) Result {
	min, max := q.ScaleBounds()
	n, err := strconv.Atoi(trimmed)
	if err != nil || n < min || n > max {
		return reject(fmt.Sprintf("Please reply with a number between %d and %d.", min, max))
	}
	return accept(strconv.Itoa(n))
}

// validateText accepts any reply that is non-empty after trimming. The
// stored value is the raw input verbatim.
func validateText(raw, trimmed string) Result {
	if trimmed == "" {
		return reject("Please type a response. Empty messages cannot be recorded.")
	}
	return accept(raw)
}

func accept(value string) Result {
	r := Result{Accepted: true, Value: value}
	// Numeric-valued answers contribute to the session score; anything else
	// is stored but never aggregated.
	if n, err := strconv.Atoi(value); err == nil {
		r.Score = &n
	}
	return r
}

func reject(reason string) Result {
	return Result{Accepted: false, Reason: reason}
}
