package models

import "testing"

func TestIsValidQuestionType(t *testing.T) {
	for _, qt := range []QuestionType{QuestionTypeChoice, QuestionTypeScale, QuestionTypeText} {
		if !IsValidQuestionType(qt) {
			t.Errorf("IsValidQuestionType(%q) = false, want true", qt)
		}
	}
	if IsValidQuestionType("emoji") {
		t.Error("IsValidQuestionType accepted an unknown type")
	}
}

func TestScaleBoundsDefaults(t *testing.T) {
	q := Question{Type: QuestionTypeScale}
	min, max := q.ScaleBounds()
	if min != DefaultScaleMin || max != DefaultScaleMax {
		t.Errorf("unconfigured bounds = [%d,%d], want [%d,%d]", min, max, DefaultScaleMin, DefaultScaleMax)
	}

	q = Question{Type: QuestionTypeScale, ScaleMin: 0, ScaleMax: 10}
	min, max = q.ScaleBounds()
	if min != 0 || max != 10 {
		t.Errorf("configured bounds = [%d,%d], want [0,10]", min, max)
	}
}

func TestAPIResponseHelpers(t *testing.T) {
	if r := Success(); r.Status != string(APIStatusOK) || r.Message != "" {
		t.Errorf("Success() = %+v", r)
	}
	if r := SuccessWithMessage("done"); r.Status != string(APIStatusOK) || r.Message != "done" {
		t.Errorf("SuccessWithMessage() = %+v", r)
	}
	if r := Error("boom"); r.Status != string(APIStatusError) || r.Message != "boom" {
		t.Errorf("Error() = %+v", r)
	}
}
