package grading

import (
	"testing"

	"github.com/google/uuid"
	"github.com/proctorly/proctor-backend/internal/model"
)

func floatPtr(v float64) *float64 { return &v }

func question(t model.QuestionType, marks float64) model.Question {
	return model.Question{ID: uuid.New(), Type: t, Marks: marks}
}

func TestGrade_SingleChoice(t *testing.T) {
	tests := []struct {
		name     string
		correct  []int
		selected []int
		verdict  Verdict
		awarded  float64
	}{
		{name: "exact match", correct: []int{2}, selected: []int{2}, verdict: VerdictCorrect, awarded: 4},
		{name: "wrong option", correct: []int{2}, selected: []int{1}, verdict: VerdictIncorrect, awarded: 0},
		{name: "multiple selected never correct", correct: []int{2}, selected: []int{1, 2}, verdict: VerdictIncorrect, awarded: 0},
		{name: "no selection unattempted", correct: []int{2}, selected: nil, verdict: VerdictUnattempted, awarded: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q := question(model.QuestionSingleChoice, 4)
			q.Options = []string{"a", "b", "c", "d"}
			q.CorrectOptions = tc.correct

			answers := map[uuid.UUID]model.Answer{}
			if tc.selected != nil {
				answers[q.ID] = model.Answer{QuestionID: q.ID, SelectedOptions: tc.selected}
			}

			res := Grade([]model.Question{q}, answers, Config{})
			assertScore(t, res.Scores[0], tc.verdict, tc.awarded)
		})
	}
}

func TestGrade_MultiChoice(t *testing.T) {
	tests := []struct {
		name     string
		partial  bool
		correct  []int
		selected []int
		verdict  Verdict
		awarded  float64
	}{
		{name: "exact set correct", correct: []int{0, 3}, selected: []int{3, 0}, verdict: VerdictCorrect, awarded: 6},
		{name: "missing one all-or-nothing", correct: []int{0, 3}, selected: []int{0}, verdict: VerdictIncorrect, awarded: 0},
		{name: "extra one all-or-nothing", correct: []int{0, 3}, selected: []int{0, 3, 1}, verdict: VerdictIncorrect, awarded: 0},
		{name: "partial credit no false positive", partial: true, correct: []int{0, 3}, selected: []int{0}, verdict: VerdictPartial, awarded: 3},
		{name: "partial credit false positive scores zero", partial: true, correct: []int{0, 3}, selected: []int{0, 1}, verdict: VerdictIncorrect, awarded: 0},
		{name: "empty selection unattempted", correct: []int{0, 3}, selected: nil, verdict: VerdictUnattempted, awarded: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q := question(model.QuestionMultiChoice, 6)
			q.CorrectOptions = tc.correct
			q.PartialCredit = tc.partial

			answers := map[uuid.UUID]model.Answer{}
			if tc.selected != nil {
				answers[q.ID] = model.Answer{QuestionID: q.ID, SelectedOptions: tc.selected}
			}

			res := Grade([]model.Question{q}, answers, Config{})
			assertScore(t, res.Scores[0], tc.verdict, tc.awarded)
		})
	}
}

func TestGrade_Numerical(t *testing.T) {
	tests := []struct {
		name      string
		correct   float64
		tolerance float64
		given     *float64
		verdict   Verdict
	}{
		{name: "within tolerance", correct: 42, tolerance: 0.5, given: floatPtr(42.3), verdict: VerdictCorrect},
		{name: "outside tolerance", correct: 42, tolerance: 0.5, given: floatPtr(43), verdict: VerdictIncorrect},
		{name: "boundary inclusive", correct: 42, tolerance: 0.5, given: floatPtr(42.5), verdict: VerdictCorrect},
		{name: "zero tolerance exact", correct: 42, given: floatPtr(42), verdict: VerdictCorrect},
		{name: "zero tolerance off by little", correct: 42, given: floatPtr(42.0001), verdict: VerdictIncorrect},
		{name: "no response unattempted", correct: 42, given: nil, verdict: VerdictUnattempted},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q := question(model.QuestionNumerical, 2)
			q.CorrectValue = floatPtr(tc.correct)
			q.Tolerance = tc.tolerance

			answers := map[uuid.UUID]model.Answer{}
			if tc.given != nil {
				answers[q.ID] = model.Answer{QuestionID: q.ID, NumericResponse: tc.given}
			}

			res := Grade([]model.Question{q}, answers, Config{})
			if res.Scores[0].Verdict != tc.verdict {
				t.Fatalf("expected verdict=%s, got=%s", tc.verdict, res.Scores[0].Verdict)
			}
		})
	}
}

func TestGrade_TextAnswers(t *testing.T) {
	tests := []struct {
		name     string
		accepted []string
		given    string
		verdict  Verdict
	}{
		{name: "exact", accepted: []string{"mitochondria"}, given: "mitochondria", verdict: VerdictCorrect},
		{name: "case insensitive", accepted: []string{"Mitochondria"}, given: "MITOCHONDRIA", verdict: VerdictCorrect},
		{name: "whitespace trimmed", accepted: []string{"42"}, given: "  42  ", verdict: VerdictCorrect},
		{name: "any accepted variant", accepted: []string{"colour", "color"}, given: "color", verdict: VerdictCorrect},
		{name: "no match", accepted: []string{"colour"}, given: "colr", verdict: VerdictIncorrect},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q := question(model.QuestionFillBlank, 1)
			q.AcceptedAnswers = tc.accepted

			answers := map[uuid.UUID]model.Answer{
				q.ID: {QuestionID: q.ID, TextResponse: tc.given},
			}
			res := Grade([]model.Question{q}, answers, Config{})
			if res.Scores[0].Verdict != tc.verdict {
				t.Fatalf("expected verdict=%s, got=%s", tc.verdict, res.Scores[0].Verdict)
			}
		})
	}
}

func TestGrade_ManualTypesNeverBlock(t *testing.T) {
	for _, qt := range []model.QuestionType{
		model.QuestionLongAnswer, model.QuestionCode,
		model.QuestionMatching, model.QuestionOrdering,
	} {
		q := question(qt, 10)
		answers := map[uuid.UUID]model.Answer{
			q.ID: {QuestionID: q.ID, TextResponse: "some long response"},
		}
		res := Grade([]model.Question{q}, answers, Config{})
		s := res.Scores[0]
		if s.Verdict != VerdictUngraded || !s.NeedsManual || s.MarksAwarded != 0 {
			t.Fatalf("%s: expected ungraded manual zero, got %+v", qt, s)
		}
		if res.Ungraded != 1 {
			t.Fatalf("%s: expected ungraded count 1, got %d", qt, res.Ungraded)
		}
	}
}

func TestGrade_Aggregate(t *testing.T) {
	q1 := question(model.QuestionSingleChoice, 4)
	q1.CorrectOptions = []int{0}
	q2 := question(model.QuestionSingleChoice, 4)
	q2.CorrectOptions = []int{1}
	q3 := question(model.QuestionNumerical, 2)
	q3.CorrectValue = floatPtr(7)

	answers := map[uuid.UUID]model.Answer{
		q1.ID: {QuestionID: q1.ID, SelectedOptions: []int{0}}, // correct: +4
		q2.ID: {QuestionID: q2.ID, SelectedOptions: []int{2}}, // wrong: -1
		// q3 unattempted, never penalized
	}

	res := Grade([]model.Question{q1, q2, q3}, answers, Config{NegativeMarks: 1})

	if res.MarksObtained != 3 {
		t.Fatalf("expected marks 3, got %v", res.MarksObtained)
	}
	if res.TotalMarks != 10 {
		t.Fatalf("expected total 10, got %v", res.TotalMarks)
	}
	if res.Correct != 1 || res.Wrong != 1 || res.Unattempted != 1 {
		t.Fatalf("bad partition: %+v", res)
	}
	if res.Percentage != 30 {
		t.Fatalf("expected 30%%, got %v", res.Percentage)
	}

	// Sum of per-question awarded marks matches the aggregate.
	var sum float64
	for _, s := range res.Scores {
		sum += s.MarksAwarded
	}
	if sum != res.MarksObtained {
		t.Fatalf("aggregate %v does not match per-question sum %v", res.MarksObtained, sum)
	}
}

func TestGrade_NegativeMarkingClampsAtZero(t *testing.T) {
	q1 := question(model.QuestionSingleChoice, 1)
	q1.CorrectOptions = []int{0}
	q2 := question(model.QuestionSingleChoice, 1)
	q2.CorrectOptions = []int{0}

	answers := map[uuid.UUID]model.Answer{
		q1.ID: {QuestionID: q1.ID, SelectedOptions: []int{1}},
		q2.ID: {QuestionID: q2.ID, SelectedOptions: []int{1}},
	}

	res := Grade([]model.Question{q1, q2}, answers, Config{NegativeMarks: 5})
	if res.MarksObtained != 0 {
		t.Fatalf("expected clamp at 0, got %v", res.MarksObtained)
	}
	if res.Percentage != 0 {
		t.Fatalf("expected 0%%, got %v", res.Percentage)
	}
}

func TestGrade_ZeroTotalMarks(t *testing.T) {
	res := Grade(nil, nil, Config{})
	if res.Percentage != 0 || res.MarksObtained != 0 {
		t.Fatalf("expected zeros for empty exam, got %+v", res)
	}
}

func TestGrade_Deterministic(t *testing.T) {
	q := question(model.QuestionMultiChoice, 6)
	q.CorrectOptions = []int{1, 2}
	answers := map[uuid.UUID]model.Answer{
		q.ID: {QuestionID: q.ID, SelectedOptions: []int{2, 1}},
	}

	first := Grade([]model.Question{q}, answers, Config{})
	for i := 0; i < 10; i++ {
		again := Grade([]model.Question{q}, answers, Config{})
		if again.MarksObtained != first.MarksObtained || again.Percentage != first.Percentage {
			t.Fatalf("grading not deterministic: %+v vs %+v", first, again)
		}
	}
}

func assertScore(t *testing.T, got QuestionScore, verdict Verdict, awarded float64) {
	t.Helper()
	if got.Verdict != verdict {
		t.Fatalf("expected verdict=%s, got=%s", verdict, got.Verdict)
	}
	if got.MarksAwarded != awarded {
		t.Fatalf("expected awarded=%v, got=%v", awarded, got.MarksAwarded)
	}
}
