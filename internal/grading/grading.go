// Package grading scores exam attempts. It is pure and stateless: the same
// questions and answers always produce the same result, so re-grading an
// unchanged attempt is idempotent.
package grading

import (
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/proctorly/proctor-backend/internal/model"
)

// Verdict classifies one graded answer.
type Verdict string

const (
	VerdictCorrect     Verdict = "correct"
	VerdictIncorrect   Verdict = "incorrect"
	VerdictPartial     Verdict = "partial"
	VerdictUnattempted Verdict = "unattempted"
	// VerdictUngraded marks manual-review types. They score zero
	// automatically and never block submission.
	VerdictUngraded Verdict = "ungraded"
)

// QuestionScore is the outcome for a single question.
type QuestionScore struct {
	QuestionID    uuid.UUID
	Verdict       Verdict
	MarksAwarded  float64
	MarksPossible float64
	NeedsManual   bool
}

// Result aggregates an attempt's scores.
type Result struct {
	Scores        []QuestionScore
	MarksObtained float64
	TotalMarks    float64
	Percentage    float64
	Correct       int
	Wrong         int
	Unattempted   int
	Ungraded      int
}

// Config carries exam-level scoring policy.
type Config struct {
	// TotalMarks overrides the sum of question marks when positive.
	TotalMarks float64
	// NegativeMarks is subtracted for each incorrect answer.
	NegativeMarks float64
}

// Grade scores every question of an attempt. Answers are keyed by question
// ID; a missing or empty answer is unattempted and never penalized.
func Grade(questions []model.Question, answers map[uuid.UUID]model.Answer, cfg Config) Result {
	res := Result{Scores: make([]QuestionScore, 0, len(questions))}

	var sumMarks float64
	for i := range questions {
		q := &questions[i]
		sumMarks += q.Marks

		ans, ok := answers[q.ID]
		var score QuestionScore
		if !ok || ans.Empty() {
			score = QuestionScore{QuestionID: q.ID, Verdict: VerdictUnattempted, MarksPossible: q.Marks}
		} else {
			score = scoreOne(q, &ans)
		}

		switch score.Verdict {
		case VerdictCorrect, VerdictPartial:
			res.Correct++
		case VerdictIncorrect:
			res.Wrong++
			score.MarksAwarded -= cfg.NegativeMarks
		case VerdictUnattempted:
			res.Unattempted++
		case VerdictUngraded:
			res.Ungraded++
		}

		res.MarksObtained += score.MarksAwarded
		res.Scores = append(res.Scores, score)
	}

	res.TotalMarks = cfg.TotalMarks
	if res.TotalMarks <= 0 {
		res.TotalMarks = sumMarks
	}

	// Negative marking may not drive the aggregate below zero, and awarded
	// marks can never exceed the total.
	if res.MarksObtained < 0 {
		res.MarksObtained = 0
	}
	if res.MarksObtained > res.TotalMarks {
		res.MarksObtained = res.TotalMarks
	}

	if res.TotalMarks > 0 {
		res.Percentage = res.MarksObtained / res.TotalMarks * 100
	}
	return res
}

// scoreOne dispatches exhaustively over the question type vocabulary.
func scoreOne(q *model.Question, ans *model.Answer) QuestionScore {
	score := QuestionScore{QuestionID: q.ID, MarksPossible: q.Marks}

	switch q.Type {
	case model.QuestionSingleChoice, model.QuestionTrueFalse:
		score.Verdict = verdictOf(scoreSingleChoice(q, ans))

	case model.QuestionMultiChoice:
		return scoreMultiChoice(q, ans, score)

	case model.QuestionNumerical:
		score.Verdict = verdictOf(scoreNumerical(q, ans))

	case model.QuestionFillBlank, model.QuestionShortAnswer:
		score.Verdict = verdictOf(scoreTextAnswer(q, ans))

	case model.QuestionLongAnswer, model.QuestionCode,
		model.QuestionMatching, model.QuestionOrdering:
		score.Verdict = VerdictUngraded
		score.NeedsManual = true
		return score

	default:
		score.Verdict = VerdictUngraded
		score.NeedsManual = true
		return score
	}

	if score.Verdict == VerdictCorrect {
		score.MarksAwarded = q.Marks
	}
	return score
}

func verdictOf(correct bool) Verdict {
	if correct {
		return VerdictCorrect
	}
	return VerdictIncorrect
}

// scoreSingleChoice awards full marks only on an exact single match.
func scoreSingleChoice(q *model.Question, ans *model.Answer) bool {
	if len(ans.SelectedOptions) != 1 || len(q.CorrectOptions) != 1 {
		return false
	}
	return ans.SelectedOptions[0] == q.CorrectOptions[0]
}

// scoreMultiChoice requires set equality by default. With PartialCredit the
// question awards proportional marks, but only when no incorrect option was
// selected.
func scoreMultiChoice(q *model.Question, ans *model.Answer, score QuestionScore) QuestionScore {
	correct := intSet(q.CorrectOptions)
	selected := intSet(ans.SelectedOptions)

	if setsEqual(correct, selected) {
		score.Verdict = VerdictCorrect
		score.MarksAwarded = q.Marks
		return score
	}

	if q.PartialCredit && len(correct) > 0 {
		hits := 0
		falsePositive := false
		for opt := range selected {
			if _, ok := correct[opt]; ok {
				hits++
			} else {
				falsePositive = true
			}
		}
		if !falsePositive && hits > 0 {
			score.Verdict = VerdictPartial
			score.MarksAwarded = q.Marks * float64(hits) / float64(len(correct))
			return score
		}
	}

	score.Verdict = VerdictIncorrect
	return score
}

// scoreNumerical passes when |candidate − correct| ≤ tolerance. Tolerance
// defaults to 0 (exact match).
func scoreNumerical(q *model.Question, ans *model.Answer) bool {
	if ans.NumericResponse == nil || q.CorrectValue == nil {
		return false
	}
	return math.Abs(*ans.NumericResponse-*q.CorrectValue) <= q.Tolerance
}

// scoreTextAnswer matches case-insensitively after trimming whitespace
// against any one of the accepted answers.
func scoreTextAnswer(q *model.Question, ans *model.Answer) bool {
	given := strings.TrimSpace(ans.TextResponse)
	if given == "" {
		return false
	}
	for _, accepted := range q.AcceptedAnswers {
		if strings.EqualFold(given, strings.TrimSpace(accepted)) {
			return true
		}
	}
	return false
}

func intSet(in []int) map[int]struct{} {
	m := make(map[int]struct{}, len(in))
	for _, v := range in {
		m[v] = struct{}{}
	}
	return m
}

func setsEqual(a, b map[int]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// ScoredAnswers converts a result to the submission's persisted shape.
func (r *Result) ScoredAnswers() []model.ScoredAnswer {
	out := make([]model.ScoredAnswer, 0, len(r.Scores))
	for _, s := range r.Scores {
		out = append(out, model.ScoredAnswer{
			QuestionID:    s.QuestionID,
			Verdict:       string(s.Verdict),
			MarksAwarded:  s.MarksAwarded,
			MarksPossible: s.MarksPossible,
		})
	}
	return out
}
