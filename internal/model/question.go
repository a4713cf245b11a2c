package model

import (
	"github.com/google/uuid"
)

// QuestionType is the fixed vocabulary of question kinds. The grading engine
// dispatches exhaustively over it.
type QuestionType string

const (
	QuestionSingleChoice QuestionType = "single_choice"
	QuestionMultiChoice  QuestionType = "multi_choice"
	QuestionTrueFalse    QuestionType = "true_false"
	QuestionNumerical    QuestionType = "numerical"
	QuestionFillBlank    QuestionType = "fill_blank"
	QuestionShortAnswer  QuestionType = "short_answer"
	QuestionLongAnswer   QuestionType = "long_answer"
	QuestionCode         QuestionType = "code"
	QuestionMatching     QuestionType = "matching"
	QuestionOrdering     QuestionType = "ordering"
)

// AutoGradable reports whether the type can be scored without manual review.
func (t QuestionType) AutoGradable() bool {
	switch t {
	case QuestionSingleChoice, QuestionMultiChoice, QuestionTrueFalse,
		QuestionNumerical, QuestionFillBlank, QuestionShortAnswer:
		return true
	}
	return false
}

// Question is a tagged variant over QuestionType. Only the fields relevant to
// the type carry meaning:
//   - choice types: Options, CorrectOptions (indices into Options)
//   - numerical: CorrectValue, Tolerance
//   - fill_blank / short_answer: AcceptedAnswers
//   - manual types: none of the above
type Question struct {
	ID              uuid.UUID    `json:"id"`
	ExamID          uuid.UUID    `json:"exam_id"`
	Text            string       `json:"text"`
	Type            QuestionType `json:"type"`
	Marks           float64      `json:"marks"`
	Options         []string     `json:"options,omitempty"`
	CorrectOptions  []int        `json:"correct_options,omitempty"`
	AcceptedAnswers []string     `json:"accepted_answers,omitempty"`
	CorrectValue    *float64     `json:"correct_value,omitempty"`
	Tolerance       float64      `json:"tolerance,omitempty"`
	// PartialCredit opts a multi_choice question into proportional scoring.
	// Default is all-or-nothing.
	PartialCredit bool `json:"partial_credit,omitempty"`
	OrderNum      int  `json:"order_num"`
}

// QuestionForCandidate is a question with the answer key stripped.
type QuestionForCandidate struct {
	ID       uuid.UUID    `json:"id"`
	Text     string       `json:"text"`
	Type     QuestionType `json:"type"`
	Marks    float64      `json:"marks"`
	Options  []string     `json:"options,omitempty"`
	OrderNum int          `json:"order_num"`
}

// Strip returns the candidate-facing view of the question.
func (q *Question) Strip() QuestionForCandidate {
	return QuestionForCandidate{
		ID:       q.ID,
		Text:     q.Text,
		Type:     q.Type,
		Marks:    q.Marks,
		Options:  q.Options,
		OrderNum: q.OrderNum,
	}
}

// AddQuestionRequest is the payload for adding a question to an exam.
type AddQuestionRequest struct {
	Text            string   `json:"text" binding:"required,min=1,max=4000"`
	Type            string   `json:"type" binding:"required,oneof=single_choice multi_choice true_false numerical fill_blank short_answer long_answer code matching ordering"`
	Marks           float64  `json:"marks" binding:"required,gt=0"`
	Options         []string `json:"options" binding:"omitempty,dive,max=1000"`
	CorrectOptions  []int    `json:"correct_options" binding:"omitempty,dive,min=0"`
	AcceptedAnswers []string `json:"accepted_answers" binding:"omitempty,dive,max=1000"`
	CorrectValue    *float64 `json:"correct_value"`
	Tolerance       float64  `json:"tolerance" binding:"min=0"`
	PartialCredit   bool     `json:"partial_credit"`
	OrderNum        int      `json:"order_num" binding:"min=0"`
}

// ReplaceQuestionsRequest is the payload for bulk replacing an exam's questions.
type ReplaceQuestionsRequest struct {
	Questions []AddQuestionRequest `json:"questions" binding:"required,min=1,dive"`
}
