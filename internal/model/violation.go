package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ViolationType is the fixed vocabulary of integrity events.
type ViolationType string

const (
	ViolationTabSwitch         ViolationType = "tab_switch"
	ViolationWindowBlur        ViolationType = "window_blur"
	ViolationCopyAttempt       ViolationType = "copy_attempt"
	ViolationPasteAttempt      ViolationType = "paste_attempt"
	ViolationRightClick        ViolationType = "right_click"
	ViolationDevtoolsOpen      ViolationType = "devtools_open"
	ViolationMultipleTabs      ViolationType = "multiple_tabs"
	ViolationScreenshotAttempt ViolationType = "screenshot_attempt"
	ViolationPrintAttempt      ViolationType = "print_attempt"
	ViolationKeyboardShortcut  ViolationType = "keyboard_shortcut"
	ViolationFullscreenExit    ViolationType = "fullscreen_exit"
	ViolationMultipleLogin     ViolationType = "multiple_login"
	ViolationOther             ViolationType = "other"
)

// ViolationSeverity classifies how serious a violation type is.
type ViolationSeverity string

const (
	SeverityLow      ViolationSeverity = "low"
	SeverityMedium   ViolationSeverity = "medium"
	SeverityHigh     ViolationSeverity = "high"
	SeverityCritical ViolationSeverity = "critical"
)

// severityMap is the static type→severity classification.
var severityMap = map[ViolationType]ViolationSeverity{
	ViolationDevtoolsOpen:      SeverityCritical,
	ViolationCopyAttempt:       SeverityHigh,
	ViolationPasteAttempt:      SeverityHigh,
	ViolationScreenshotAttempt: SeverityHigh,
	ViolationPrintAttempt:      SeverityHigh,
	ViolationMultipleTabs:      SeverityHigh,
	ViolationMultipleLogin:     SeverityHigh,
	ViolationTabSwitch:         SeverityMedium,
	ViolationWindowBlur:        SeverityMedium,
	ViolationKeyboardShortcut:  SeverityMedium,
	ViolationFullscreenExit:    SeverityMedium,
	ViolationRightClick:        SeverityLow,
	ViolationOther:             SeverityLow,
}

// SeverityFor returns the static severity for a violation type. Unknown types
// classify as low.
func SeverityFor(t ViolationType) ViolationSeverity {
	if s, ok := severityMap[t]; ok {
		return s
	}
	return SeverityLow
}

// Valid reports whether the type belongs to the fixed vocabulary.
func (t ViolationType) Valid() bool {
	_, ok := severityMap[t]
	return ok
}

// Violation is an immutable, append-only integrity record. Violations are
// never deleted or edited.
type Violation struct {
	ID        uuid.UUID         `json:"id"`
	SessionID uuid.UUID         `json:"session_id"`
	Type      ViolationType     `json:"type"`
	Severity  ViolationSeverity `json:"severity"`
	Details   string            `json:"details,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// ViolationActionKind is what the monitor tells the client to do next.
type ViolationActionKind string

const (
	ActionNone       ViolationActionKind = "none"
	ActionWarning    ViolationActionKind = "warning"
	ActionAutoSubmit ViolationActionKind = "auto_submit"
)

// ViolationAction is the monitor's verdict after recording one violation.
type ViolationAction struct {
	Action         ViolationActionKind `json:"action"`
	ViolationCount int                 `json:"violation_count"`
	// Remaining is how many more violations are tolerated before auto-submit.
	// Only set for warnings.
	Remaining int `json:"remaining,omitempty"`
}

// ViolationEvent is the raw event envelope queued for asynchronous archival.
// The archive stream is separate from the authoritative violations table and
// keeps the full client payload for later analysis.
type ViolationEvent struct {
	SessionID  uuid.UUID         `json:"session_id"`
	ExamID     uuid.UUID         `json:"exam_id"`
	Type       ViolationType     `json:"type"`
	Severity   ViolationSeverity `json:"severity"`
	Payload    json.RawMessage   `json:"payload"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// ReportViolationRequest is the payload for reporting one integrity event.
type ReportViolationRequest struct {
	Type    string `json:"type" binding:"required,max=40"`
	Details string `json:"details" binding:"omitempty,max=4000"`
}
