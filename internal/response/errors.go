package response

// ErrCode is a typed error code enum for consistent API error identification.
//
// The lowercase codes are the candidate-facing denial vocabulary: clients
// branch on them, so they are part of the wire contract and never renamed.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden           ErrCode = "FORBIDDEN"
	ErrCandidateAccessOnly ErrCode = "CANDIDATE_ACCESS_ONLY"
	ErrAdminAccessOnly     ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrConflict        ErrCode = "CONFLICT"
	ErrActionForbidden ErrCode = "ACTION_FORBIDDEN"

	// ─── Exam administration ───────────────────────────────────────────
	ErrExamNotDraft     ErrCode = "EXAM_NOT_DRAFT"
	ErrExamNotPublished ErrCode = "EXAM_NOT_PUBLISHED"
	ErrNoQuestions      ErrCode = "NO_QUESTIONS"
	ErrBatchLocked      ErrCode = "BATCH_LOCKED"
	ErrBatchingDisabled ErrCode = "BATCHING_DISABLED"

	// ─── Candidate denial vocabulary (stable, lowercase) ───────────────
	DenyExamNotFound   ErrCode = "exam_not_found"
	DenyExamNotActive  ErrCode = "exam_not_active"
	DenyExamNotStarted ErrCode = "exam_not_started"
	DenyExamEnded      ErrCode = "exam_ended"
	DenyNotEnrolled    ErrCode = "not_enrolled"
	DenyBatchNotActive ErrCode = "batch_not_active"
	DenyNotInAnyBatch  ErrCode = "not_in_any_batch"
	DenyBatchFull      ErrCode = "batch_full"
	DenySessionExists  ErrCode = "session_exists"
	DenyTimeExpired    ErrCode = "time_expired"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Invalid username or password."
	case ErrSessionInvalidated:
		return "Your login session has ended. Please sign in again."
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrTokenExpired:
		return "Authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrCandidateAccessOnly:
		return "This resource is restricted to candidates."
	case ErrAdminAccessOnly:
		return "This resource is restricted to administrators."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."
	case ErrActionForbidden:
		return "This action is not allowed."

	// ─── Exam administration ───────────────────────────────────────────
	case ErrExamNotDraft:
		return "This exam is not in draft status."
	case ErrExamNotPublished:
		return "This exam has not been published."
	case ErrNoQuestions:
		return "This exam has no questions."
	case ErrBatchLocked:
		return "This batch is locked and can no longer be modified."
	case ErrBatchingDisabled:
		return "Batching is not enabled for this exam."

	// ─── Candidate denials ─────────────────────────────────────────────
	case DenyExamNotFound:
		return "The exam does not exist."
	case DenyExamNotActive:
		return "The exam is not currently accepting attempts."
	case DenyExamNotStarted:
		return "The exam window has not opened yet."
	case DenyExamEnded:
		return "The exam window has closed."
	case DenyNotEnrolled:
		return "You are not enrolled in this exam."
	case DenyBatchNotActive:
		return "Your batch is not active yet."
	case DenyNotInAnyBatch:
		return "You are not assigned to any batch for this exam."
	case DenyBatchFull:
		return "Your batch has reached its capacity."
	case DenySessionExists:
		return "An attempt is already active from another device."
	case DenyTimeExpired:
		return "Your attempt time has expired."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
