package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 12000-12999: Front-office API errors (transient)
// 13100-13199: Submission faults (resolve to final verdicts)
// 13200-13299: Judge infrastructure faults
// 13400-13499: Worker infrastructure errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	InvalidConfig       ErrorCode = 10004

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200
	LockFailed ErrorCode = 10203

	// ========== Front-Office API Errors (12000-12999) ==========

	// Transient transport or decode failures against the judge API.
	// The request stays in the queue and is redelivered.
	InternalAPIError ErrorCode = 12000
	APIDecodeFailed  ErrorCode = 12001

	// ========== Submission Faults (13100-13199) ==========

	// Caused by the submitted program. These terminate grading with a
	// final verdict and are never retried.
	SubmissionCompileError ErrorCode = 13101
	SubmissionRuntimeError ErrorCode = 13102
	TimeLimitExceeded      ErrorCode = 13103
	MemoryLimitExceeded    ErrorCode = 13104
	WrongAnswer            ErrorCode = 13105

	// ========== Judge Infrastructure Faults (13200-13299) ==========

	// Faults of the judge itself. The submission is not at fault; the
	// request is parked on the retry queue with an INTERNAL_ERROR status.
	IsolateInitFail       ErrorCode = 13201
	IsolateExecutionError ErrorCode = 13202
	GraderCompileError    ErrorCode = 13203
	GraderRuntimeError    ErrorCode = 13204
	UnsupportedLanguage   ErrorCode = 13205
	PreconditionFailed    ErrorCode = 13206

	// ========== Worker Infrastructure (13400-13499) ==========

	ContainerError ErrorCode = 13401
	QueueError     ErrorCode = 13402
	StorageError   ErrorCode = 13403
	WorkspaceError ErrorCode = 13404
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	InvalidConfig:       "Invalid configuration",

	// Cache
	CacheError: "Cache operation failed",
	LockFailed: "Failed to acquire lock",

	// Front-office API
	InternalAPIError: "Judge API request failed",
	APIDecodeFailed:  "Failed to decode judge API response",

	// Submission faults
	SubmissionCompileError: "Submission failed to compile",
	SubmissionRuntimeError: "Submission exited abnormally",
	TimeLimitExceeded:      "Time limit exceeded",
	MemoryLimitExceeded:    "Memory limit exceeded",
	WrongAnswer:            "Wrong answer",

	// Judge infrastructure faults
	IsolateInitFail:       "Failed to initialize isolate sandbox",
	IsolateExecutionError: "Isolate wrapper failed",
	GraderCompileError:    "Grader failed to compile",
	GraderRuntimeError:    "Grader exited abnormally",
	UnsupportedLanguage:   "Programming language not supported",
	PreconditionFailed:    "Task precondition not satisfied",

	// Worker infrastructure
	ContainerError: "Container operation failed",
	QueueError:     "Queue operation failed",
	StorageError:   "Object storage operation failed",
	WorkspaceError: "Workspace operation failed",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == InvalidParams:
		return 400
	case c == NotFound:
		return 404
	case c == InternalAPIError:
		return 502
	default:
		return 500
	}
}

// IsRetryable reports whether the error is transient. Retryable errors
// leave the judge request in the queue for redelivery instead of
// producing a verdict.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case InternalAPIError, APIDecodeFailed:
		return true
	}
	return false
}

// IsUserFault reports whether the error is caused by the submitted
// program rather than the judge infrastructure.
func IsUserFault(err error) bool {
	c := GetCode(err)
	return c >= 13100 && c < 13200
}
