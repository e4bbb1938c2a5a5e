package model

// TestCaseResult is the per-case PATCH payload sent to the judge API
type TestCaseResult struct {
	Status             TestCaseStatus `json:"status"`
	MemoryUsedBytes    int64          `json:"memory_used_bytes"`
	TimeElapsedSeconds float64        `json:"time_elapsed_seconds"`
	Error              string         `json:"error,omitempty"`
}

// TestSetResult is the per-set PATCH payload
type TestSetResult struct {
	Score  int           `json:"score"`
	Status TestSetStatus `json:"status"`
}

// JudgeResult is the overall PATCH payload
type JudgeResult struct {
	Status             JudgeStatus `json:"status"`
	TotalScore         int         `json:"total_score"`
	MemoryUsedBytes    int64       `json:"memory_used_bytes"`
	TimeElapsedSeconds float64     `json:"time_elapsed_seconds"`
	Error              string      `json:"error,omitempty"`
}
