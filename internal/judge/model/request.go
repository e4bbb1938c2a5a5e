package model

import "time"

// JudgeRequest identifies one grading job. It doubles as the queue
// message payload and stays stable across retries, so the workspace
// path derived from ID is reused when a request is re-run.
type JudgeRequest struct {
	ID           int64     `json:"id"`
	ProblemID    int64     `json:"problem_id"`
	SubmissionID int64     `json:"submission_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Submission is the graded program's metadata from the judge API
type Submission struct {
	ID        int64   `json:"id"`
	UserID    int64   `json:"user_id"`
	Lang      string  `json:"lang"`
	SrcFile   string  `json:"src_file"`
	Problem   Problem `json:"problem"`
}

// Problem wraps the judge spec of the submitted problem
type Problem struct {
	ID        int64     `json:"id"`
	JudgeSpec JudgeSpec `json:"judge_spec"`
}

// JudgeSpec describes how to grade one problem
type JudgeSpec struct {
	TotalScore         int       `json:"total_score"`
	TestSets           []TestSet `json:"testsets"`
	Grader             *Grader   `json:"grader"`
	MemLimitBytes      int64     `json:"mem_limit_bytes"`
	TimeLimitSeconds   float64   `json:"time_limit_seconds"`
	FileSizeLimitKilos int64     `json:"file_size_limit_kilos,omitempty"`
	PidLimits          int64     `json:"pid_limits,omitempty"`
}

// TestSet awards its score only when every case passes
type TestSet struct {
	ID    int64      `json:"id"`
	Score int        `json:"score"`
	Cases []TestCase `json:"testcases"`
}

// TestCase holds the object store keys of one input/answer pair
type TestCase struct {
	ID         int64  `json:"id"`
	InputFile  string `json:"input_file"`
	OutputFile string `json:"output_file"`
}

// Grader is an optional checker program judging submission output
type Grader struct {
	Lang    string `json:"lang"`
	SrcFile string `json:"src_file"`
}

// Normalize fills spec defaults in place. Some old problem content
// stores the memory limit in kiB rather than bytes.
func (s *JudgeSpec) Normalize() {
	if s.TotalScore == 0 {
		s.TotalScore = 100
	}
	if s.PidLimits == 0 {
		s.PidLimits = 1
	}
	if s.MemLimitBytes <= 300_000 {
		s.MemLimitBytes *= 1024
	}
}
