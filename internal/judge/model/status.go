package model

// JudgeStatus is the overall verdict of a judge request. The wire codes
// match the judge API's status enum.
type JudgeStatus string

const (
	StatusEnqueued      JudgeStatus = "ENQ"
	StatusInProgress    JudgeStatus = "IP"
	StatusCompileError  JudgeStatus = "CTE"
	StatusPassed        JudgeStatus = "PASS"
	StatusFailed        JudgeStatus = "FAIL"
	StatusInternalError JudgeStatus = "IERR"
)

// TestCaseStatus is the verdict of one test case run
type TestCaseStatus string

const (
	CaseNotJudged           TestCaseStatus = "NA"
	CaseRuntimeError        TestCaseStatus = "RTE"
	CaseWrongAnswer         TestCaseStatus = "WA"
	CaseMemoryLimitExceeded TestCaseStatus = "MLE"
	CaseTimeLimitExceeded   TestCaseStatus = "TLE"
	CasePassed              TestCaseStatus = "PASS"
)

// TestSetStatus is the verdict of one test set
type TestSetStatus string

const (
	SetPassed TestSetStatus = "PASS"
	SetFailed TestSetStatus = "FAIL"
)
