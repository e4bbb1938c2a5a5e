package task

import (
	"treadmill/internal/common/queue"
	"treadmill/internal/judge/apiclient"
	"treadmill/internal/judge/config"
	"treadmill/internal/judge/container"
	"treadmill/internal/judge/datapack"
	"treadmill/internal/judge/model"
	"treadmill/internal/judge/path"
	"treadmill/pkg/utils/telemetry"
)

// Context carries one judge request through the pipeline. It is built
// by the consumer, filled in by FetchSubmission, and read by every
// stage after that.
type Context struct {
	Config  *config.Config
	Request *model.JudgeRequest

	// Populated by FetchSubmission.
	Submission *model.Submission
	Spec       *model.JudgeSpec
	SubmLang   *model.Language
	GraderLang *model.Language // nil when the problem checks by file diff

	// Accumulated as cases run. Time counts passed cases only; memory
	// is the maximum over all executed cases.
	TotalScore int
	TotalTime  float64
	MaxMemory  int64

	Containers container.Client
	API        apiclient.Gateway
	Queue      queue.Producer
	DataPacks  datapack.Provider
	Telemetry  *telemetry.Hub

	Runner *Runner
}

// NewContext creates the context for one judge request.
func NewContext(cfg *config.Config, req *model.JudgeRequest) *Context {
	return &Context{
		Config:  cfg,
		Request: req,
		Runner:  NewRunner(),
	}
}

// WorkspaceRoot returns the host directory holding this request's
// workspace.
func (tc *Context) WorkspaceRoot() string {
	return path.WorkspaceRoot(tc.Config.Workspace.HostRoot, tc.Request.ID)
}

// HostPath maps an AFP to its location on the worker host.
func (tc *Context) HostPath(p path.AFP) string {
	return p.Host(tc.Config.Workspace.HostRoot, tc.Request.ID)
}

// HasGrader reports whether this problem judges output with a grader
// program instead of a file comparison.
func (tc *Context) HasGrader() bool {
	return tc.Spec != nil && tc.Spec.Grader != nil
}
