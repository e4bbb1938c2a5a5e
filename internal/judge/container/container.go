// Package container manages the per-request builder and sandbox
// containers. Containers are long-lived for the duration of one stage:
// started with a keep-alive shell, exec'd into repeatedly, then killed.
package container

import "context"

// Client is the container engine surface the judge stages need
type Client interface {
	// Run creates and starts a keep-alive container and returns its id
	Run(ctx context.Context, spec RunSpec) (string, error)

	// Exec runs argv through /bin/sh -c inside a running container and
	// returns the exit code with interleaved stdout and stderr. A
	// non-zero exit is a result, not an error.
	Exec(ctx context.Context, id string, argv []string) (ExecResult, error)

	// Kill stops and removes a container. Killing one that is already
	// gone succeeds.
	Kill(ctx context.Context, id string) error
}

// RunSpec describes a workspace-bound container
type RunSpec struct {
	Image string

	// WorkspaceHost is the host directory bound read-write at /workspace
	WorkspaceHost string

	// Privileged grants the cgroup access isolate needs. Builder
	// containers never set it.
	Privileged bool
}

// ExecResult is the outcome of one exec
type ExecResult struct {
	ExitCode int
	Output   string
}
