package ops

import (
	"context"
	"strings"

	"treadmill/internal/judge/container"
	"treadmill/internal/judge/task"
	"treadmill/pkg/utils/logger"
)

// RunDockerContainer starts a keep-alive container with this request's
// workspace bound at /workspace and returns the container id
func RunDockerContainer(ctx context.Context, tc *task.Context, image string, privileged bool) (string, error) {
	logger.Debugf(ctx, "op: run container %s privileged=%t", image, privileged)
	return tc.Containers.Run(ctx, container.RunSpec{
		Image:         image,
		WorkspaceHost: tc.WorkspaceRoot(),
		Privileged:    privileged,
	})
}

// ExecInDockerContainer runs argv through /bin/sh -c inside id. A
// non-zero exit comes back in the result, not as an error.
func ExecInDockerContainer(ctx context.Context, tc *task.Context, id string, argv []string) (container.ExecResult, error) {
	logger.Debugf(ctx, "op: exec in %.12s: %s", id, strings.Join(argv, " "))
	return tc.Containers.Exec(ctx, id, argv)
}

// KillDockerContainer stops and removes id, tolerating one already gone
func KillDockerContainer(ctx context.Context, tc *task.Context, id string) error {
	logger.Debugf(ctx, "op: kill container %.12s", id)
	return tc.Containers.Kill(ctx, id)
}
