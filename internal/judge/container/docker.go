package container

import (
	"bytes"
	"context"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"treadmill/pkg/errors"
)

const workspaceMount = "/workspace"

// DockerClient implements Client on the Docker Engine API
type DockerClient struct {
	cli *client.Client
}

// NewDockerClient connects to the container engine. An empty host uses
// the environment default (DOCKER_HOST or the local socket).
func NewDockerClient(host string) (*DockerClient, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	} else {
		opts = append(opts, client.FromEnv)
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ContainerError)
	}
	return &DockerClient{cli: cli}, nil
}

// Run creates and starts a keep-alive container
func (d *DockerClient) Run(ctx context.Context, spec RunSpec) (string, error) {
	cfg := &container.Config{
		Image: spec.Image,
		Cmd:   []string{"/bin/sh"},
		// an open stdin keeps the shell from exiting immediately
		OpenStdin: true,
	}
	hostCfg := &container.HostConfig{
		Privileged: spec.Privileged,
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: spec.WorkspaceHost,
			Target: workspaceMount,
		}},
	}

	resp, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return "", errors.Wrapf(err, errors.ContainerError, "create container from %s", spec.Image)
	}
	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = d.cli.ContainerRemove(context.WithoutCancel(ctx), resp.ID, container.RemoveOptions{Force: true})
		return "", errors.Wrapf(err, errors.ContainerError, "start container from %s", spec.Image)
	}
	return resp.ID, nil
}

// Exec runs argv through /bin/sh -c and waits for it to finish
func (d *DockerClient) Exec(ctx context.Context, id string, argv []string) (ExecResult, error) {
	created, err := d.cli.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          []string{"/bin/sh", "-c", strings.Join(argv, " ")},
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return ExecResult{}, errors.Wrapf(err, errors.ContainerError, "exec create in %s", shortID(id))
	}

	attach, err := d.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return ExecResult{}, errors.Wrapf(err, errors.ContainerError, "exec attach in %s", shortID(id))
	}
	defer attach.Close()

	// draining the stream is what waits for the command to exit
	var combined bytes.Buffer
	if _, err := stdcopy.StdCopy(&combined, &combined, attach.Reader); err != nil {
		return ExecResult{}, errors.Wrapf(err, errors.ContainerError, "exec read in %s", shortID(id))
	}

	inspect, err := d.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return ExecResult{}, errors.Wrapf(err, errors.ContainerError, "exec inspect in %s", shortID(id))
	}
	return ExecResult{ExitCode: inspect.ExitCode, Output: combined.String()}, nil
}

// Kill stops and removes the container, tolerating ones already gone
func (d *DockerClient) Kill(ctx context.Context, id string) error {
	stopTimeout := 1
	err := d.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &stopTimeout})
	if err != nil && !client.IsErrNotFound(err) {
		return errors.Wrapf(err, errors.ContainerError, "stop container %s", shortID(id))
	}

	err = d.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
	if err != nil && !client.IsErrNotFound(err) {
		return errors.Wrapf(err, errors.ContainerError, "remove container %s", shortID(id))
	}
	return nil
}

// Close releases the underlying engine connection
func (d *DockerClient) Close() error {
	return d.cli.Close()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
