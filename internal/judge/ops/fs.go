// Package ops holds the side-effecting steps judge stages are built
// from: workspace file handling, container control, judge API patches
// and queue publishes. Every op logs itself at debug and returns, so a
// failed run reads as a trace of the steps that led up to it. Control
// flow stays in the stages.
package ops

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"treadmill/internal/judge/path"
	"treadmill/internal/judge/task"
	"treadmill/pkg/errors"
	"treadmill/pkg/utils/logger"
)

// CheckFileExists fails when the host view of p is absent. Stages call
// it before handing files to a container so a staging bug surfaces as a
// precondition instead of a confusing in-container error.
func CheckFileExists(ctx context.Context, tc *task.Context, p path.AFP) error {
	logger.Debugf(ctx, "op: check file %s", p)
	if _, err := os.Stat(tc.HostPath(p)); err != nil {
		if os.IsNotExist(err) {
			return errors.PreconditionError("required file %s is missing", p)
		}
		return errors.Wrapf(err, errors.WorkspaceError, "stat %s", p)
	}
	return nil
}

// CreateFile makes the parent directories and an empty file at the host
// view of p. A non-zero mode is chmodded on afterwards; the create mode
// alone is filtered by the umask, and sandbox output files must end up
// 0666 so the isolated uid can write them.
func CreateFile(ctx context.Context, tc *task.Context, p path.AFP, mode os.FileMode) error {
	logger.Debugf(ctx, "op: create file %s", p)
	host := tc.HostPath(p)
	if err := os.MkdirAll(filepath.Dir(host), 0o755); err != nil {
		return errors.Wrapf(err, errors.WorkspaceError, "make parent of %s", p)
	}
	f, err := os.OpenFile(host, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, errors.WorkspaceError, "create %s", p)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, errors.WorkspaceError, "create %s", p)
	}
	if mode != 0 {
		if err := os.Chmod(host, mode); err != nil {
			return errors.Wrapf(err, errors.WorkspaceError, "chmod %s", p)
		}
	}
	return nil
}

// ReadFile returns the contents of the host view of p
func ReadFile(ctx context.Context, tc *task.Context, p path.AFP) (string, error) {
	logger.Debugf(ctx, "op: read file %s", p)
	data, err := os.ReadFile(tc.HostPath(p))
	if err != nil {
		return "", errors.Wrapf(err, errors.WorkspaceError, "read %s", p)
	}
	return string(data), nil
}

// CompareFile reports whether two staged files hold the same bytes
// after trimming leading and trailing whitespace from each
func CompareFile(ctx context.Context, tc *task.Context, got, want path.AFP) (bool, error) {
	logger.Debugf(ctx, "op: compare %s against %s", got, want)
	a, err := os.ReadFile(tc.HostPath(got))
	if err != nil {
		return false, errors.Wrapf(err, errors.WorkspaceError, "read %s", got)
	}
	b, err := os.ReadFile(tc.HostPath(want))
	if err != nil {
		return false, errors.Wrapf(err, errors.WorkspaceError, "read %s", want)
	}
	return bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b)), nil
}

// MakeDirectory creates hostPath with mode, parents included. With
// existOK false an existing directory is an error.
func MakeDirectory(ctx context.Context, hostPath string, mode os.FileMode, existOK bool) error {
	logger.Debugf(ctx, "op: make directory %s", hostPath)
	if !existOK {
		if _, err := os.Stat(hostPath); err == nil {
			return errors.Newf(errors.WorkspaceError, "directory %s already exists", hostPath)
		}
	}
	if err := os.MkdirAll(hostPath, mode); err != nil {
		return errors.Wrapf(err, errors.WorkspaceError, "make directory %s", hostPath)
	}
	// the mkdir mode is filtered by the umask
	if err := os.Chmod(hostPath, mode); err != nil {
		return errors.Wrapf(err, errors.WorkspaceError, "chmod %s", hostPath)
	}
	return nil
}

// CopyFile copies srcHost to dstHost, creating parent directories and
// truncating any leftover from an earlier run of the same request
func CopyFile(ctx context.Context, srcHost, dstHost string) error {
	logger.Debugf(ctx, "op: copy %s to %s", srcHost, dstHost)
	if err := os.MkdirAll(filepath.Dir(dstHost), 0o755); err != nil {
		return errors.Wrapf(err, errors.WorkspaceError, "make parent of %s", dstHost)
	}
	src, err := os.Open(srcHost)
	if err != nil {
		return errors.Wrapf(err, errors.WorkspaceError, "open %s", srcHost)
	}
	defer src.Close()

	dst, err := os.OpenFile(dstHost, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrapf(err, errors.WorkspaceError, "create %s", dstHost)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return errors.Wrapf(err, errors.WorkspaceError, "copy %s to %s", srcHost, dstHost)
	}
	if err := dst.Close(); err != nil {
		return errors.Wrapf(err, errors.WorkspaceError, "close %s", dstHost)
	}
	return nil
}

// CreateSymlink links dstHost to srcHost instead of copying. A stale
// link from a crashed run of the same request is replaced.
func CreateSymlink(ctx context.Context, srcHost, dstHost string) error {
	logger.Debugf(ctx, "op: link %s to %s", srcHost, dstHost)
	if err := os.MkdirAll(filepath.Dir(dstHost), 0o755); err != nil {
		return errors.Wrapf(err, errors.WorkspaceError, "make parent of %s", dstHost)
	}
	err := os.Symlink(srcHost, dstHost)
	if os.IsExist(err) {
		if err := os.Remove(dstHost); err != nil {
			return errors.Wrapf(err, errors.WorkspaceError, "replace %s", dstHost)
		}
		err = os.Symlink(srcHost, dstHost)
	}
	if err != nil {
		return errors.Wrapf(err, errors.WorkspaceError, "link %s to %s", srcHost, dstHost)
	}
	return nil
}

// RemoveDirectory deletes hostPath recursively. A missing directory is
// not an error.
func RemoveDirectory(ctx context.Context, hostPath string) error {
	logger.Debugf(ctx, "op: remove directory %s", hostPath)
	if err := os.RemoveAll(hostPath); err != nil {
		return errors.Wrapf(err, errors.WorkspaceError, "remove directory %s", hostPath)
	}
	return nil
}
