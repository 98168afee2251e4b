package executor

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// newRunName returns a fresh name shared by a run's container and workspace.
func newRunName() string {
	return containerNamePrefix + uuid.NewString()
}

// createWorkspaceDir makes an empty, world-writable workspace at root/name.
// The sandbox user rarely matches the host uid, and cargo must be able to
// create target/ inside the mount.
func createWorkspaceDir(root, name string) (string, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("failed to create workspace root %s: %w", root, err)
	}
	dir := filepath.Join(root, name)
	if err := os.Mkdir(dir, 0o777); err != nil {
		return "", fmt.Errorf("failed to create workspace %s: %w", dir, err)
	}
	if err := os.Chmod(dir, 0o777); err != nil {
		return dir, fmt.Errorf("failed to chmod workspace %s: %w", dir, err)
	}
	return dir, nil
}

// PrepareWorkspace builds a fresh workspace under root holding a copy of the
// challenge template plus the submission at SubmissionPath. A missing
// template is not an error. When the directory was created but filling it
// failed, the path is returned alongside the error so the caller can remove it.
func PrepareWorkspace(root, challengeDir, submission string) (string, error) {
	dir, err := createWorkspaceDir(root, newRunName())
	if err != nil {
		return dir, err
	}
	return dir, populateWorkspace(dir, challengeDir, submission)
}

// populateWorkspace fills an existing, empty workspace directory.
func populateWorkspace(dir, challengeDir, submission string) error {
	if challengeDir != "" {
		info, err := os.Stat(challengeDir)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// submission-only challenge
		case err != nil:
			return fmt.Errorf("failed to stat challenge template: %w", err)
		case !info.IsDir():
			return fmt.Errorf("challenge template %s is not a directory", challengeDir)
		default:
			// WalkDir does not follow a symlinked root
			src, err := filepath.EvalSymlinks(challengeDir)
			if err != nil {
				return fmt.Errorf("failed to resolve challenge template: %w", err)
			}
			if err := copyDir(src, dir); err != nil {
				return err
			}
		}
	}

	target := filepath.Join(dir, filepath.FromSlash(SubmissionPath))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create source directory: %w", err)
	}
	if err := os.WriteFile(target, []byte(submission), 0o644); err != nil {
		return fmt.Errorf("failed to write submission: %w", err)
	}
	return nil
}

// copyDir recursively copies src into dst, keeping file modes and symlinks.
func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case d.Type().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		default:
			// sockets, devices and pipes have no place in a template
			return nil
		}
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
