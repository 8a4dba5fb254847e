package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/agentctl/controller/internal/protocol"
)

// BaseDir is where the reference Executor clones and runs repositories.
// The reference cmd/executor binary sets this from a flag or env var.
var BaseDir = "."

// DefaultActions returns the full action table
// (clone_repo/read_py_files/create_venv/edit/run_in_venv), grounded on
// mrdon-cleared's internal/gitops git-via-os/exec pattern.
func DefaultActions() map[string]ActionFunc {
	return map[string]ActionFunc{
		"clone_repo":    CloneRepo,
		"read_py_files": ReadPyFiles,
		"create_venv":   CreateVenv,
		"edit":          Edit,
		"run_in_venv":   RunInVenv,
	}
}

func stringMeta(task *protocol.Task, key string) string {
	s, _ := task.Metadata[key].(string)
	return s
}

// CloneRepo runs `git clone <git_url> <dir>`, deriving dir from the URL's
// basename when metadata["dir_path"] isn't set.
func CloneRepo(ctx context.Context, task *protocol.Task) (map[string]any, error) {
	gitURL := stringMeta(task, "git_url")
	if gitURL == "" {
		return nil, fmt.Errorf("clone_repo: missing git_url")
	}
	dirName := stringMeta(task, "dir_path")
	if dirName == "" {
		dirName = repoNameFromURL(gitURL)
	}
	dest := filepath.Join(BaseDir, dirName)

	cmd := exec.CommandContext(ctx, "git", "clone", gitURL, dest)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return map[string]any{"stderr": string(output)}, fmt.Errorf("clone_repo: %w", err)
	}

	return map[string]any{
		"dir_path": dirName,
		"git_url":  gitURL,
		"stdout":   map[string]any{"repo": repoNameFromURL(gitURL)},
	}, nil
}

func repoNameFromURL(gitURL string) string {
	trimmed := strings.TrimRight(gitURL, "/")
	parts := strings.Split(trimmed, "/")
	name := parts[len(parts)-1]
	return strings.TrimSuffix(name, ".git")
}

// ReadPyFiles walks metadata["dir_path"] and returns every *.py file's
// path and contents.
func ReadPyFiles(ctx context.Context, task *protocol.Task) (map[string]any, error) {
	dirName := stringMeta(task, "dir_path")
	if dirName == "" {
		return nil, fmt.Errorf("read_py_files: missing dir_path")
	}
	root := filepath.Join(BaseDir, dirName)

	var files []any
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(path) != ".py" {
			return nil
		}
		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		rel, _ := filepath.Rel(root, path)
		files = append(files, map[string]any{"filename": rel, "content": string(content)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read_py_files: %w", err)
	}

	return map[string]any{"dir_path": dirName, "files": files}, nil
}

// CreateVenv runs `python3 -m venv <venv_name>` followed by `pip install
// -r <requirements>` inside it. When EXECUTOR_DOCKER=1 the same two steps
// run inside a throwaway sandbox container instead (see docker.go).
func CreateVenv(ctx context.Context, task *protocol.Task) (map[string]any, error) {
	dirPath := stringMeta(task, "dir_path")
	venvName := stringMeta(task, "venv_name")
	if venvName == "" {
		venvName = "venv"
	}
	requirements := stringMeta(task, "requirements")

	if UseDockerSandbox() {
		return createVenvInContainer(ctx, dirPath, venvName, requirements)
	}

	workDir := filepath.Join(BaseDir, dirPath)
	venvPath := filepath.Join(workDir, venvName)

	if output, err := exec.CommandContext(ctx, "python3", "-m", "venv", venvPath).CombinedOutput(); err != nil {
		return map[string]any{"stderr": string(output)}, fmt.Errorf("create_venv: %w", err)
	}

	if requirements != "" {
		pip := filepath.Join(venvPath, "bin", "pip")
		reqPath := filepath.Join(workDir, requirements)
		cmd := exec.CommandContext(ctx, pip, "install", "-r", reqPath)
		if output, err := cmd.CombinedOutput(); err != nil {
			return map[string]any{"stderr": string(output)}, fmt.Errorf("create_venv: pip install: %w", err)
		}
	}

	return map[string]any{"venv_path": venvPath}, nil
}

// Edit writes the Task's metadata filename->content pairs into dir_path.
func Edit(ctx context.Context, task *protocol.Task) (map[string]any, error) {
	dirPath := stringMeta(task, "cwd")
	if dirPath == "" {
		dirPath = stringMeta(task, "dir_path")
	}
	workDir := filepath.Join(BaseDir, dirPath)

	written := make([]string, 0, len(task.Metadata))
	for filename, content := range task.Metadata {
		if filename == "tabId" || filename == "cwd" || filename == "dir_path" {
			continue
		}
		text, ok := content.(string)
		if !ok {
			continue
		}
		path := filepath.Join(workDir, filename)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("edit: mkdir %s: %w", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
			return nil, fmt.Errorf("edit: write %s: %w", path, err)
		}
		written = append(written, filename)
	}

	return map[string]any{"written": written}, nil
}

// RunInVenv runs task.Target with the venv's interpreter (or inside the
// sandbox container when EXECUTOR_DOCKER=1), capturing stdout/stderr.
func RunInVenv(ctx context.Context, task *protocol.Task) (map[string]any, error) {
	target, _ := task.Target.(string)
	if target == "" {
		return nil, fmt.Errorf("run_in_venv: missing target")
	}
	cwd := stringMeta(task, "cwd")
	venvPath := stringMeta(task, "venv_path")

	if UseDockerSandbox() {
		return runInContainer(ctx, cwd, venvPath, target)
	}

	workDir := filepath.Join(BaseDir, cwd)
	interpreter := filepath.Join(BaseDir, venvPath, "bin", "python")

	cmd := exec.CommandContext(ctx, interpreter, target)
	cmd.Dir = workDir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return map[string]any{"stderr": string(output)}, fmt.Errorf("run_in_venv: %w", err)
	}

	return map[string]any{"stdout": string(output)}, nil
}
