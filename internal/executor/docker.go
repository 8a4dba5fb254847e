package executor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// SandboxImage is the container image create_venv/run_in_venv use when
// sandboxed execution is enabled, matching the Bridge's "sandbox
// directory" framing of where generated code actually executes.
var SandboxImage = "python:3.11-slim"

// UseDockerSandbox reports whether EXECUTOR_DOCKER=1 is set, switching
// create_venv/run_in_venv from a local os/exec path to a throwaway
// container.
func UseDockerSandbox() bool {
	return os.Getenv("EXECUTOR_DOCKER") == "1"
}

func dockerClient() (*client.Client, error) {
	return client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
}

// runSandboxed runs shellCmd inside a fresh SandboxImage container with
// hostDir bind-mounted at /workspace, and returns its combined output.
func runSandboxed(ctx context.Context, hostDir, shellCmd string) (string, error) {
	cli, err := dockerClient()
	if err != nil {
		return "", fmt.Errorf("sandbox: docker client: %w", err)
	}
	defer cli.Close()

	absHostDir, err := filepath.Abs(hostDir)
	if err != nil {
		return "", fmt.Errorf("sandbox: resolve %s: %w", hostDir, err)
	}

	resp, err := cli.ContainerCreate(ctx, &container.Config{
		Image:      SandboxImage,
		Cmd:        []string{"sh", "-c", shellCmd},
		WorkingDir: "/workspace",
		Tty:        false,
	}, &container.HostConfig{
		Mounts: []mount.Mount{
			{Type: mount.TypeBind, Source: absHostDir, Target: "/workspace"},
		},
		AutoRemove: true,
	}, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("sandbox: create container: %w", err)
	}

	if err := cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return "", fmt.Errorf("sandbox: start container: %w", err)
	}

	statusCh, errCh := cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return "", fmt.Errorf("sandbox: wait container: %w", err)
		}
	case <-statusCh:
	}

	out, err := cli.ContainerLogs(ctx, resp.ID, types.ContainerLogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", fmt.Errorf("sandbox: read logs: %w", err)
	}
	defer out.Close()

	// The container was created with Tty: false, so stdout/stderr arrive
	// multiplexed per the Docker log stream framing; demux before use.
	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, out); err != nil {
		return "", fmt.Errorf("sandbox: demux logs: %w", err)
	}
	return buf.String(), nil
}

func createVenvInContainer(ctx context.Context, dirPath, venvName, requirements string) (map[string]any, error) {
	workDir := filepath.Join(BaseDir, dirPath)
	shellCmd := fmt.Sprintf("python3 -m venv %s", venvName)
	if requirements != "" {
		shellCmd = fmt.Sprintf("%s && %s/bin/pip install -r %s", shellCmd, venvName, requirements)
	}

	output, err := runSandboxed(ctx, workDir, shellCmd)
	if err != nil {
		return map[string]any{"stderr": output}, err
	}
	return map[string]any{"venv_path": filepath.Join(dirPath, venvName), "stdout": output}, nil
}

func runInContainer(ctx context.Context, cwd, venvPath, target string) (map[string]any, error) {
	workDir := filepath.Join(BaseDir, cwd)
	relVenv, err := filepath.Rel(cwd, venvPath)
	if err != nil {
		relVenv = "venv"
	}
	shellCmd := fmt.Sprintf("%s/bin/python %s", relVenv, target)

	output, err := runSandboxed(ctx, workDir, shellCmd)
	if err != nil {
		return map[string]any{"stderr": output}, err
	}
	return map[string]any{"stdout": output}, nil
}
