// Command executor runs the reference Executor: a real implementation of
// the Controller's action vocabulary (clone_repo/read_py_files/create_venv/
// edit/run_in_venv) that dials the Controller's Framed Transport and
// services Tasks until the connection drops, then redials, matching the
// reconnect-on-drop shape the teacher's own long-lived clients use.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/agentctl/controller/internal/executor"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("executor: no .env file found, continuing with process environment")
	}

	addr := getEnvOrDefault("EXECUTOR_CONTROLLER_ADDR", "localhost:9001")
	executor.BaseDir = getEnvOrDefault("EXECUTOR_BASE_DIR", ".")

	if executor.UseDockerSandbox() {
		slog.Info("executor: sandboxed execution enabled (EXECUTOR_DOCKER=1)", "image", executor.SandboxImage)
	}

	client := executor.New(addr, executor.DefaultActions())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		slog.Info("executor: shutdown signal received")
		cancel()
	}()

	backoff := time.Second
	const maxBackoff = 10 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		slog.Info("executor: connecting to controller", "addr", addr)
		if err := client.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("executor: connection ended, retrying", "error", err, "backoff", backoff)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
