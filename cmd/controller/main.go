// Command controller runs the Agent Orchestration Controller: the Framed
// Transport listener, Bridge Link, Workflow Dispatcher, and HTTP admin
// server, wired together the way the teacher's cmd/api and cmd/socket-
// gateway binaries wire their own components from a YAML+env Config.
package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/agentctl/controller/internal/audit"
	"github.com/agentctl/controller/internal/bridge"
	"github.com/agentctl/controller/internal/config"
	"github.com/agentctl/controller/internal/dedup"
	"github.com/agentctl/controller/internal/dispatcher"
	"github.com/agentctl/controller/internal/events"
	"github.com/agentctl/controller/internal/llm"
	"github.com/agentctl/controller/internal/metrics"
	"github.com/agentctl/controller/internal/pending"
	"github.com/agentctl/controller/internal/protocol"
	"github.com/agentctl/controller/internal/transport"
	"github.com/agentctl/controller/internal/workflow"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("controller: no .env file found, continuing with process environment")
	}

	configPath := getEnvOrDefault("CONTROLLER_CONFIG", "configs/config.yaml")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("controller: load config: %v", err)
	}

	prompts, err := config.LoadPrompts(cfg.Prompts)
	if err != nil {
		log.Fatalf("controller: load prompts: %v", err)
	}

	emitter := events.New()
	met := metrics.New()

	adapter := buildAdapter(cfg.LLM)
	router := llm.NewRouter(adapter, prompts)
	intent := llm.NewIntentClassifier(adapter, prompts)
	gitHandler := workflow.NewGitHandler(adapter, prompts)

	tabs := workflow.NewTabs()
	newPending := func() *pending.Manager { return pending.NewManager(emitter) }

	auditSink := buildAuditSink(cfg.Audit)
	defer auditSink.Close()

	dedupCache := buildDedupCache(cfg.Dedup)

	transportServer := transport.NewServer(cfg.Executor.ListenAddr, emitter)
	bridgeLink := bridge.New(cfg.Bridge.URL, emitter)
	bridgeLink.OnConnectedChange(met.SetBridgeConnected)
	bridgeLink.OnReconnect(func(attempt int, backoff time.Duration) {
		met.RecordBridgeReconnect(backoff.Seconds())
	})

	disp := dispatcher.New()
	wf := &workflow.Workflow{
		Dispatcher: disp,
		Tasks:      transportServer,
		Bridge:     bridgeLink,
		Router:     router,
		Intent:     intent,
		Git:        gitHandler,
		Adapter:    adapter,
		Prompts:    prompts,
		Tabs:       tabs,
		NewPending: newPending,
		Audit:      auditSink,
	}
	wf.Register()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wireCoderMessages(ctx, emitter, disp, dedupCache, met)
	wireUserMessages(ctx, emitter, disp, tabs, bridgeLink)

	go func() {
		if err := transportServer.Run(ctx); err != nil {
			slog.Error("controller: transport server stopped", "error", err)
		}
	}()
	go bridgeLink.Run(ctx)
	go pollPendingDepth(ctx, tabs, met)
	go pollExecutorConnected(ctx, transportServer, met)

	admin := newAdminServer(cfg.Server.AdminAddr, transportServer, bridgeLink, tabs)
	go func() {
		slog.Info("controller: admin server listening", "addr", cfg.Server.AdminAddr)
		if err := admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("controller: admin server failed", "error", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	slog.Info("controller: shutdown signal received, shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := admin.Shutdown(shutdownCtx); err != nil {
		slog.Error("controller: admin server shutdown error", "error", err)
	}
}

// buildAdapter returns the HTTP adapter when LLM_BACKEND_URL (or its YAML
// equivalent) is configured, falling back to an in-process static adapter
// so the Controller still runs end to end in an offline demo.
func buildAdapter(cfg config.LLMConfig) llm.Adapter {
	if cfg.BackendURL == "" {
		slog.Warn("controller: LLM backend URL not configured, using StaticAdapter (offline demo mode)")
		return &llm.StaticAdapter{Default: "conversation"}
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	return llm.NewHTTPAdapter(cfg.BackendURL, cfg.Model, timeout)
}

func buildAuditSink(cfg config.AuditConfig) audit.Sink {
	if cfg.DatabaseURL == "" {
		slog.Info("controller: audit database not configured, using NoopSink")
		return audit.NoopSink{}
	}
	sink, err := audit.Open(cfg.DatabaseURL, 0)
	if err != nil {
		slog.Warn("controller: audit database connection failed, falling back to NoopSink", "error", err)
		return audit.NoopSink{}
	}
	return sink
}

func buildDedupCache(cfg config.DedupConfig) dedup.Cache {
	if cfg.RedisAddr == "" {
		slog.Info("controller: dedup redis address not configured, using in-process MemCache")
		return dedup.NewMemCache(0)
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	return dedup.NewRedisCache(client, 0)
}

// wireCoderMessages subscribes to the Framed Transport's "coder_message"
// topic, drops already-seen replies per the Reply Dedup Cache, and
// dispatches the rest through the Workflow Dispatcher.
func wireCoderMessages(ctx context.Context, emitter *events.Emitter, disp *dispatcher.Dispatcher, cache dedup.Cache, met *metrics.Metrics) {
	emitter.On("coder_message", func(args ...any) {
		reply, ok := args[0].(*protocol.Reply)
		if !ok {
			return
		}

		key := dedup.Key(reply.Command, reply.Action, reply.TabID(), reply.Seq)
		seen, err := cache.SeenBefore(ctx, key)
		if err != nil {
			slog.Warn("controller: dedup check failed, dispatching anyway", "error", err)
		} else if seen {
			met.DedupHitsTotal.Inc()
			slog.Info("controller: dropped duplicate reply", "command", reply.Command, "action", reply.Action, "seq", reply.Seq)
			return
		}

		outcome := "ok"
		if err := disp.Dispatch(ctx, reply.Command, reply.Action, reply); err != nil {
			outcome = "error"
			slog.Error("controller: dispatch failed", "command", reply.Command, "action", reply.Action, "error", err)
		} else if !disp.Registered(reply.Command, reply.Action) {
			outcome = "no_handler"
		}
		met.RecordDispatch(reply.Command, reply.Action, outcome)
	})
}

// wireUserMessages subscribes to the Bridge Link's "user_message" topic and
// routes each inbound chat message to the pending-approval handler when the
// active tab has a pending approval queued, or to the normal-input handler
// otherwise, per SPEC_FULL.md §4.8's pending-first contract.
func wireUserMessages(ctx context.Context, emitter *events.Emitter, disp *dispatcher.Dispatcher, tabs *workflow.Tabs, bl *bridge.Link) {
	emitter.On("user_message", func(args ...any) {
		msg, ok := args[0].(*protocol.UserMessage)
		if !ok {
			return
		}

		action, ok := protocol.InternalAction(msg.Type)
		if !ok {
			slog.Warn("controller: unrecognized bridge message type, echoing as supervisor_log", "type", msg.Type)
			bl.Send(protocol.OutboundBridgeMessage{Type: protocol.OutboundSupervisorLog, Text: msg.Text, TabID: msg.TabID})
			return
		}

		if action == "reset" {
			if err := disp.Dispatch(ctx, dispatcher.NoCommand, "reset", nil); err != nil {
				slog.Error("controller: reset dispatch failed", "error", err)
			}
			return
		}

		active := tabs.Active()
		if active != nil && active.Pending.HasPending() {
			pendingAction, ok := active.Pending.Pop()
			if ok {
				in := workflow.PendingInput{Text: msg.Text, Pending: pendingAction}
				if err := disp.Dispatch(ctx, dispatcher.NoCommand, "user_input_pending", in); err != nil {
					slog.Error("controller: pending dispatch failed", "error", err)
				}
				return
			}
		}

		in := workflow.UserInput{Text: msg.Text}
		if err := disp.Dispatch(ctx, dispatcher.NoCommand, action, in); err != nil {
			slog.Error("controller: normal input dispatch failed", "error", err)
		}
	})
}

// pollPendingDepth refreshes the pending-queue-depth gauge for every tab
// every 500ms, matching SPEC_FULL.md §4.8's bounded polling interval for
// observability (dispatch itself is event-driven, not polled).
func pollPendingDepth(ctx context.Context, tabs *workflow.Tabs, met *metrics.Metrics) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, st := range tabs.All() {
				met.RecordPendingPopped(strconv.Itoa(st.TabID), st.Pending.Len())
			}
		}
	}
}

// pollExecutorConnected reflects the Framed Transport's peer state onto the
// executor_connected gauge; the transport package exposes no
// connect/disconnect callback, so this is observed by polling rather than
// pushed, unlike the Bridge Link's OnConnectedChange hook.
func pollExecutorConnected(ctx context.Context, ts *transport.Server, met *metrics.Metrics) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			met.SetExecutorConnected(ts.Connected())
		}
	}
}

func newAdminServer(addr string, ts *transport.Server, bl *bridge.Link, tabs *workflow.Tabs) *http.Server {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":            "ok",
			"executor_attached": ts.Connected(),
			"bridge_connected":  bl.Connected(),
		})
	}).Methods("GET")

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	r.HandleFunc("/debug/tabs", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		out := make([]map[string]any, 0)
		for _, st := range tabs.All() {
			snap := st.Snapshot()
			out = append(out, map[string]any{
				"tabId":       snap.TabID,
				"lastGitUrl":  snap.LastGitURL,
				"lastDirName": snap.LastDirName,
				"executeFile": snap.ExecuteFile,
				"pendingLen":  snap.PendingLen,
			})
		}
		json.NewEncoder(w).Encode(out)
	}).Methods("GET")

	return &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

