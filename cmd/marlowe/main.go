// Marlowe is a conversational agent that speaks over a terminal,
// Discord, and MQTT, backed by an OpenAI-compatible chat completions
// API with tool calling, persistent memory, and a job scheduler.
//
// Usage:
//
//	marlowe serve            Start the agent and its channels
//	marlowe ask <question>   Ask a single question and exit
//	marlowe version          Print version and build information
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/marlowe-agent/marlowe/internal/agent"
	"github.com/marlowe-agent/marlowe/internal/buildinfo"
	"github.com/marlowe-agent/marlowe/internal/channel"
	"github.com/marlowe-agent/marlowe/internal/cli"
	"github.com/marlowe-agent/marlowe/internal/config"
	"github.com/marlowe-agent/marlowe/internal/discord"
	"github.com/marlowe-agent/marlowe/internal/fetch"
	"github.com/marlowe-agent/marlowe/internal/history"
	"github.com/marlowe-agent/marlowe/internal/llm"
	"github.com/marlowe-agent/marlowe/internal/memory"
	"github.com/marlowe-agent/marlowe/internal/mqtt"
	"github.com/marlowe-agent/marlowe/internal/scheduler"
	"github.com/marlowe-agent/marlowe/internal/shell"
	"github.com/marlowe-agent/marlowe/internal/storage"
	"github.com/marlowe-agent/marlowe/internal/tools"
)

// main constructs the OS-level environment and delegates to run, so
// the whole lifecycle is testable without os.Exit.
func main() {
	if err := run(context.Background(), os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	var configPath string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		case command != "":
			cmdArgs = append(cmdArgs, args[i])
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: marlowe ask <question>")
		}
		return runAsk(ctx, stdout, configPath, strings.Join(cmdArgs, " "))
	case "version":
		fmt.Fprintln(stdout, buildinfo.String())
		for k, v := range buildinfo.Info() {
			fmt.Fprintf(stdout, "  %-12s %s\n", k+":", v)
		}
		return nil
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Marlowe - Conversational Agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: marlowe [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve      Start the agent and its channels")
	fmt.Fprintln(w, "  ask        Ask a single question and exit")
	fmt.Fprintln(w, "  version    Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>   Path to config file (default: auto-discover)")
	return nil
}

func loadConfig(explicit string) (*config.Config, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

func newLogger(w io.Writer, levelName string) (*slog.Logger, error) {
	level, err := config.ParseLogLevel(levelName)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	})), nil
}

// runServe boots the whole agent: backend, storage, tools, scheduler,
// and every configured channel, then blocks until shutdown.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(stdout, cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	logger.Info("starting", "version", buildinfo.Version)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	llmClient := llm.New(cfg.API.BaseURL, cfg.API.APIKey, logger)
	if err := llmClient.Ping(ctx); err != nil {
		return fmt.Errorf("completion API unreachable: %w", err)
	}

	memFile, err := storage.NewFile[memory.Record](filepath.Join(cfg.DataDir, "memories.msgpack"))
	if err != nil {
		return fmt.Errorf("memory storage: %w", err)
	}
	memStore := memory.NewStore(logger, memFile)

	archive, err := history.Open(logger, filepath.Join(cfg.DataDir, "history.db"))
	if err != nil {
		return fmt.Errorf("history archive: %w", err)
	}
	defer archive.Close()

	registry := tools.NewRegistry(logger)
	gateway := agent.NewGateway(agent.Options{
		Backend:  agent.NewBackend(llmClient),
		Registry: registry,
		Model:    cfg.API.Model,
		MaxTurns: cfg.API.MaxTurns,
		Persona:  cfg.API.SystemPrompt,
		Prompts:  memStore,
		Archiver: archive,
		Logger:   logger,
	})

	hub := channel.NewHub(logger)
	sched := scheduler.New(logger)

	jobsFile, err := storage.NewFile[scheduler.StoredJob](filepath.Join(cfg.DataDir, "jobs.msgpack"))
	if err != nil {
		return fmt.Errorf("job storage: %w", err)
	}
	jobs := scheduler.NewToolset(logger, sched, gateway, hub, jobsFile)
	if err := jobs.Reload(ctx); err != nil {
		logger.Error("restore jobs", "error", err)
	}

	registry.Register(memory.NewToolset(memStore))
	registry.Register(history.NewToolset(archive))
	registry.Register(fetch.NewToolset(fetch.New()))
	registry.Register(jobs)

	sandbox := shell.New(logger, shell.Config{
		Enabled:        cfg.Shell.Enabled,
		DeniedPatterns: cfg.Shell.DeniedPatterns,
		TimeoutSec:     cfg.Shell.DefaultTimeoutSec,
	})
	if sandbox.Enabled() {
		registry.Register(shell.NewToolset(sandbox))
	}
	logger.Info("tools registered", "count", len(registry.Names()))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()

	if cfg.Channels.Discord.Token != "" {
		dc, err := discord.New(logger, cfg.Channels.Discord.Token, gateway)
		if err != nil {
			return fmt.Errorf("discord: %w", err)
		}
		hub.Register(dc)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dc.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("discord channel stopped", "error", err)
			}
		}()
	}

	var mqttChannel *mqtt.Channel
	if cfg.Channels.MQTT.Broker != "" {
		mqttChannel = mqtt.New(logger, cfg.Channels.MQTT, gateway)
		hub.Register(mqttChannel)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mqttChannel.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("mqtt channel stopped", "error", err)
			}
		}()
	}

	if cfg.Channels.CLI.Enabled {
		console := cli.New(logger, gateway)
		hub.Register(console)
		// The terminal runs in the foreground; leaving it shuts the
		// agent down.
		if err := console.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("cli channel stopped", "error", err)
		}
		stop()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	if mqttChannel != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		mqttChannel.Stop(shutdownCtx)
		cancel()
	}
	wg.Wait()
	return nil
}

// runAsk boots a minimal agent with no channels or scheduler and
// answers a single question.
func runAsk(ctx context.Context, stdout io.Writer, configPath, question string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(io.Discard, cfg.LogLevel)
	if err != nil {
		return err
	}

	llmClient := llm.New(cfg.API.BaseURL, cfg.API.APIKey, logger)
	registry := tools.NewRegistry(logger)
	registry.Register(fetch.NewToolset(fetch.New()))

	gateway := agent.NewGateway(agent.Options{
		Backend:  agent.NewBackend(llmClient),
		Registry: registry,
		Model:    cfg.API.Model,
		MaxTurns: cfg.API.MaxTurns,
		Persona:  cfg.API.SystemPrompt,
		Logger:   logger,
	})

	out, err := gateway.Send(ctx, agent.SendRequest{
		Content:  question,
		Channel:  "cli",
		UseTools: true,
	})
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	fmt.Fprintln(stdout, out)
	return nil
}
