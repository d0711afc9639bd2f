package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/loomworks/loom/internal/api"
	"github.com/loomworks/loom/internal/config"
	"github.com/loomworks/loom/internal/db"
	"github.com/loomworks/loom/internal/engine"
	"github.com/loomworks/loom/internal/generate"
	"github.com/loomworks/loom/internal/graph"
	"github.com/loomworks/loom/internal/nodes"
	"github.com/loomworks/loom/internal/provider"
	"github.com/loomworks/loom/internal/repository"
	"github.com/loomworks/loom/internal/scheduler"
	"github.com/loomworks/loom/internal/services"
	"github.com/loomworks/loom/internal/tools"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "serve" {
		serve()
		return
	}
	fmt.Println("loom v0.1.0")
	fmt.Println("Usage: loom serve")
}

func serve() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.LoadDefault()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	providers := buildProviders(cfg)
	toolReg := buildTools()

	bus := engine.NewEventBus()
	bus.Subscribe(func(ev engine.Event) {
		slog.Debug("event", "type", ev.Type, "run_id", ev.RunID, "node_id", ev.NodeID)
	})

	workflowRepo, historyRepo, scheduleRepo, database := buildRepositories(cfg)
	if database != nil {
		defer database.Close()
	}

	cache := graph.NewCache(cfg.Engine.CacheSize)
	workflows := services.NewWorkflowService(workflowRepo, cache, toolReg)

	executor := nodes.NewAgentExecutor(providers, toolReg, bus, cfg.Engine.DefaultModel)
	runner := engine.NewRunner(executor, bus, time.Duration(cfg.Engine.RunTimeoutSeconds)*time.Second)
	executions := services.NewExecutionService(workflows, runner, historyRepo)

	sched := scheduler.New(scheduleRepo, executions)
	if err := sched.Start(context.Background()); err != nil {
		slog.Error("scheduler start error", "err", err)
		os.Exit(1)
	}
	defer sched.Stop()

	var generator *generate.Generator
	if cfg.Generator.Model != "" {
		generator = generate.New(providers, cfg.Generator.Model, toolReg)
	} else {
		slog.Warn("no generator model configured, /api/workflows/generate disabled")
	}

	srv := api.NewServer(workflows, executions, sched, generator, toolReg)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	slog.Info("starting loom server", "addr", addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}

func buildProviders(cfg *config.Config) *provider.Registry {
	registry := provider.NewRegistry()
	for name, pc := range cfg.Providers {
		switch pc.Type {
		case "openai":
			registry.Register(provider.NewOpenAIProvider(name, pc.URL, pc.Key()))
		case "gemini":
			registry.Register(provider.NewGeminiProvider(name, pc.Key()))
		default:
			slog.Warn("unknown provider type, skipping", "name", name, "type", pc.Type)
			continue
		}
		slog.Info("registered provider", "name", name, "type", pc.Type)
	}
	return registry
}

func buildTools() *tools.Registry {
	registry := tools.NewRegistry()
	registry.Register(tools.NewHTTPRequestTool())
	registry.Register(tools.NewGetWebpageTool())
	registry.Register(&tools.RSSFeedTool{})
	registry.Register(tools.NewReadDocumentTool())
	return registry
}

// buildRepositories wires memory-backed repositories, layering
// PostgreSQL on top when a database URL is configured. The returned DB
// is nil when running memory-only.
func buildRepositories(cfg *config.Config) (repository.WorkflowRepository, repository.HistoryRepository, repository.ScheduleRepository, *db.DB) {
	memWorkflows := repository.NewMemoryWorkflows()
	memHistory := repository.NewMemoryHistory()
	memSchedules := repository.NewMemorySchedules()

	if cfg.Database.URL == "" {
		slog.Info("no database configured, running in-memory only")
		return memWorkflows, memHistory, memSchedules, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	database, err := db.New(ctx, cfg.Database.URL)
	if err != nil {
		slog.Warn("database unavailable, running in-memory only", "err", err)
		return memWorkflows, memHistory, memSchedules, nil
	}
	if err := database.Migrate(ctx); err != nil {
		slog.Warn("migration failed, running in-memory only", "err", err)
		database.Close()
		return memWorkflows, memHistory, memSchedules, nil
	}

	slog.Info("connected to database")
	return repository.NewPersistentWorkflows(memWorkflows, database),
		repository.NewPersistentHistory(memHistory, database),
		repository.NewPersistentSchedules(memSchedules, database),
		database
}
