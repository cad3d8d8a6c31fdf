package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	agentpkg "github.com/atessari/diaforge/internal/agent"
	"github.com/atessari/diaforge/internal/api"
	"github.com/atessari/diaforge/internal/enrich"
	"github.com/atessari/diaforge/internal/janitor"
	"github.com/atessari/diaforge/internal/logging"
	"github.com/atessari/diaforge/internal/pipeline"
	"github.com/atessari/diaforge/internal/preserve"
	"github.com/atessari/diaforge/internal/render"
	"github.com/atessari/diaforge/internal/rules"
	"github.com/atessari/diaforge/internal/store"
	"github.com/atessari/diaforge/internal/validation"
	mcpserver "github.com/atessari/diaforge/pkg/mcp"
)

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "version" || os.Args[1] == "--version") {
		printVersion()
		return
	}

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "diaforge:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	st, err := store.NewLibSQLStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	fatalRules, err := rules.Compile(cfg.FatalRules)
	if err != nil {
		return fmt.Errorf("compile fatal rules: %w", err)
	}

	aiClient := agentpkg.NewClient(agentpkg.ClientConfig{
		Endpoint: cfg.AgentEndpoint,
		Model:    cfg.AgentModel,
		APIKey:   cfg.AgentAPIKey,
		Timeout:  cfg.agentTimeout(),
	})

	renderer := render.NewPlantUMLRenderer(render.PlantUMLConfig{
		JarPath:   cfg.PlantUMLJar,
		JavaBin:   cfg.JavaBin,
		OutputDir: cfg.OutputDir,
		Timeout:   cfg.renderTimeout(),
	})

	controller := pipeline.NewController(pipeline.ControllerConfig{
		Renderer:   renderer,
		Repairer:   agentpkg.NewRepairer(aiClient, logger),
		FatalRules: fatalRules,
		MaxRepairs: cfg.MaxRepairs,
		Events:     st,
		Logger:     logger,
	})
	service := pipeline.NewService(aiClient, controller, st, logger)

	validator, err := validation.NewRecordValidator()
	if err != nil {
		return fmt.Errorf("create validator: %w", err)
	}
	idQuery := cfg.IDQuery
	if idQuery == "" {
		idQuery = preserve.DefaultIDQuery
	}
	guard, err := preserve.NewGuard(idQuery)
	if err != nil {
		return fmt.Errorf("compile id query: %w", err)
	}
	enricher := enrich.New(enrich.Config{
		Agent:     aiClient,
		Validator: validator,
		Guard:     guard,
		Events:    st,
		Logger:    logger,
	})

	jan, err := janitor.New(janitor.Config{
		Sessions:  st,
		OutputDir: cfg.OutputDir,
		Schedule:  cfg.JanitorSchedule,
		Retention: cfg.retention(),
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("create janitor: %w", err)
	}
	if err := jan.Start(ctx); err != nil {
		return fmt.Errorf("start janitor: %w", err)
	}
	defer func() { _ = jan.Stop() }()

	if cfg.MCP {
		srv := mcpserver.NewDiaforgeServer(mcpserver.DiaforgeServerDeps{
			Service:  service,
			Enricher: enricher,
			Logger:   logger,
		})
		logger.Info("serving MCP over stdio")
		return srv.Serve(ctx)
	}

	httpSrv := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: api.NewServer(api.Deps{
			Service:   service,
			Enricher:  enricher,
			Store:     st,
			OutputDir: cfg.OutputDir,
			Logger:    logger,
		}).Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.ListenAddr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return httpSrv.Shutdown(context.Background())
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}
