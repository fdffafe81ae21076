package container

import (
	"context"
	"fmt"

	"ligandscreen/adapters/llm"
	"ligandscreen/adapters/memory"
	"ligandscreen/adapters/oracle"
	"ligandscreen/adapters/oracle/heuristic"
	"ligandscreen/adapters/postgres"
	"ligandscreen/adapters/report"
	"ligandscreen/adapters/source"
	"ligandscreen/app"
	"ligandscreen/internal"
	"ligandscreen/internal/api"
	"ligandscreen/internal/config"
	"ligandscreen/ports"

	"github.com/jmoiron/sqlx"
)

// maxLoggedFailures caps per-candidate WARN lines per run
const maxLoggedFailures = 20

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config

	// Infrastructure
	DB *sqlx.DB

	// Repositories (data access layer)
	RunRepo ports.RunRepository

	// Screening collaborators
	Oracle    ports.AffinityOracle
	LLMClient ports.LLMClient
	Rationale ports.RationaleGenerator
	Source    ports.CandidateSource
	Reporters []ports.ResultReporter

	// Live progress
	SSEHub      *api.SSEHub
	Broadcaster *api.SSEEventBroadcaster

	Engine  *app.ScreeningEngine
	Service *app.ScreeningService

	logger *internal.Logger
}

// New creates a container with in-memory persistence. Call InitWithDatabase to
// switch to Postgres, then Wire.
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	c := &Container{
		Config:  cfg,
		RunRepo: memory.NewRunRepository(),
		logger:  internal.DefaultLogger.With("Container"),
	}

	if err := c.initOracle(); err != nil {
		return nil, fmt.Errorf("failed to initialize oracle: %w", err)
	}
	c.initAIComponents()
	if err := c.initSource(); err != nil {
		return nil, fmt.Errorf("failed to initialize candidate source: %w", err)
	}

	c.SSEHub = api.NewSSEHub()
	c.Broadcaster = api.NewSSEEventBroadcaster(c.SSEHub)
	c.Reporters = append(c.Reporters, c.Broadcaster)
	if cfg.Data.ReportDir != "" {
		c.Reporters = append(c.Reporters, report.NewDirectoryReporter(cfg.Data.ReportDir))
		c.logger.Info("writing run reports to %s", cfg.Data.ReportDir)
	}

	return c, nil
}

// InitWithDatabase switches run persistence to PostgreSQL
func (c *Container) InitWithDatabase(db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("database connection cannot be nil")
	}
	if err := db.Ping(); err != nil {
		return fmt.Errorf("database connection test failed: %w", err)
	}

	c.DB = db
	c.RunRepo = postgres.NewRunRepository(db)
	c.logger.Info("run repository: postgres")
	return nil
}

// Wire builds the engine and service from the initialized collaborators
func (c *Container) Wire() *app.ScreeningService {
	c.Engine = app.NewScreeningEngine(c.Oracle, app.EngineConfig{
		CallTimeout:       c.Config.Oracle.CallTimeout,
		ProgressEvery:     c.Config.Screening.ProgressEvery,
		MaxLoggedFailures: maxLoggedFailures,
		Progress:          c.Broadcaster,
	})
	c.Service = app.NewScreeningService(
		c.Engine,
		c.Source,
		c.Rationale,
		c.RunRepo,
		app.ServiceConfigFrom(c.Config),
		c.Reporters...,
	)
	return c.Service
}

func (c *Container) initOracle() error {
	oc := c.Config.Oracle
	if oc.URL == "" {
		c.Oracle = heuristic.NewOracle()
		c.logger.Warn("ORACLE_URL not set; using the deterministic heuristic scorer")
		return nil
	}

	httpOracle, err := oracle.NewHTTPOracle(oracle.Config{
		BaseURL:     oc.URL,
		APIKey:      oc.APIKey,
		Timeout:     oc.CallTimeout,
		MinValid:    oc.MinValid,
		MaxValid:    oc.MaxValid,
		MaxInFlight: oc.MaxInFlight,
	})
	if err != nil {
		return err
	}
	c.Oracle = httpOracle
	c.logger.Info("affinity oracle: %s", oc.URL)
	return nil
}

// initAIComponents sets up the optional rationale step. A missing key disables it.
func (c *Container) initAIComponents() {
	ai := c.Config.AI
	client, err := llm.NewOpenAIClient(llm.Config{
		APIKey:      ai.OpenAIKey,
		BaseURL:     ai.BaseURL,
		Timeout:     ai.RationaleTimeout,
		Temperature: ai.Temperature,
	})
	if err != nil {
		c.logger.Info("rationale disabled: %v", err)
		return
	}
	c.LLMClient = client
	c.Rationale = llm.NewRationaleAdapter(client, ai.OpenAIModel, ai.MaxTokens)
	c.logger.Info("rationale enabled with model %s", ai.OpenAIModel)
}

func (c *Container) initSource() error {
	path := c.Config.Data.CandidateFile
	if path == "" {
		return nil
	}
	src, err := source.Open(path, c.Config.Data.CandidateLimit)
	if err != nil {
		return err
	}
	c.Source = src
	c.logger.Info("default candidate source: %s", src.Name())
	return nil
}

// Shutdown releases container resources
func (c *Container) Shutdown(ctx context.Context) error {
	if c.SSEHub != nil {
		c.SSEHub.Close()
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}
	return nil
}
