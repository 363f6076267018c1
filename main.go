package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/crmlens/engine/internal/agent"
	"github.com/crmlens/engine/internal/agent/model"
	"github.com/crmlens/engine/internal/agent/repo"
	"github.com/crmlens/engine/internal/artifact"
	"github.com/crmlens/engine/internal/catalog"
	"github.com/crmlens/engine/internal/chart"
	"github.com/crmlens/engine/internal/chart/render"
	"github.com/crmlens/engine/internal/core"
	"github.com/crmlens/engine/internal/engineer"
	"github.com/crmlens/engine/internal/oracle"
	"github.com/crmlens/engine/internal/warehouse"
	logx "github.com/crmlens/engine/pkg/logger"
	pkgredis "github.com/crmlens/engine/pkg/redis"
)

// AppConfig defines all configurable parameters of the analysis engine,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development"`

	// Infrastructure
	Redis     pkgredis.Config
	Warehouse warehouse.Config
	Artifacts artifact.Config
	Renderer  render.Config

	// Generative backend
	Oracle oracle.Config

	// Pipelines
	Catalog      catalog.Config
	Engineer     engineer.Config
	Chart        chart.Config
	Conversation model.ConversationConfig
}

func main() {
	ctx := context.Background()

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}
	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(cfg.Environment)})

	rdb, err := cfg.Redis.New()
	if err != nil {
		log.Fatalf("Failed to initialise Redis client: %v", err)
	}
	defer rdb.Close()

	engine, err := warehouse.NewEngine(ctx, cfg.Warehouse)
	if err != nil {
		log.Fatalf("Failed to initialise warehouse engine: %v", err)
	}
	defer engine.Close()

	cat, err := catalog.Load(ctx, cfg.Catalog, engine,
		cfg.Warehouse.DataProjectID, cfg.Warehouse.Dataset)
	if err != nil {
		log.Fatalf("Failed to load schema catalog: %v", err)
	}

	gen, err := oracle.NewClient(ctx, cfg.Oracle)
	if err != nil {
		log.Fatalf("Failed to initialise generative backend: %v", err)
	}

	renderer, err := render.New(ctx, cfg.Renderer)
	if err != nil {
		log.Fatalf("Failed to launch chart renderer: %v", err)
	}
	defer renderer.Close()

	store, err := artifact.NewStore(cfg.Artifacts)
	if err != nil {
		log.Fatalf("Failed to initialise artifact store: %v", err)
	}

	ttl, err := time.ParseDuration(cfg.Conversation.TTL)
	if err != nil {
		log.Fatalf("Invalid CONVERSATION_TTL '%s': %v", cfg.Conversation.TTL, err)
	}
	conversations := repo.NewRedisConversationRepository(rdb, ttl)

	analyst, err := agent.BuildAnalysisGraph(ctx, agent.GraphConfig{
		Engineer:         engineer.New(gen, cat, engine, cfg.Engineer, conversations),
		Builder:          chart.New(gen, renderer, chart.NewOracleJudge(gen, cfg.Chart.JudgeModel), cfg.Chart, conversations),
		Engine:           engine,
		Store:            store,
		ConversationRepo: conversations,
		Conversation:     cfg.Conversation,
		Trail:            conversations,
	})
	if err != nil {
		log.Fatalf("Failed to build analysis graph: %v", err)
	}

	question := "How did new opportunities trend by country over the last four quarters?"
	if len(os.Args) > 1 {
		question = os.Args[1]
	}

	answer, err := analyst.Analyze(ctx, model.AnalysisInput{
		ConversationID: "local-analysis",
		Question:       question,
	})
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}
	fmt.Println(answer)
}
