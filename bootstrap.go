package main

import (
	"context"
	"fmt"
	"os"

	"github.com/SaiNageswarS/go-api-boot/config"
	"github.com/SaiNageswarS/go-api-boot/dotenv"
	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/SaiNageswarS/medicode-agent/agents"
	"github.com/SaiNageswarS/medicode-agent/appconfig"
	"github.com/SaiNageswarS/medicode-agent/embedding"
	"github.com/SaiNageswarS/medicode-agent/extract"
	"github.com/SaiNageswarS/medicode-agent/judge"
	"github.com/SaiNageswarS/medicode-agent/llm"
	"github.com/SaiNageswarS/medicode-agent/pipeline"
	"github.com/SaiNageswarS/medicode-agent/prompts"
	"github.com/SaiNageswarS/medicode-agent/schema"
	"github.com/SaiNageswarS/medicode-agent/services"
	"github.com/SaiNageswarS/medicode-agent/tracing"
	"github.com/SaiNageswarS/medicode-agent/vectordb"
	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

// codingAgents lists the coding personas in output order.
var codingAgents = []struct {
	system  schema.CodingSystem
	persona string
}{
	{schema.ICD10CM, prompts.ICDCoding},
	{schema.HCPCS, prompts.HCPCSCoding},
	{schema.CPT4, prompts.CPTCoding},
}

type application struct {
	cfg     *appconfig.AppConfig
	service *services.MedicalCodingService
	closers []func()
}

func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// bootstrap loads configuration and builds every long-lived client once.
// Missing secrets fail here, before any request is served.
func bootstrap(ctx context.Context, configPath string) (*application, error) {
	dotenv.LoadEnv()

	cfg := &appconfig.AppConfig{}
	if err := config.LoadConfig(configPath, cfg); err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", schema.ErrConfiguration, configPath, err)
	}
	cfg.ApplyDefaults()

	personas, err := prompts.LoadPersonas()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", schema.ErrConfiguration, err)
	}
	cfg.ApplyPersonaOverrides(personas)

	if err := appconfig.CheckSecrets(personas); err != nil {
		return nil, err
	}

	app := &application{cfg: cfg}
	fail := func(err error) (*application, error) {
		app.Close()
		return nil, err
	}

	validator, err := schema.NewValidator()
	if err != nil {
		return fail(err)
	}

	modelFor := func(key string) (llm.LLMClient, error) {
		p := personas[key]
		client, err := llm.NewClient(p.Provider, p.Model, cfg.RequestTimeout())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		logger.Info("Model configured", zap.String("agent", key), zap.String("provider", p.Provider), zap.String("model", p.Model))
		return client, nil
	}

	ollamaClient, err := api.ClientFromEnvironment()
	if err != nil {
		return fail(fmt.Errorf("%w: ollama client: %v", schema.ErrConfiguration, err))
	}
	embedder := embedding.NewOllamaEmbedder(ollamaClient, embedding.Config{
		Model:      cfg.EmbeddingModel,
		Dimensions: cfg.EmbeddingDimensions,
		Timeout:    cfg.RequestTimeout(),
	})

	store, err := vectordb.NewPineconeStore(ctx, os.Getenv(appconfig.VectorStoreSecret), cfg.IndexNames(), cfg.RequestTimeout())
	if err != nil {
		return fail(err)
	}
	app.closers = append(app.closers, store.Close)

	retriever := vectordb.NewRetriever(embedder, store.Indexes(),
		vectordb.WithTopK(cfg.TopK),
		vectordb.WithQueryTimeout(cfg.RequestTimeout()))

	structuringModel, err := modelFor(prompts.EntityStructuring)
	if err != nil {
		return fail(err)
	}
	structurer := agents.NewEntityStructurer(structuringModel, personas[prompts.EntityStructuring], validator,
		agents.WithValidationRetries(cfg.StructuringRetries))

	coders := make([]pipeline.Coder, 0, len(codingAgents))
	for _, ca := range codingAgents {
		model, err := modelFor(ca.persona)
		if err != nil {
			return fail(err)
		}
		coder, err := agents.NewCodingAgent(ca.system, personas[ca.persona], model, retriever, validator,
			agents.WithMaxTurns(cfg.CodingMaxTurns))
		if err != nil {
			return fail(err)
		}
		coders = append(coders, coder)
	}

	tracer := tracing.Tracer(tracing.LogTracer{})
	if cfg.TraceDB != "" {
		sqliteTracer, err := tracing.NewSQLiteTracer(cfg.TraceDB)
		if err != nil {
			return fail(err)
		}
		app.closers = append(app.closers, func() { _ = sqliteTracer.Close() })
		tracer = tracing.MultiTracer{tracing.LogTracer{}, sqliteTracer}
	}

	orchestrator := pipeline.NewOrchestrator(structurer, coders,
		pipeline.WithTracer(tracer),
		pipeline.WithSequentialCoding(cfg.SequentialCoding))

	judgeModel, err := modelFor(prompts.Judge)
	if err != nil {
		return fail(err)
	}

	var ocr extract.OCR
	if cfg.OCREnabled {
		ocr = extract.NewTesseractOCR()
	}

	app.service = services.ProvideMedicalCodingService(
		orchestrator,
		judge.NewJudge(judgeModel, validator),
		extract.NewPDFExtractor(ocr),
		cfg.PipelineTimeout(),
	)
	return app, nil
}
