package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/phuslu/log"

	"localcog/internal/chat"
	"localcog/internal/chunker"
	"localcog/internal/config"
	"localcog/internal/embedding"
	"localcog/internal/extract"
	"localcog/internal/fusion"
	"localcog/internal/inference"
	"localcog/internal/memory"
	"localcog/internal/rag"
	"localcog/internal/semantics"
	"localcog/internal/tools"
	"localcog/internal/vectorstore"
	"localcog/internal/vision"
)

// App holds every process-scoped component. It is built once at startup
// and passed to the surfaces that need it.
type App struct {
	Config    *config.AppConfig
	Runtime   *config.Runtime
	Logger    *log.Logger
	Inference *inference.Client
	Embedder  *embedding.Fallback
	Store     *vectorstore.Store
	Pipeline  *rag.Pipeline
	Fusion    *fusion.Orchestrator
	ShortTerm *memory.ShortTerm
	LongTerm  *memory.LongTerm
	Analyzer  *semantics.Analyzer
	Tools     *tools.Registry
	WebSearch *tools.WebSearch
	Describer *vision.Describer
	Chat      *chat.Service
}

// New wires the components described by cfg. The backend is probed once
// so a missing runtime shows up in the logs early; it is not required.
func New(ctx context.Context, cfg *config.AppConfig, logger *log.Logger) (*App, error) {
	runtime := config.NewRuntime(cfg)
	client := inference.NewClient(inference.Config{
		BaseURL: cfg.Ollama.BaseURL,
		Timeout: time.Duration(cfg.Ollama.TimeoutSecs) * time.Second,
		CPUOnly: !runtime.CUDAEnabled(),
	})
	runtime.OnChange(func(s config.Settings) { client.SetCPUOnly(!s.CUDAEnabled) })

	embedder := embedding.WithFallback(
		embedding.NewBackend(client, cfg.RAG.EmbeddingModel, cfg.RAG.Dimension),
		embedding.NewHash(cfg.RAG.Dimension),
		logger,
	)

	store, err := vectorstore.Open(filepath.Join(cfg.RAG.DataDir, "rag"), cfg.RAG.Dimension, logger)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	pipeline := rag.NewPipeline(extract.New(), chunker.NewWordChunker(cfg.RAG.ChunkWords), embedder, store, cfg.RAG.TopK, logger)

	orchestrator := fusion.NewOrchestrator(client, cfg.Chat.DefaultModels, logger)

	longTerm, err := memory.OpenLongTerm(cfg.Memory.Path, cfg.Memory.BusyTimeoutMS, logger)
	if err != nil {
		return nil, fmt.Errorf("open conversation log: %w", err)
	}
	shortTerm := memory.NewShortTerm(cfg.Chat.ShortTermCapacity)

	var summaryModel string
	if len(cfg.Chat.DefaultModels) > 0 {
		summaryModel = cfg.Chat.DefaultModels[0]
	}
	summarizer := semantics.WithFallback(
		semantics.NewLLMSummarizer(client, summaryModel),
		semantics.NewFrequencySummarizer(semantics.DefaultSentences),
		logger,
	)

	webSearch := tools.NewWebSearch(summarizer, logger, tools.WithRequestsPerMinute(cfg.Tools.WebSearchPerMinute))
	registry := tools.NewRegistry(logger, webSearch, tools.NewGitHub(os.Getenv(cfg.Tools.GitHubTokenEnv))).
		GateWebAccess(runtime.AllowWebAccess)

	sentiment := semantics.SentimentWithFallback(
		semantics.NewLLMSentiment(client, summaryModel),
		semantics.NewLexiconSentiment(),
		logger,
	)

	describer := vision.NewDescriber(client, cfg.Chat.VisionModel, logger)

	chatService := chat.NewService(chat.Deps{
		Retriever: pipeline,
		Describer: describer,
		Tools:     registry,
		Fuser:     orchestrator,
		ShortTerm: shortTerm,
		LongTerm:  longTerm,
	}, cfg.Chat.HistoryTurns, cfg.RAG.TopK, logger)

	a := &App{
		Config:    cfg,
		Runtime:   runtime,
		Logger:    logger,
		Inference: client,
		Embedder:  embedder,
		Store:     store,
		Pipeline:  pipeline,
		Fusion:    orchestrator,
		ShortTerm: shortTerm,
		LongTerm:  longTerm,
		Analyzer:  semantics.NewAnalyzer(summarizer, sentiment),
		Tools:     registry,
		WebSearch: webSearch,
		Describer: describer,
		Chat:      chatService,
	}
	a.probe(ctx)
	return a, nil
}

func (a *App) probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	models, err := a.Inference.ListModels(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Str("ollama", a.Inference.BaseURL()).Msg("inference backend not reachable, fallbacks will be used")
		return
	}
	a.Logger.Info().Str("ollama", a.Inference.BaseURL()).Int("models", len(models.Models)).Msg("inference backend reachable")
}

// Close releases resources held by the components.
func (a *App) Close() error {
	if a.LongTerm != nil {
		return a.LongTerm.Close()
	}
	return nil
}
