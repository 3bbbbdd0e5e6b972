package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/dashgpt/server/internal/chat/embeddings"
	"github.com/dashgpt/server/internal/chat/feedback"
	"github.com/dashgpt/server/internal/chat/graph"
	"github.com/dashgpt/server/internal/chat/graph/conversations"
	"github.com/dashgpt/server/internal/chat/graph/nodes"
	"github.com/dashgpt/server/internal/chat/graph/observers"
	"github.com/dashgpt/server/internal/chat/graph/prompts"
	"github.com/dashgpt/server/internal/chat/graph/retrieval"
	"github.com/dashgpt/server/internal/chat/model"
	"github.com/dashgpt/server/internal/chat/repo"
	"github.com/dashgpt/server/internal/chat/tokens"
	"github.com/dashgpt/server/internal/chat/vectorstore"
	"github.com/dashgpt/server/internal/core"
	"github.com/dashgpt/server/internal/httpapi"
	"github.com/dashgpt/server/internal/metrics"
	logx "github.com/dashgpt/server/pkg/logger"
	pkgredis "github.com/dashgpt/server/pkg/redis"
)

// AppConfig defines all configurable parameters of the server, sourced from
// environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment core.Environment `envconfig:"ENVIRONMENT" default:"development"`
	Addr        string           `envconfig:"ADDR" default:":8050"`
	LogLevel    string           `envconfig:"LOG_LEVEL"`

	// Infrastructure
	Redis pkgredis.Config

	// LLM providers
	OpenAIKey     string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"`
	GeminiKey     string `envconfig:"GEMINI_API_KEY"`
	GeminiBaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Chat configs
	Conversation model.ConversationConfig
	Completion   model.CompletionModelConfig
	Embedding    model.EmbeddingConfig
	VectorStore  model.VectorStoreConfig
	Retrieval    model.RetrievalConfig
	Prompt       model.PromptConfig
}

const warmUpQuery = "Cats"

func main() {
	if err := godotenv.Load(".env"); err != nil {
		logx.Warn().Err(err).Msg("could not load .env file")
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logx.Fatal().Err(err).Msg("failed to process environment config")
	}
	logx.Init(logx.LoggerOpts{Environment: cfg.Environment, Level: cfg.LogLevel})
	metrics.Register()

	ctx := context.Background()

	// ====================================================
	// Persistence
	ttl, err := time.ParseDuration(cfg.Conversation.TTL)
	if err != nil {
		logx.Fatal().Err(err).Str("value", cfg.Conversation.TTL).Msg("invalid CONVERSATION_TTL")
	}

	var (
		convRepo     model.ConversationRepository
		feedbackRepo model.FeedbackRepository
	)
	switch strings.ToLower(cfg.Conversation.Store) {
	case "redis":
		rdb, err := cfg.Redis.New()
		if err != nil {
			logx.Fatal().Err(err).Msg("failed to initialise redis client")
		}
		defer rdb.Close()
		convRepo = repo.NewRedisConversationRepository(rdb, ttl)
		feedbackRepo = repo.NewRedisFeedbackRepository(rdb, 0)
		logx.Info().Msg("connected to redis")
	case "memory", "":
		convRepo = repo.NewMemoryConversationRepository()
		feedbackRepo = repo.NewMemoryFeedbackRepository()
	default:
		logx.Fatal().Str("store", cfg.Conversation.Store).Msg("unknown CONVERSATION_STORE")
	}

	// ====================================================
	// Retrieval
	embedder, err := embeddings.New(ctx, embeddings.Config{
		EmbeddingConfig: cfg.Embedding,
		OpenAIKey:       cfg.OpenAIKey,
		OpenAIBaseURL:   cfg.OpenAIBaseURL,
		GeminiKey:       cfg.GeminiKey,
		GeminiBaseURL:   cfg.GeminiBaseURL,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to build embedder")
	}

	store, err := vectorstore.Connect(ctx, cfg.VectorStore, embedder)
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to connect vector store")
	}
	defer store.Close()
	warmUp(ctx, store)

	// ====================================================
	// Prompt and completion
	counter, err := tokens.NewCounter(cfg.Prompt.TokenizerModel)
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to load tokenizer")
	}
	builder, err := prompts.NewBuilder(cfg.Prompt, counter)
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to load prompts")
	}

	cm, err := nodes.NewChatModel(ctx, nodes.ChatModelConfig{
		Completion:    cfg.Completion,
		OpenAIKey:     cfg.OpenAIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		GeminiKey:     cfg.GeminiKey,
		GeminiBaseURL: cfg.GeminiBaseURL,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to create chat model")
	}

	callbacks := []einocb.Handler{observers.NewAllCallbacks()}
	streamer, err := nodes.NewStreamer(ctx, cm, nodes.StreamerConfig{
		ModelName:   cfg.Completion.Model,
		Temperature: cfg.Completion.Temperature,
		MaxTokens:   cfg.Completion.MaxTokens,
		Callbacks:   callbacks,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to build streamer")
	}

	messages := conversations.NewMessagesManager(convRepo, cfg.Conversation)
	runner, err := graph.NewRunner(graph.Config{
		Store:     store,
		Messages:  messages,
		Prompts:   builder,
		Streamer:  streamer,
		Retrieval: cfg.Retrieval,
		Callbacks: callbacks,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to build response pipeline")
	}

	// ====================================================
	// HTTP
	h := httpapi.NewHandlers(runner, messages, feedback.NewService(feedbackRepo, messages))
	server := http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewRouter(h),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() { errChan <- server.ListenAndServe() }()
	logx.Info().
		Str("addr", cfg.Addr).
		Str("environment", cfg.Environment.String()).
		Str("llm", cfg.Completion.Provider+"/"+cfg.Completion.Model).
		Msg("server is listening")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			logx.Fatal().Err(err).Msg("server error")
		}
	case sig := <-sigChan:
		logx.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		logx.Info().Msg("server stopped")
	}
}

// warmUp runs one retrieval so the first user does not pay for cold caches.
func warmUp(ctx context.Context, store retrieval.Searcher) {
	start := time.Now()
	if _, err := retrieval.Retrieve(ctx, warmUpQuery, store, 1, retrieval.MethodSimilarity); err != nil {
		logx.Warn().Err(err).Msg("vector store warm-up failed")
		return
	}
	logx.Info().Dur("elapsed", time.Since(start)).Msg("vector store warmed up")
}
