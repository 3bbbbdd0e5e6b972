package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/schema"

	"github.com/dashgpt/server/internal/chat/graph/conversations"
	"github.com/dashgpt/server/internal/chat/graph/nodes"
	"github.com/dashgpt/server/internal/chat/graph/retrieval"
	"github.com/dashgpt/server/internal/chat/model"
	errx "github.com/dashgpt/server/internal/core/error"
	"github.com/dashgpt/server/internal/metrics"
	logx "github.com/dashgpt/server/pkg/logger"
)

// PromptBuilder assembles the chat prompt for one question.
type PromptBuilder interface {
	Build(ctx context.Context, question, chatContext, chatHistory string) ([]*schema.Message, error)
}

// CompletionStreamer starts a streamed completion.
type CompletionStreamer interface {
	StreamCompletion(ctx context.Context, prompt []*schema.Message) (*nodes.Stream, error)
	ModelName() string
}

// Sink receives answer fragments as they arrive. Returning an error aborts
// the stream.
type Sink func(fragment string) error

// Config holds everything needed to run the response pipeline.
type Config struct {
	Store        retrieval.Searcher
	Messages     *conversations.MessagesManager
	Prompts      PromptBuilder
	Streamer     CompletionStreamer
	Retrieval    model.RetrievalConfig
	Callbacks    []einocb.Handler
	OnTransition func(conversationID string, from, to State)
}

// Runner orchestrates retrieval, prompt building, streaming and persistence
// for each question. It holds no per-request state and is safe for
// concurrent use.
type Runner struct {
	store        retrieval.Searcher
	messages     *conversations.MessagesManager
	prompts      PromptBuilder
	streamer     CompletionStreamer
	k            int
	method       string
	opts         retrieval.Options
	callbacks    []einocb.Handler
	onTransition func(conversationID string, from, to State)
}

func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("vector store is nil")
	}
	if cfg.Messages == nil {
		return nil, fmt.Errorf("messages manager is nil")
	}
	if cfg.Prompts == nil || cfg.Streamer == nil {
		return nil, fmt.Errorf("prompt builder or streamer is nil")
	}
	method, ok := retrieval.NormalizeMethod(cfg.Retrieval.Method)
	if !ok {
		return nil, errx.InvalidMethod(cfg.Retrieval.Method)
	}
	k := cfg.Retrieval.K
	if k <= 0 {
		k = retrieval.DefaultK
	}

	logx.Debug().Str("method", method).Int("k", k).Str("model", cfg.Streamer.ModelName()).Msg("response pipeline ready")
	return &Runner{
		store:        cfg.Store,
		messages:     cfg.Messages,
		prompts:      cfg.Prompts,
		streamer:     cfg.Streamer,
		k:            k,
		method:       method,
		opts:         retrieval.Options{FetchK: cfg.Retrieval.FetchK, Lambda: cfg.Retrieval.Lambda},
		callbacks:    cfg.Callbacks,
		onTransition: cfg.OnTransition,
	}, nil
}

// PreparedContext is what the UI keeps between asking and streaming.
type PreparedContext struct {
	Passages         []model.Passage
	FormattedContext string
	ChatHistory      model.ChatHistory
}

// Request is one user question within a conversation.
type Request struct {
	ConversationID string
	Question       string
}

// Result is a completed turn.
type Result struct {
	MessageID string
	Answer    string
	Passages  []model.Passage
}

// Run executes a whole turn: it records the question, retrieves context,
// streams the answer into sink and stores the finished answer. On failure the
// run returns to Idle and no assistant turn is stored.
func (r *Runner) Run(ctx context.Context, req Request, sink Sink) (*Result, error) {
	tr := r.newTracker(req.ConversationID)

	prepared, err := r.prepare(ctx, tr, req.ConversationID, req.Question)
	if err != nil {
		return nil, err
	}

	answer, err := r.streamAnswer(ctx, tr, req.Question, prepared.FormattedContext, prepared.ChatHistory.ChatHistory, sink)
	if err != nil {
		return nil, err
	}

	messageID, err := r.finalize(ctx, tr, req.ConversationID, answer)
	if err != nil {
		return nil, err
	}
	return &Result{MessageID: messageID, Answer: answer, Passages: prepared.Passages}, nil
}

// PrepareContext records the question as a user turn and retrieves its
// context.
func (r *Runner) PrepareContext(ctx context.Context, conversationID, question string) (*PreparedContext, error) {
	tr := r.newTracker(conversationID)
	prepared, err := r.prepare(ctx, tr, conversationID, question)
	if err != nil {
		return nil, err
	}
	tr.to(StateIdle)
	return prepared, nil
}

// StreamAnswer builds the prompt from client-held state and streams the
// answer into sink. Nothing is persisted.
func (r *Runner) StreamAnswer(ctx context.Context, question, formattedContext string, history []model.Turn, sink Sink) (string, error) {
	tr := r.newTracker("")
	answer, err := r.streamAnswer(ctx, tr, question, formattedContext, history, sink)
	if err != nil {
		return "", err
	}
	tr.to(StateIdle)
	return answer, nil
}

// Finalize stores a fully streamed answer as an assistant turn and returns
// its message id.
func (r *Runner) Finalize(ctx context.Context, conversationID, answer string) (string, error) {
	return r.finalize(ctx, r.newTracker(conversationID), conversationID, answer)
}

func (r *Runner) prepare(ctx context.Context, tr *tracker, conversationID, question string) (*PreparedContext, error) {
	if strings.TrimSpace(question) == "" {
		return nil, tr.fail(StateRetrieving, errx.Validation("User prompt cannot be empty"))
	}

	tr.to(StateRetrieving)
	if err := r.messages.AppendUser(ctx, conversationID, question); err != nil {
		return nil, tr.fail(StateRetrieving, err)
	}
	passages, err := retrieval.Retrieve(ctx, question, r.store, r.k, r.method, r.opts)
	if err != nil {
		return nil, tr.fail(StateRetrieving, err)
	}
	sess, err := r.messages.Load(ctx, conversationID)
	if err != nil {
		return nil, tr.fail(StateRetrieving, err)
	}

	return &PreparedContext{
		Passages:         passages,
		FormattedContext: retrieval.FormatContext(passages),
		ChatHistory:      model.ChatHistory{ChatHistory: sess.Turns},
	}, nil
}

func (r *Runner) streamAnswer(ctx context.Context, tr *tracker, question, formattedContext string, history []model.Turn, sink Sink) (string, error) {
	tr.to(StatePromptBuilding)
	pctx := ctx
	if len(r.callbacks) > 0 {
		pctx = einocb.InitCallbacks(ctx, &einocb.RunInfo{
			Name:      "QuestionPrompt",
			Type:      "GoTemplate",
			Component: components.ComponentOfPrompt,
		}, r.callbacks...)
	}
	prompt, err := r.prompts.Build(pctx, question, formattedContext, r.messages.History(history))
	if err != nil {
		return "", tr.fail(StatePromptBuilding, err)
	}

	tr.to(StateStreaming)
	stream, err := r.streamer.StreamCompletion(ctx, prompt)
	if err != nil {
		return "", tr.fail(StateStreaming, err)
	}
	defer stream.Close()

	var (
		answer    strings.Builder
		fragments int
	)
	for {
		frag, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", tr.fail(StateStreaming, err)
		}
		fragments++
		answer.WriteString(frag)
		if sink != nil {
			if err := sink(frag); err != nil {
				return "", tr.fail(StateStreaming, fmt.Errorf("deliver fragment: %w", err))
			}
		}
	}

	metrics.IncFragments(r.streamer.ModelName(), fragments)
	r.logUsage(tr.conversationID, stream.Usage())
	return answer.String(), nil
}

func (r *Runner) finalize(ctx context.Context, tr *tracker, conversationID, answer string) (string, error) {
	tr.to(StateFinalizing)
	if strings.TrimSpace(answer) == "" {
		return "", tr.fail(StateFinalizing, errx.Validation("answer is empty"))
	}
	id, err := r.messages.AppendAssistant(ctx, conversationID, answer)
	if err != nil {
		return "", tr.fail(StateFinalizing, err)
	}
	metrics.IncPipeline(string(StateFinalizing), "ok")
	tr.to(StateIdle)
	return id, nil
}

func (r *Runner) logUsage(conversationID string, usage *schema.TokenUsage) {
	if usage == nil {
		return
	}
	modelName := r.streamer.ModelName()
	inC, outC, totalC := model.ComputeCost(usage, model.ResolvePricing(modelName))
	logx.Debug().
		Str("conversation_id", conversationID).
		Str("model", modelName).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")
}
