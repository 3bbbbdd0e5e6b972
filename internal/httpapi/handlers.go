package httpapi

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dashgpt/server/internal/chat/feedback"
	"github.com/dashgpt/server/internal/chat/graph"
	"github.com/dashgpt/server/internal/chat/graph/conversations"
	"github.com/dashgpt/server/internal/chat/graph/retrieval"
	"github.com/dashgpt/server/internal/chat/model"
	"github.com/dashgpt/server/internal/chat/samples"
	errx "github.com/dashgpt/server/internal/core/error"
	logx "github.com/dashgpt/server/pkg/logger"
	"github.com/dashgpt/server/pkg/utils"
)

const (
	streamContentType = "text/response-stream"
	messageIDTrailer  = "X-Message-Id"
	sampleQuestions   = 2
)

type Handlers struct {
	runner   *graph.Runner
	messages *conversations.MessagesManager
	feedback *feedback.Service
	render   *Renderer
}

func NewHandlers(runner *graph.Runner, messages *conversations.MessagesManager, fb *feedback.Service) *Handlers {
	return &Handlers{
		runner:   runner,
		messages: messages,
		feedback: fb,
		render:   NewRenderer(),
	}
}

// Health is a basic liveness endpoint.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	utils.JSON(w, http.StatusOK, map[string]any{
		"status":    true,
		"message":   "dashgpt",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// StreamingChat POST /streaming-chat
//
// Streams the answer for a question whose context and history the client
// already holds. Nothing is persisted.
func (h *Handlers) StreamingChat(w http.ResponseWriter, r *http.Request) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		utils.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	prompt, err := stringField(raw, "prompt")
	if err != nil {
		writeError(w, err)
		return
	}
	formatted, err := stringField(raw, "formatted_context")
	if err != nil {
		writeError(w, err)
		return
	}
	history, err := chatHistoryField(raw, "chat_history")
	if err != nil {
		writeError(w, err)
		return
	}

	sink := newStreamSink(w)
	_, err = h.runner.StreamAnswer(r.Context(), prompt, formatted, history.ChatHistory, sink.write)
	if err != nil {
		sink.fail(r, err)
	}
}

// NewConversation POST /api/conversations
func (h *Handlers) NewConversation(w http.ResponseWriter, r *http.Request) {
	sess, err := h.messages.NewSession(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	utils.JSON(w, http.StatusCreated, map[string]any{"conversation_id": sess.ID})
}

// ResetConversation POST /api/conversations/{id}/reset
func (h *Handlers) ResetConversation(w http.ResponseWriter, r *http.Request) {
	sess, err := h.messages.Reset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]any{"conversation_id": sess.ID})
}

// GetConversation GET /api/conversations/{id}
func (h *Handlers) GetConversation(w http.ResponseWriter, r *http.Request) {
	sess, err := h.messages.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]any{
		"conversation_id": sess.ID,
		"chat_history":    sess.Turns,
	})
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

// PrepareContext POST /api/conversations/{id}/context
func (h *Handlers) PrepareContext(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	prepared, err := h.runner.PrepareContext(r.Context(), chi.URLParam(r, "id"), req.Prompt)
	if err != nil {
		writeError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]any{
		"formatted_context": prepared.FormattedContext,
		"complete_context":  retrieval.Serialize(prepared.Passages),
		"chat_history":      prepared.ChatHistory.ChatHistory,
	})
}

type answerRequest struct {
	Content         string           `json:"content"`
	CompleteContext []map[string]any `json:"complete_context"`
}

// Answer POST /api/conversations/{id}/answer
//
// Stores a fully streamed answer and returns it rendered together with its
// related passages.
func (h *Handlers) Answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	related, err := retrieval.Deserialize(req.CompleteContext)
	if err != nil {
		writeError(w, err)
		return
	}

	id, err := h.runner.Finalize(r.Context(), chi.URLParam(r, "id"), req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	html, relatedHTML, err := h.render.Answer(req.Content, related)
	if err != nil {
		writeError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]any{
		"message_id": id,
		"html":       html,
		"related":    relatedHTML,
	})
}

// Chat POST /api/conversations/{id}/chat
//
// Runs a whole turn in one request. The stored answer's id is sent as the
// X-Message-Id trailer.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	w.Header().Set("Trailer", messageIDTrailer)
	sink := newStreamSink(w)
	res, err := h.runner.Run(r.Context(), graph.Request{
		ConversationID: chi.URLParam(r, "id"),
		Question:       req.Prompt,
	}, sink.write)
	if err != nil {
		w.Header().Del("Trailer")
		sink.fail(r, err)
		return
	}
	w.Header().Set(messageIDTrailer, res.MessageID)
}

type feedbackRequest struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	Vote           string `json:"vote"`
	Comment        string `json:"comment"`
	Category       string `json:"category"`
}

// Feedback POST /api/feedback
func (h *Handlers) Feedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	rec, err := h.feedback.Submit(r.Context(), model.FeedbackRecord{
		MessageID:      req.MessageID,
		ConversationID: req.ConversationID,
		Vote:           model.Vote(strings.ToLower(strings.TrimSpace(req.Vote))),
		Comment:        req.Comment,
		Category:       req.Category,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	utils.JSON(w, http.StatusCreated, rec)
}

// GetFeedback GET /api/feedback/{message_id}
func (h *Handlers) GetFeedback(w http.ResponseWriter, r *http.Request) {
	rec, err := h.feedback.Get(r.Context(), chi.URLParam(r, "message_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, rec)
}

// SampleQuestions GET /api/sample-questions
func (h *Handlers) SampleQuestions(w http.ResponseWriter, r *http.Request) {
	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	utils.JSON(w, http.StatusOK, map[string]any{
		"questions":  samples.Pick(rng, sampleQuestions),
		"categories": model.FeedbackCategories,
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := errx.StatusOf(err)
	if status >= http.StatusInternalServerError {
		logx.Error().Err(err).Int("status", status).Msg("request failed")
	}
	utils.Error(w, status, errx.MessageOf(err))
}

// streamSink relays fragments to the client and flushes after each one.
// The status line is only committed with the first fragment, so a failure
// before that can still be reported as a JSON error.
type streamSink struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func newStreamSink(w http.ResponseWriter) *streamSink {
	return &streamSink{w: w, rc: http.NewResponseController(w)}
}

func (s *streamSink) write(fragment string) error {
	if !s.started {
		s.w.Header().Set("Content-Type", streamContentType)
		s.w.Header().Set("Cache-Control", "no-store")
		s.w.Header().Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if _, err := s.w.Write([]byte(fragment)); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

func (s *streamSink) fail(r *http.Request, err error) {
	if !s.started {
		writeError(s.w, err)
		return
	}
	// Headers are gone; the client sees a truncated stream.
	logx.Error().Err(err).Str("req_id", requestID(r.Context())).Msg("stream aborted")
}

func stringField(raw map[string]json.RawMessage, key string) (string, error) {
	v, ok := raw[key]
	if !ok || string(v) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", errx.Validation(key + " must be a string")
	}
	return s, nil
}

// chatHistoryField accepts chat_history either as an object or as the JSON
// string the browser keeps in its store.
func chatHistoryField(raw map[string]json.RawMessage, key string) (model.ChatHistory, error) {
	var hist model.ChatHistory
	v, ok := raw[key]
	if !ok || string(v) == "null" {
		return hist, nil
	}

	body := []byte(v)
	if strings.HasPrefix(strings.TrimSpace(string(v)), `"`) {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return hist, errx.Validation(key + " is malformed")
		}
		if strings.TrimSpace(s) == "" {
			return hist, nil
		}
		body = []byte(s)
	}
	if err := json.Unmarshal(body, &hist); err != nil {
		return hist, errx.Validation(key + " is malformed")
	}
	return hist, nil
}
