package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashgpt/server/internal/chat/feedback"
	"github.com/dashgpt/server/internal/chat/graph"
	"github.com/dashgpt/server/internal/chat/graph/conversations"
	"github.com/dashgpt/server/internal/chat/graph/nodes"
	"github.com/dashgpt/server/internal/chat/graph/prompts"
	"github.com/dashgpt/server/internal/chat/model"
	"github.com/dashgpt/server/internal/chat/repo"
)

type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

func (wordCounter) Tail(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return text
	}
	return strings.Join(words[len(words)-n:], " ")
}

type catStore struct{}

func (catStore) SimilaritySearchWithScore(_ context.Context, _ string, _ int) ([]model.Passage, error) {
	score := 0.88
	return []model.Passage{{
		Content:  "Why did the cat sit on the computer? To keep an eye on the **mouse**.",
		Metadata: map[string]any{"id": "42"},
		Score:    &score,
	}}, nil
}

func (s catStore) MaxMarginalRelevanceSearch(ctx context.Context, q string, k, _ int, _ float64) ([]model.Passage, error) {
	return s.SimilaritySearchWithScore(ctx, q, k)
}

type scriptedModel struct {
	fragments []string
	startErr  error
}

func (m *scriptedModel) Generate(_ context.Context, _ []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	return schema.AssistantMessage("unused", nil), nil
}

func (m *scriptedModel) Stream(_ context.Context, _ []*schema.Message, _ ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	if m.startErr != nil {
		return nil, m.startErr
	}
	sr, sw := schema.Pipe[*schema.Message](len(m.fragments))
	go func() {
		defer sw.Close()
		for _, f := range m.fragments {
			sw.Send(schema.AssistantMessage(f, nil), nil)
		}
	}()
	return sr, nil
}

type server struct {
	handler http.Handler
	repo    *repo.MemoryConversationRepository
}

func newServer(t *testing.T, cm *scriptedModel) *server {
	t.Helper()
	ctx := context.Background()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "system"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "system", "v1.txt"), []byte("You tell jokes."), 0o644))
	builder, err := prompts.NewBuilder(model.PromptConfig{Dir: dir, SystemPrompt: "v1", TokenCeiling: 2048, TruncateTokens: 512}, wordCounter{})
	require.NoError(t, err)

	streamer, err := nodes.NewStreamer(ctx, cm, nodes.StreamerConfig{ModelName: "gpt-3.5-turbo"})
	require.NoError(t, err)

	convRepo := repo.NewMemoryConversationRepository()
	messages := conversations.NewMessagesManager(convRepo, model.ConversationConfig{HistoryWindow: 1})
	runner, err := graph.NewRunner(graph.Config{
		Store:     catStore{},
		Messages:  messages,
		Prompts:   builder,
		Streamer:  streamer,
		Retrieval: model.RetrievalConfig{K: 3, Method: "similarity"},
	})
	require.NoError(t, err)

	h := NewHandlers(runner, messages, feedback.NewService(repo.NewMemoryFeedbackRepository(), messages))
	return &server{handler: NewRouter(h), repo: convRepo}
}

func (s *server) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	s := newServer(t, &scriptedModel{})
	rec := s.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, true, decode(t, rec)["status"])
}

func TestStreamingChatRelaysFragments(t *testing.T) {
	s := newServer(t, &scriptedModel{fragments: []string{"Why", " do", " cats..."}})

	body := `{"prompt":"Tell me a joke about cats","formatted_context":"A cat joke.\n","chat_history":"{\"chat_history\":[]}"}`
	rec := s.do(t, http.MethodPost, "/streaming-chat", body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, streamContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, "Why do cats...", rec.Body.String())
}

func TestStreamingChatAcceptsHistoryObject(t *testing.T) {
	s := newServer(t, &scriptedModel{fragments: []string{"Meow"}})

	body := `{"prompt":"again","chat_history":{"chat_history":[{"role":"user","content":"cats"},{"role":"assistant","content":"Meow"}]}}`
	rec := s.do(t, http.MethodPost, "/streaming-chat", body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Meow", rec.Body.String())
}

func TestStreamingChatRejectsBadInput(t *testing.T) {
	s := newServer(t, &scriptedModel{fragments: []string{"x"}})

	cases := map[string]string{
		"not json":          `{`,
		"non-string prompt": `{"prompt": 5}`,
		"bad history":       `{"prompt":"cats","chat_history":"not json"}`,
		"empty prompt":      `{"prompt":"   "}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/streaming-chat", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decode(t, rec)["error"])
		})
	}
}

func TestStreamingChatUpstreamFailure(t *testing.T) {
	s := newServer(t, &scriptedModel{startErr: errors.New("quota exceeded")})

	rec := s.do(t, http.MethodPost, "/streaming-chat", `{"prompt":"cats"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["error"])
}

func TestConversationLifecycle(t *testing.T) {
	s := newServer(t, &scriptedModel{fragments: []string{"Why", " do", " cats..."}})

	rec := s.do(t, http.MethodPost, "/api/conversations", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	id, _ := decode(t, rec)["conversation_id"].(string)
	require.NotEmpty(t, id)

	rec = s.do(t, http.MethodPost, "/api/conversations/"+id+"/context", `{"prompt":"Tell me a joke about cats"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	ctxResp := decode(t, rec)
	assert.Contains(t, ctxResp["formatted_context"], "keep an eye on")
	complete, _ := ctxResp["complete_context"].([]any)
	require.Len(t, complete, 1)

	completeJSON, err := json.Marshal(complete)
	require.NoError(t, err)
	rec = s.do(t, http.MethodPost, "/api/conversations/"+id+"/answer",
		`{"content":"Why do cats...","complete_context":`+string(completeJSON)+`}`)
	require.Equal(t, http.StatusOK, rec.Code)
	answer := decode(t, rec)
	assert.NotEmpty(t, answer["message_id"])
	assert.Contains(t, answer["html"], "<p>Why do cats...</p>")
	related, _ := answer["related"].([]any)
	require.Len(t, related, 1)
	assert.Contains(t, related[0], "<strong>mouse</strong>")

	rec = s.do(t, http.MethodGet, "/api/conversations/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	hist, _ := decode(t, rec)["chat_history"].([]any)
	assert.Len(t, hist, 2)

	rec = s.do(t, http.MethodPost, "/api/conversations/"+id+"/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	newID, _ := decode(t, rec)["conversation_id"].(string)
	assert.NotEqual(t, id, newID)

	n, err := s.repo.GetTurnCount(context.Background(), id)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAnswerRejectsMalformedContext(t *testing.T) {
	s := newServer(t, &scriptedModel{})
	rec := s.do(t, http.MethodPost, "/api/conversations/c1/answer", `{"content":"hi","complete_context":[{"page_content":7}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatStreamsAndSendsMessageIDTrailer(t *testing.T) {
	s := newServer(t, &scriptedModel{fragments: []string{"Purr", "fect."}})

	rec := s.do(t, http.MethodPost, "/api/conversations/c9/chat", `{"prompt":"cats"}`)
	res := rec.Result()
	defer res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Purrfect.", rec.Body.String())
	assert.NotEmpty(t, res.Trailer.Get(messageIDTrailer))

	n, err := s.repo.GetTurnCount(context.Background(), "c9")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFeedback(t *testing.T) {
	s := newServer(t, &scriptedModel{})

	rec := s.do(t, http.MethodPost, "/api/feedback", `{"message_id":"m1","vote":"down"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/feedback", `{"message_id":"m1","vote":"up"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = s.do(t, http.MethodPost, "/api/feedback", `{"message_id":"m1","vote":"down","category":"not-funny","comment":"meh"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "not-funny", decode(t, rec)["category"])

	rec = s.do(t, http.MethodGet, "/api/feedback/m1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "down", decode(t, rec)["vote"])

	rec = s.do(t, http.MethodGet, "/api/feedback/m2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFeedbackRejectsUnknownMessageInConversation(t *testing.T) {
	s := newServer(t, &scriptedModel{})
	ctx := context.Background()
	require.NoError(t, s.repo.AddTurn(ctx, "c1", model.Turn{Role: model.RoleUser, Content: "cats"}))
	require.NoError(t, s.repo.AddTurn(ctx, "c1", model.Turn{Role: model.RoleAssistant, Content: "Meow.", MessageID: "m1"}))

	rec := s.do(t, http.MethodPost, "/api/feedback", `{"message_id":"m1","conversation_id":"c1","vote":"up"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/feedback", `{"message_id":"nope","conversation_id":"c1","vote":"up"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSampleQuestions(t *testing.T) {
	s := newServer(t, &scriptedModel{})

	rec := s.do(t, http.MethodGet, "/api/sample-questions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	qs, _ := decode(t, rec)["questions"].([]any)
	assert.Len(t, qs, 2)
}

func TestRecovererTurnsPanicInto500(t *testing.T) {
	h := Recoverer()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
