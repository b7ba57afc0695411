package generation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/fyrsmithlabs/paperqa/internal/config"
)

type fakeModel struct {
	reply       string
	err         error
	prompt      string
	temperature float64
	deadline    bool
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{Temperature: -1}
	for _, o := range options {
		o(&opts)
	}
	f.temperature = opts.Temperature
	_, f.deadline = ctx.Deadline()
	for _, m := range messages {
		for _, p := range m.Parts {
			if tp, ok := p.(llms.TextContent); ok {
				f.prompt = tp.Text
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestLLMGenerator_Generate(t *testing.T) {
	m := &fakeModel{reply: "  Cas9 cuts DNA.\n"}
	g, err := NewLLMGenerator(m, "fake", time.Minute, nil)
	require.NoError(t, err)

	answer, err := g.Generate(context.Background(), "prompt text")
	require.NoError(t, err)
	assert.Equal(t, "Cas9 cuts DNA.", answer)
	assert.Equal(t, "prompt text", m.prompt)
	assert.Zero(t, m.temperature)
	assert.True(t, m.deadline)
}

func TestLLMGenerator_Error(t *testing.T) {
	g, err := NewLLMGenerator(&fakeModel{err: errors.New("connection refused")}, "fake", 0, nil)
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), "p")
	assert.ErrorIs(t, err, ErrGeneration)
}

func TestNewLLMGenerator_NilModel(t *testing.T) {
	_, err := NewLLMGenerator(nil, "x", 0, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewOpenAIGenerator(t *testing.T) {
	g, err := NewOpenAIGenerator(context.Background(), config.GenerationConfig{
		BaseURL: "http://localhost:11434/v1",
		Model:   "llama3.1",
		Timeout: config.Duration(time.Minute),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, g.timeout)

	_, err = NewOpenAIGenerator(context.Background(), config.GenerationConfig{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewOpenAIGenerator_StartupCheck(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			http.NotFound(w, r)
			return
		}
		auth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"llama3.1","object":"model"}]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIGenerator(context.Background(), config.GenerationConfig{
		BaseURL:        srv.URL + "/v1/",
		Model:          "llama3.1",
		APIKey:         config.Secret("sk-test"),
		CheckOnStartup: true,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer sk-test", auth)
}

func TestNewOpenAIGenerator_ServerDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewOpenAIGenerator(context.Background(), config.GenerationConfig{
		BaseURL:        url + "/v1",
		Model:          "llama3.1",
		CheckOnStartup: true,
	}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNewOpenAIGenerator_ServerRejectsModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewOpenAIGenerator(context.Background(), config.GenerationConfig{
		BaseURL:        srv.URL,
		Model:          "llama3.1",
		CheckOnStartup: true,
	}, nil)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "status 401")
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("--- Document 1 ---\nCas9 cuts DNA.", "What does Cas9 do?")
	assert.Contains(t, p, "Cas9 cuts DNA.")
	assert.Contains(t, p, NotFoundAnswer)
	assert.True(t, strings.HasSuffix(p, "Question: What does Cas9 do?\nAnswer:"))
	assert.Less(t, strings.Index(p, "Context:"), strings.Index(p, "Question:"))
}
