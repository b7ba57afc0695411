// Package generation turns a question and its evidence into an answer with a
// language model.
package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/paperqa/internal/config"
)

// NotFoundAnswer is the reply the model is told to give when the context has
// no answer.
const NotFoundAnswer = "The answer is not found in the provided context."

var (
	// ErrGeneration wraps model call failures.
	ErrGeneration = errors.New("answer generation failed")

	// ErrInvalidConfig indicates invalid generator configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnavailable indicates the model server failed its startup check.
	ErrUnavailable = errors.New("generation server unavailable")
)

// defaultBaseURL is where the OpenAI client sends requests without a base URL.
const defaultBaseURL = "https://api.openai.com/v1"

// checkTimeout bounds the startup models request.
const checkTimeout = 10 * time.Second

// Generator produces a completion for a single prompt. Implementations keep
// no state between calls.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// LLMGenerator generates with a langchaingo model at temperature zero.
type LLMGenerator struct {
	model   llms.Model
	name    string
	timeout time.Duration
	logger  *zap.Logger
}

// NewLLMGenerator wraps model. A positive timeout bounds each call.
func NewLLMGenerator(model llms.Model, name string, timeout time.Duration, logger *zap.Logger) (*LLMGenerator, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: model cannot be nil", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMGenerator{model: model, name: name, timeout: timeout, logger: logger}, nil
}

// NewOpenAIGenerator builds a generator for an OpenAI-compatible chat
// endpoint such as Ollama, vLLM or OpenAI itself. With cfg.CheckOnStartup
// the server must answer GET /models.
func NewOpenAIGenerator(ctx context.Context, cfg config.GenerationConfig, logger *zap.Logger) (*LLMGenerator, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	token := cfg.APIKey.Value()
	if token == "" {
		token = "unused"
	}
	opts := []openai.Option{openai.WithModel(cfg.Model), openai.WithToken(token)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if cfg.CheckOnStartup {
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultBaseURL
		}
		if err := checkModels(ctx, strings.TrimRight(baseURL, "/"), token); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, baseURL, err)
		}
	}
	return NewLLMGenerator(llm, cfg.Model, cfg.Timeout.Duration(), logger)
}

// checkModels lists the server's models, which every OpenAI-compatible
// server exposes without running inference.
func checkModels(ctx context.Context, baseURL, token string) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("models request returned status %d", resp.StatusCode)
	}
	return nil
}

// Generate returns the model's answer to prompt.
func (g *LLMGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	answer, err := llms.GenerateFromSinglePrompt(ctx, g.model, prompt, llms.WithTemperature(0))
	if err != nil {
		g.logger.Warn("generation failed", zap.String("model", g.name), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	g.logger.Debug("generated answer",
		zap.String("model", g.name),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("answer_chars", len(answer)),
	)
	return strings.TrimSpace(answer), nil
}

// BuildPrompt assembles the extractive answering prompt.
func BuildPrompt(context, question string) string {
	var b strings.Builder
	b.WriteString("You are a scientific assistant. Answer the question using ONLY the context below.\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Copy the answer verbatim as one or more complete sentences from the context.\n")
	b.WriteString("- Do not paraphrase, summarise or add information.\n")
	b.WriteString("- Answer in the language of the context.\n")
	fmt.Fprintf(&b, "- If the context does not contain the answer, reply exactly: %q\n\n", NotFoundAnswer)
	b.WriteString("Context:\n")
	b.WriteString(context)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\nAnswer:")
	return b.String()
}
