package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

const maxTitleRunes = 60

type completeFunc func(ctx context.Context, prompt string) (string, error)

// Service names conversations. With an OpenAI-compatible endpoint configured
// it asks a model for a short title; otherwise titles come from the first
// user message.
type Service struct {
	complete completeFunc
	timeout  time.Duration
	logger   *zap.Logger
}

// New returns a titling service. An empty baseURL disables model titles.
func New(baseURL, token, model string, logger *zap.Logger) (*Service, error) {
	s := &Service{timeout: 15 * time.Second, logger: logger}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if baseURL == "" {
		return s, nil
	}

	if token == "" {
		// local OpenAI-compatible servers ignore the key but the client insists on one
		token = "unused"
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithBaseURL(baseURL),
	}
	if model != "" {
		opts = append(opts, openai.WithModel(model))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize title model: %w", err)
	}

	s.complete = func(ctx context.Context, prompt string) (string, error) {
		return llms.GenerateFromSinglePrompt(ctx, llm, prompt,
			llms.WithMaxTokens(24),
			llms.WithTemperature(0.2))
	}
	return s, nil
}

// UsesModel reports whether titles come from a model rather than the
// message text.
func (s *Service) UsesModel() bool { return s.complete != nil }

// Title returns a short title for a conversation that starts with
// firstMessage. It never fails; model errors fall back to the message text.
func (s *Service) Title(ctx context.Context, firstMessage string) string {
	fallback := FallbackTitle(firstMessage)
	if s.complete == nil {
		return fallback
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	prompt := fmt.Sprintf(`Write a title of at most six words for a conversation that begins with the message below.
Respond with the title only, no quotes.

Message: %s

Title:`, firstMessage)

	completion, err := s.complete(ctx, prompt)
	if err != nil {
		s.logger.Warn("title generation failed, using message text", zap.Error(err))
		return fallback
	}

	title := Truncate(strings.Trim(firstLine(completion), "\"'`* "), maxTitleRunes)
	if title == "" {
		return fallback
	}
	return title
}

// FallbackTitle derives a title from the message text alone.
func FallbackTitle(firstMessage string) string {
	if title := Truncate(firstLine(firstMessage), maxTitleRunes); title != "" {
		return title
	}
	return "New conversation"
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// Truncate cuts s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n-1])) + "…"
}
