package engine

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"
)

const simplifySystemPrompt = "You are a helpful assistant that simplifies " +
	"academic paragraphs concisely. Ignore authors, citations, and other " +
	"non-essential information. Simplify the content for the purpose of podcasting."

// SimplifierConfig configures the OpenAI-backed simplifier.
type SimplifierConfig struct {
	Model       string
	MaxTokens   int64
	Temperature float64

	// Examples are optional few-shot pairs appended to the prompt.
	Examples []Example
}

// Example is one few-shot demonstration for the simplifier prompt.
type Example struct {
	Input  string
	Output string
}

// SynthesizerConfig configures the OpenAI-backed synthesizer.
type SynthesizerConfig struct {
	Model string
	Voice string
	Speed float64

	// Format selects the response container. The pipeline plays raw
	// PCM (s16le, 24 kHz mono) so the device needs no decoder.
	Format string
}

// DefaultSimplifierConfig returns the settings the reference service used.
func DefaultSimplifierConfig() SimplifierConfig {
	return SimplifierConfig{
		Model:       "gpt-4o-mini",
		MaxTokens:   300,
		Temperature: 0.2,
	}
}

// DefaultSynthesizerConfig returns the settings the reference service used.
func DefaultSynthesizerConfig() SynthesizerConfig {
	return SynthesizerConfig{
		Model:  "tts-1",
		Voice:  "alloy",
		Speed:  1.0,
		Format: "pcm",
	}
}

// OpenAISimplifier implements Simplifier on the OpenAI chat completions API.
type OpenAISimplifier struct {
	client  openai.Client
	config  SimplifierConfig
	limiter *rate.Limiter
	logger  *log.Logger
}

// NewOpenAISimplifier creates a simplifier. limiter may be nil to
// disable client-side throttling; it is typically shared with the
// synthesizer so both calls count against one budget.
func NewOpenAISimplifier(client openai.Client, config SimplifierConfig, limiter *rate.Limiter) *OpenAISimplifier {
	return &OpenAISimplifier{
		client:  client,
		config:  config,
		limiter: limiter,
		logger:  log.WithPrefix("simplify"),
	}
}

// Simplify requests a podcast-friendly version of the paragraph.
func (s *OpenAISimplifier) Simplify(ctx context.Context, paragraph string) (Simplification, error) {
	if strings.TrimSpace(paragraph) == "" {
		return Simplification{}, ErrEmptyInput
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return Simplification{}, &ServiceError{Op: "simplify", Cause: err}
		}
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(simplifySystemPrompt),
	}
	for _, ex := range s.config.Examples {
		messages = append(messages,
			openai.UserMessage(simplifyUserPrompt(ex.Input)),
			openai.AssistantMessage(ex.Output),
		)
	}
	messages = append(messages, openai.UserMessage(simplifyUserPrompt(paragraph)))

	params := openai.ChatCompletionNewParams{
		Model:    s.config.Model,
		Messages: messages,
	}
	if s.config.MaxTokens > 0 {
		params.MaxTokens = openai.Int(s.config.MaxTokens)
	}
	params.Temperature = openai.Float(s.config.Temperature)

	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Simplification{}, &ServiceError{Op: "simplify", Cause: fmt.Errorf("%w: %v", ErrSimplification, err)}
	}
	if len(resp.Choices) == 0 {
		return Simplification{}, &ServiceError{Op: "simplify", Cause: fmt.Errorf("%w: empty response", ErrSimplification)}
	}

	result := Simplification{
		Text:             strings.TrimSpace(resp.Choices[0].Message.Content),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}

	s.logger.Debug("simplified paragraph",
		"chars_in", len(paragraph),
		"chars_out", len(result.Text),
		"prompt_tokens", result.PromptTokens,
		"completion_tokens", result.CompletionTokens)

	return result, nil
}

func simplifyUserPrompt(paragraph string) string {
	return fmt.Sprintf("Simplify the following paragraph in 10 sentences from a research paper:\n\n%s", paragraph)
}

// OpenAISynthesizer implements Synthesizer on the OpenAI speech API.
type OpenAISynthesizer struct {
	client  openai.Client
	config  SynthesizerConfig
	limiter *rate.Limiter
	logger  *log.Logger
}

// NewOpenAISynthesizer creates a synthesizer; limiter may be nil.
func NewOpenAISynthesizer(client openai.Client, config SynthesizerConfig, limiter *rate.Limiter) *OpenAISynthesizer {
	return &OpenAISynthesizer{
		client:  client,
		config:  config,
		limiter: limiter,
		logger:  log.WithPrefix("synth"),
	}
}

// Synthesize converts text to raw audio bytes.
func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, &ServiceError{Op: "synthesize", Cause: err}
		}
	}

	params := openai.AudioSpeechNewParams{
		Model: openai.SpeechModel(s.config.Model),
		Input: text,
		Voice: openai.AudioSpeechNewParamsVoice(s.config.Voice),
	}
	if s.config.Format != "" {
		params.ResponseFormat = openai.AudioSpeechNewParamsResponseFormat(s.config.Format)
	}
	if s.config.Speed > 0 {
		params.Speed = openai.Float(s.config.Speed)
	}

	resp, err := s.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, &ServiceError{Op: "synthesize", Cause: fmt.Errorf("%w: %v", ErrSynthesis, err)}
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ServiceError{Op: "synthesize", Cause: fmt.Errorf("%w: read body: %v", ErrSynthesis, err)}
	}
	if len(audio) == 0 {
		return nil, &ServiceError{Op: "synthesize", Cause: fmt.Errorf("%w: empty audio", ErrSynthesis)}
	}

	s.logger.Debug("synthesized sentence", "chars", len(text), "bytes", len(audio))
	return audio, nil
}

// NewClient builds the shared OpenAI client from an API key and an
// optional base URL override.
func NewClient(apiKey, baseURL string) openai.Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return openai.NewClient(opts...)
}
