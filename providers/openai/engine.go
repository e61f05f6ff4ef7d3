package openai

import (
	"context"
	"fmt"
	"time"

	"ai-testbench/core/models"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

// jobPrompts maps supported analysis jobs to the instruction sent with the
// source. Transcription is handled separately through the audio API.
var jobPrompts = map[string]string{
	"sentiment_analysis": "Classify the sentiment of the following content as positive, negative or neutral and explain briefly.",
	"summarization":      "Summarize the following content in at most three sentences.",
	"url_analysis":       "Describe the content found at the following URL and list its key topics.",
	"object_detection":   "List the objects visible in the image at the following location.",
}

const jobTranscription = "transcription"

// tokenPricePer1K is the estimated USD price per 1000 tokens used for the
// estimated_cost measurement. Engine config may override per model.
var tokenPricePer1K = map[string]float64{
	openai.GPT4oMini: 0.00060,
	openai.GPT4o:     0.01000,
}

// Engine runs analysis jobs against the OpenAI API
type Engine struct {
	client *openai.Client
	model  string
	logger zerolog.Logger
}

// NewEngine creates a new OpenAI analysis engine
func NewEngine(apiKey, model string, logger zerolog.Logger) (*Engine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai engine requires an API key")
	}
	if model == "" {
		model = openai.GPT4oMini
	}

	return &Engine{
		client: openai.NewClient(apiKey),
		model:  model,
		logger: logger.With().Str("component", "openai_engine").Logger(),
	}, nil
}

// Recognizes reports whether the job is in this engine's catalog
func (e *Engine) Recognizes(aiJob string) bool {
	if aiJob == jobTranscription {
		return true
	}
	_, ok := jobPrompts[aiJob]
	return ok
}

// Run executes one analysis job against the API and reports the raw
// measurement: output payload, token usage, call count and estimated cost
func (e *Engine) Run(ctx context.Context, aiJob, source string) (*models.Measurement, error) {
	start := time.Now()

	var m *models.Measurement
	var err error
	if aiJob == jobTranscription {
		m, err = e.transcribe(ctx, source)
	} else {
		m, err = e.analyze(ctx, aiJob, source)
	}
	if err != nil {
		return nil, err
	}

	m.DurationMs = time.Since(start).Milliseconds()
	m.APICallsMade = 1
	return m, nil
}

func (e *Engine) transcribe(ctx context.Context, source string) (*models.Measurement, error) {
	resp, err := e.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: source,
	})
	if err != nil {
		return nil, fmt.Errorf("transcription failed: %w", err)
	}

	return &models.Measurement{
		AIOutput: map[string]interface{}{
			"text": resp.Text,
		},
	}, nil
}

func (e *Engine) analyze(ctx context.Context, aiJob, source string) (*models.Measurement, error) {
	prompt, ok := jobPrompts[aiJob]
	if !ok {
		return nil, fmt.Errorf("unrecognized ai_job %q", aiJob)
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
			{Role: openai.ChatMessageRoleUser, Content: source},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	e.logger.Debug().
		Str("ai_job", aiJob).
		Int("total_tokens", resp.Usage.TotalTokens).
		Msg("analysis completed")

	return &models.Measurement{
		AIOutput: map[string]interface{}{
			"content":       resp.Choices[0].Message.Content,
			"finish_reason": string(resp.Choices[0].FinishReason),
		},
		TokensUsed:    resp.Usage.TotalTokens,
		EstimatedCost: e.estimateCost(resp.Usage.TotalTokens),
	}, nil
}

// estimateCost converts token usage into USD using the model price table
func (e *Engine) estimateCost(totalTokens int) float64 {
	price, ok := tokenPricePer1K[e.model]
	if !ok {
		return 0
	}
	return float64(totalTokens) / 1000 * price
}
