package recognizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured
const DefaultGeminiModel = "gemini-2.5-flash"

// ErrEmptyAudio is returned for payloads too short to hold a single sample
var ErrEmptyAudio = errors.New("audio payload is empty")

// contentGenerator is the subset of genai.Models used for transcription
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini transcribes PCM payloads with the Gemini API
type Gemini struct {
	models contentGenerator
	model  string
	format WAVFormat
	logger *zap.Logger
}

// NewGemini creates a Gemini-backed recognizer
func NewGemini(ctx context.Context, apiKey, model string, format WAVFormat, logger *zap.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return newGemini(client.Models, model, format, logger), nil
}

func newGemini(models contentGenerator, model string, format WAVFormat, logger *zap.Logger) *Gemini {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{
		models: models,
		model:  model,
		format: format,
		logger: logger.Named("gemini"),
	}
}

// Recognize implements Recognizer
func (g *Gemini) Recognize(ctx context.Context, pcm []byte) (string, error) {
	if len(pcm) < g.format.BitsPerSample/8 {
		return "", ErrEmptyAudio
	}

	wav, err := EncodeWAV(pcm, g.format)
	if err != nil {
		return "", fmt.Errorf("failed to encode audio: %w", err)
	}

	temperature := float32(0)
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{
				{Text: TranscriptionPrompt},
			},
		},
		Temperature: &temperature,
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(transcriptionRequest),
			genai.NewPartFromBytes(wav, "audio/wav"),
		}, genai.RoleUser),
	}

	start := time.Now()
	resp, err := g.models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	g.logger.Debug("📥 transcription received",
		zap.Int("pcm_bytes", len(pcm)),
		zap.Int("text_len", len(text)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return text, nil
}
