package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/himpower2025/eps-topik-mate/internal/config"
	"github.com/himpower2025/eps-topik-mate/internal/models"
)

// Client defines the generative content service operations. All three
// calls are independently fallible; callers degrade on error (question
// fallback, absent media) rather than propagating failures.
type Client interface {
	GenerateQuestions(ctx context.Context, req QuestionBatchRequest) ([]models.Question, error)
	GenerateImage(ctx context.Context, prompt string) (*Image, error)
	GenerateSpeech(ctx context.Context, req SpeechRequest) (*AudioClip, error)
	GenerateFeedback(ctx context.Context, req FeedbackRequest) (*models.AnalyticsFeedback, error)
}

// QuestionBatchRequest asks for a structured batch of exam questions.
type QuestionBatchRequest struct {
	Mode       models.ExamMode
	SetNumber  int
	Count      int
	Difficulty string
}

// SpeechRequest asks for synthesized speech. Dialogue text with
// two-speaker markers is rendered with distinct voices per speaker.
type SpeechRequest struct {
	Text string
}

// Image is a decoded raster image.
type Image struct {
	Data     []byte
	MimeType string
}

// AudioClip is decoded linear PCM audio: normalized float32 samples
// per channel at a fixed sample rate.
type AudioClip struct {
	Channels   [][]float32
	SampleRate int
}

// Duration returns the clip length.
func (a *AudioClip) Duration() time.Duration {
	if a.SampleRate == 0 || len(a.Channels) == 0 {
		return 0
	}
	return time.Duration(len(a.Channels[0])) * time.Second / time.Duration(a.SampleRate)
}

type httpClient struct {
	cfg        config.GenAIConfig
	httpClient *http.Client
	logger     *slog.Logger
}

var _ Client = (*httpClient)(nil)

func NewClient(cfg config.GenAIConfig, logger *slog.Logger) Client {
	return &httpClient{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// ===== QUESTION BATCH GENERATION =====

type questionBatchPayload struct {
	Prompt         string          `json:"prompt"`
	ResponseSchema json.RawMessage `json:"response_schema"`
	Temperature    float64         `json:"temperature"`
}

type questionBatchResponse struct {
	Questions []models.Question `json:"questions"`
}

func (c *httpClient) GenerateQuestions(ctx context.Context, req QuestionBatchRequest) ([]models.Question, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.QuestionTimeout)
	defer cancel()

	payload := questionBatchPayload{
		Prompt:         buildQuestionPrompt(req),
		ResponseSchema: questionSchema,
		Temperature:    0.7,
	}

	start := time.Now()
	var out questionBatchResponse
	if err := c.post(ctx, "/v1/generate/structured", payload, &out); err != nil {
		return nil, fmt.Errorf("question batch generation: %w", err)
	}

	c.logger.Info("generated question batch",
		"mode", req.Mode,
		"set_number", req.SetNumber,
		"count", len(out.Questions),
		"duration_ms", time.Since(start).Milliseconds())

	return out.Questions, nil
}

// ===== IMAGE GENERATION =====

type imagePayload struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
}

type imageResponse struct {
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

func (c *httpClient) GenerateImage(ctx context.Context, prompt string) (*Image, error) {
	if prompt == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ImageTimeout)
	defer cancel()

	payload := imagePayload{
		Prompt:      prompt,
		AspectRatio: "1:1",
	}

	var out imageResponse
	if err := c.post(ctx, "/v1/generate/image", payload, &out); err != nil {
		return nil, fmt.Errorf("image generation: %w", err)
	}

	data, err := base64.StdEncoding.DecodeString(out.ImageBase64)
	if err != nil {
		return nil, fmt.Errorf("image decode: %w", err)
	}

	mimeType := out.MimeType
	if mimeType == "" {
		mimeType = "image/png"
	}

	return &Image{Data: data, MimeType: mimeType}, nil
}

// ===== SPEECH SYNTHESIS =====

type speechVoice struct {
	Speaker string `json:"speaker,omitempty"`
	Voice   string `json:"voice"`
}

type speechPayload struct {
	Text   string        `json:"text"`
	Voices []speechVoice `json:"voices"`
}

type speechResponse struct {
	AudioBase64 string `json:"audio_base64"`
	SampleRate  int    `json:"sample_rate"`
	Channels    int    `json:"channels"`
}

const (
	defaultVoice      = "Kore"
	dialogVoiceA      = "Puck"
	dialogVoiceB      = "Kore"
	defaultSampleRate = 24000
)

func (c *httpClient) GenerateSpeech(ctx context.Context, req SpeechRequest) (*AudioClip, error) {
	if req.Text == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.SpeechTimeout)
	defer cancel()

	payload := speechPayload{Text: req.Text}
	if speakerA, speakerB, ok := detectDialogueSpeakers(req.Text); ok {
		payload.Voices = []speechVoice{
			{Speaker: speakerA, Voice: dialogVoiceA},
			{Speaker: speakerB, Voice: dialogVoiceB},
		}
	} else {
		payload.Voices = []speechVoice{{Voice: defaultVoice}}
	}

	var out speechResponse
	if err := c.post(ctx, "/v1/generate/speech", payload, &out); err != nil {
		return nil, fmt.Errorf("speech synthesis: %w", err)
	}

	sampleRate := out.SampleRate
	if sampleRate == 0 {
		sampleRate = defaultSampleRate
	}
	channels := out.Channels
	if channels == 0 {
		channels = 1
	}

	samples, err := DecodePCM16(out.AudioBase64, channels)
	if err != nil {
		return nil, fmt.Errorf("pcm decode: %w", err)
	}

	return &AudioClip{Channels: samples, SampleRate: sampleRate}, nil
}

// ===== ANALYTICS FEEDBACK =====

// CategoryResult summarizes one answer category for feedback generation.
type CategoryResult struct {
	Category string `json:"category"`
	Correct  int    `json:"correct"`
	Total    int    `json:"total"`
}

// FeedbackRequest asks for study feedback over a finished exam.
type FeedbackRequest struct {
	Mode       models.ExamMode
	Score      int
	Total      int
	TimeSpent  int
	Categories []CategoryResult
}

func (c *httpClient) GenerateFeedback(ctx context.Context, req FeedbackRequest) (*models.AnalyticsFeedback, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.QuestionTimeout)
	defer cancel()

	payload := questionBatchPayload{
		Prompt:         buildFeedbackPrompt(req),
		ResponseSchema: feedbackSchema,
		Temperature:    0.4,
	}

	var out models.AnalyticsFeedback
	if err := c.post(ctx, "/v1/generate/structured", payload, &out); err != nil {
		return nil, fmt.Errorf("feedback generation: %w", err)
	}

	return &out, nil
}

// ===== TRANSPORT =====

func (c *httpClient) post(ctx context.Context, path string, payload, dest interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(snippet))
	}

	return json.NewDecoder(resp.Body).Decode(dest)
}
