package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/exam-engine/internal/question"
)

// Config holds connection details for the generator service.
type Config struct {
	GeneratorURL string
	GeneratorKey string
	Timeout      time.Duration
}

// Generator implements question.Generator over the generator service's HTTP API.
type Generator struct {
	httpClient  *http.Client
	config      Config
	logger      zerolog.Logger
	generateURL string
	enqueueURL  string
}

var _ question.Generator = (*Generator)(nil)

func NewGenerator(cfg Config, logger zerolog.Logger) *Generator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	base := strings.TrimSuffix(cfg.GeneratorURL, "/")

	return &Generator{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		config:      cfg,
		logger:      logger.With().Str("component", "ai_generator").Logger(),
		generateURL: base + "/generate",
		enqueueURL:  base + "/enqueue",
	}
}

// Generate synchronously requests questions for a section.
func (g *Generator) Generate(ctx context.Context, req question.GenerateRequest) ([]question.Question, error) {
	if g.config.GeneratorURL == "" {
		return nil, fmt.Errorf("generator endpoint not configured")
	}

	resp, err := g.post(ctx, g.generateURL, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("generator returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read generator payload: %w", err)
	}
	questions, err := decodeQuestionSet(raw)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("generator returned empty question set")
	}

	g.logger.Debug().
		Str("section_id", req.SectionID).
		Int("requested", req.Count).
		Int("received", len(questions)).
		Msg("generated questions")
	return questions, nil
}

// Enqueue notifies the async generator service to prepare future sets.
func (g *Generator) Enqueue(ctx context.Context, req question.GenerateRequest) error {
	if g.config.GeneratorURL == "" {
		return nil
	}

	resp, err := g.post(ctx, g.enqueueURL, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("enqueue returned status %d", resp.StatusCode)
	}
	return nil
}

func (g *Generator) post(ctx context.Context, url string, req question.GenerateRequest) (*http.Response, error) {
	body, err := json.Marshal(generatorRequest{
		SectionID:   req.SectionID,
		SectionName: req.SectionName,
		Subject:     req.Bucket,
		Count:       req.Count,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.config.GeneratorKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.config.GeneratorKey)
	}
	return g.httpClient.Do(httpReq)
}

type generatorRequest struct {
	SectionID   string `json:"section_id"`
	SectionName string `json:"section_name"`
	Subject     string `json:"subject"`
	Count       int    `json:"count"`
}
