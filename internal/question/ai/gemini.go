package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/gokatarajesh/exam-engine/internal/question"
)

const defaultGeminiModel = "gemini-2.0-flash"

const systemPrompt = `You write standardized-test multiple-choice questions.
Every question has one correct option. Options are plain strings without letter prefixes.
correct_option_index is the zero-based index of the correct option.
Return only JSON matching the response schema.`

// GeminiConfig configures the in-process Gemini generator.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// completer is the slice of the Gemini API the generator uses.
type completer interface {
	complete(ctx context.Context, prompt string) (string, error)
}

// GeminiGenerator implements question.Generator with Gemini structured output.
type GeminiGenerator struct {
	llm    completer
	model  string
	logger zerolog.Logger
}

var _ question.Generator = (*GeminiGenerator)(nil)

// NewGeminiGenerator creates a Gemini-backed generator.
func NewGeminiGenerator(ctx context.Context, cfg GeminiConfig, logger zerolog.Logger) (*GeminiGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return newGeminiGenerator(&geminiClient{client: client, model: model}, model, logger), nil
}

func newGeminiGenerator(llm completer, model string, logger zerolog.Logger) *GeminiGenerator {
	return &GeminiGenerator{
		llm:    llm,
		model:  model,
		logger: logger.With().Str("component", "gemini_generator").Str("model", model).Logger(),
	}
}

// Generate prompts Gemini for a question set and validates the reply.
func (g *GeminiGenerator) Generate(ctx context.Context, req question.GenerateRequest) ([]question.Question, error) {
	if req.Count <= 0 {
		return nil, nil
	}
	text, err := g.llm.complete(ctx, buildPrompt(req))
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	questions, err := decodeQuestionSet([]byte(text))
	if err != nil {
		g.logger.Warn().Err(err).Str("section_id", req.SectionID).Msg("rejected gemini output")
		return nil, err
	}
	if len(questions) > req.Count {
		questions = questions[:req.Count]
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("gemini returned empty question set")
	}
	return questions, nil
}

// Enqueue is a no-op: Gemini is called on demand.
func (g *GeminiGenerator) Enqueue(context.Context, question.GenerateRequest) error {
	return nil
}

func buildPrompt(req question.GenerateRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write %d questions for the %q section", req.Count, req.SectionName)
	if req.Bucket != "" {
		fmt.Fprintf(&b, " (subject: %s)", req.Bucket)
	}
	b.WriteString(". Use four options per question and include a one-sentence explanation.")
	return b.String()
}

type geminiClient struct {
	client *genai.Client
	model  string
}

func (c *geminiClient) complete(ctx context.Context, prompt string) (string, error) {
	temp := float32(0.7)
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: 8192,
		Temperature:     &temp,
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		},
		ResponseMIMEType: "application/json",
		ResponseSchema:   questionSetGeminiSchema(),
	}
	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: prompt}},
	}}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", err
	}
	return result.Text(), nil
}

func questionSetGeminiSchema() *genai.Schema {
	return &genai.Schema{
		Type:     genai.TypeObject,
		Required: []string{"questions"},
		Properties: map[string]*genai.Schema{
			"questions": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type:     genai.TypeObject,
					Required: []string{"text", "options", "correct_option_index"},
					Properties: map[string]*genai.Schema{
						"text":                 {Type: genai.TypeString},
						"options":              {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
						"correct_option_index": {Type: genai.TypeInteger},
						"explanation":          {Type: genai.TypeString},
					},
				},
			},
		},
	}
}
