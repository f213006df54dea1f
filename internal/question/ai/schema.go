package ai

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/gokatarajesh/exam-engine/internal/question"
)

const questionSetSchemaURL = "schema://question_set.json"

// questionSetSchema is the contract every generator response must satisfy.
var questionSetSchema = map[string]any{
	"type":     "object",
	"required": []any{"questions"},
	"properties": map[string]any{
		"questions": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"text", "options", "correct_option_index"},
				"properties": map[string]any{
					"id":   map[string]any{"type": "string"},
					"text": map[string]any{"type": "string", "minLength": 1},
					"options": map[string]any{
						"type":     "array",
						"minItems": 2,
						"items":    map[string]any{"type": "string"},
					},
					"correct_option_index": map[string]any{"type": "integer", "minimum": 0},
					"explanation":          map[string]any{"type": "string"},
				},
			},
		},
	},
}

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		// The compiler wants decoded JSON values, not Go literals.
		defBytes, err := json.Marshal(questionSetSchema)
		if err != nil {
			compileErr = fmt.Errorf("marshal schema definition: %w", err)
			return
		}
		var defParsed any
		if err := json.Unmarshal(defBytes, &defParsed); err != nil {
			compileErr = fmt.Errorf("parse schema definition: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(questionSetSchemaURL, defParsed); err != nil {
			compileErr = fmt.Errorf("add resource: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile(questionSetSchemaURL)
	})
	return compiledSchema, compileErr
}

type generatedQuestion struct {
	ID                 string   `json:"id"`
	Text               string   `json:"text"`
	Options            []string `json:"options"`
	CorrectOptionIndex int      `json:"correct_option_index"`
	Explanation        string   `json:"explanation"`
}

type questionSet struct {
	Questions []generatedQuestion `json:"questions"`
}

// decodeQuestionSet validates raw generator output against the schema and
// maps it to questions. Items that pass the schema but fail question rules
// (an out-of-range answer index) are dropped.
func decodeQuestionSet(raw []byte) ([]question.Question, error) {
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	sch, err := schema()
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	if err := sch.Validate(parsed); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	var set questionSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("decode question set: %w", err)
	}
	out := make([]question.Question, 0, len(set.Questions))
	for _, g := range set.Questions {
		q := question.Question{
			ID:                 g.ID,
			Text:               g.Text,
			Options:            g.Options,
			CorrectOptionIndex: g.CorrectOptionIndex,
			Explanation:        g.Explanation,
			Origin:             question.OriginGenerator,
		}
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		if q.Validate() != nil {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}
