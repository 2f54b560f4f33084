package bulkscan

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/opennotes-ai/opennotes-server/pkg/circuitbreaker"
)

// DefaultFlashpointModel is the Gemini model used for flashpoint detection prompts.
const DefaultFlashpointModel = "gemini-2.0-flash"

// flashpointBreakerName is the circuitbreaker.Registry key this dependency is tracked
// under, alongside every other external call the platform protects the same way.
const flashpointBreakerName = "flashpoint-llm"

// genaiPromptRunner implements PromptRunner over google.golang.org/genai, requesting a
// JSON response shaped like detectionResult via ResponseSchema so parsing never has to
// tolerate prose wrapping the JSON body. Calls are routed through a named circuit
// breaker so a degraded LLM backend trips CircuitOpen instead of stalling every message
// in a batch on a hanging dependency.
type genaiPromptRunner struct {
	client  *genai.Client
	model   string
	breaker *circuitbreaker.Breaker
}

// NewGenAIPromptRunner builds a PromptRunner backed by the given genai.Client, guarded
// by breaker.
func NewGenAIPromptRunner(client *genai.Client, model string, breaker *circuitbreaker.Breaker) PromptRunner {
	if model == "" {
		model = DefaultFlashpointModel
	}
	return &genaiPromptRunner{client: client, model: model, breaker: breaker}
}

func (r *genaiPromptRunner) RunPrompt(ctx context.Context, systemPrompt, contextStr, currentMessage string) (string, error) {
	prompt := fmt.Sprintf("Conversation context:\n%s\n\nCurrent message:\n%s", contextStr, currentMessage)

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, "user"),
		Temperature:       ptrFloat32(0.0),
		ResponseMIMEType:  "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"will_derail": {Type: genai.TypeBoolean},
				"reasoning":   {Type: genai.TypeString},
			},
			Required: []string{"will_derail", "reasoning"},
		},
	}

	var response string
	err := r.breaker.Execute(ctx, func(ctx context.Context) error {
		result, err := r.client.Models.GenerateContent(ctx, r.model, genai.Text(prompt), cfg)
		if err != nil {
			return fmt.Errorf("generate flashpoint content: %w", err)
		}
		if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
			return fmt.Errorf("empty flashpoint response")
		}
		response = result.Candidates[0].Content.Parts[0].Text
		return nil
	})
	if err != nil {
		return "", err
	}
	return response, nil
}

func ptrFloat32(v float32) *float32 {
	return &v
}

// noopPromptRunner always reports no derail signal. Used when no LLM backend is
// configured so flashpoint detection degrades to a no-op rather than failing scans.
type noopPromptRunner struct{}

// NewNoopPromptRunner builds a PromptRunner that never detects a flashpoint.
func NewNoopPromptRunner() PromptRunner {
	return noopPromptRunner{}
}

func (noopPromptRunner) RunPrompt(ctx context.Context, systemPrompt, contextStr, currentMessage string) (string, error) {
	return `{"will_derail": false, "reasoning": "flashpoint detection disabled"}`, nil
}
