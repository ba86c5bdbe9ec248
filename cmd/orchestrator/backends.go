package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/agentcore/orchestrator/pkg/llm"
)

// buildBackend constructs the llm.Backend named spec, formatted
// "<provider>:<model>" (matching every Backend's own Name() convention,
// e.g. AnthropicBackend.Name() == "anthropic:"+model). API keys and hosts
// come from the environment, never the config file (spec §6's model_ring
// names models, not secrets).
func buildBackend(ctx context.Context, spec string) (llm.Backend, error) {
	provider, model, ok := strings.Cut(spec, ":")
	if !ok {
		return nil, fmt.Errorf("model_ring entry %q must be \"<provider>:<model>\"", spec)
	}

	switch provider {
	case "anthropic":
		return llm.NewAnthropicBackend(os.Getenv("ANTHROPIC_API_KEY"), model), nil
	case "openai":
		return llm.NewOpenAIBackend(os.Getenv("OPENAI_API_KEY"), model), nil
	case "gemini":
		return llm.NewGeminiBackend(ctx, os.Getenv("GEMINI_API_KEY"), model)
	case "ollama":
		host := os.Getenv("OLLAMA_HOST")
		if host == "" {
			host = "http://localhost:11434"
		}
		return llm.NewOllamaBackend(host, model), nil
	default:
		return nil, fmt.Errorf("model_ring entry %q: unknown provider %q", spec, provider)
	}
}

// buildModelRing constructs one backend per cfg.ModelRing entry, in order
// — the Gateway rotates across them on retry exhaustion (spec §4.3).
func buildModelRing(ctx context.Context, modelRing []string) (*llm.Ring, error) {
	backends := make([]llm.Backend, 0, len(modelRing))
	for _, spec := range modelRing {
		b, err := buildBackend(ctx, spec)
		if err != nil {
			return nil, err
		}
		backends = append(backends, b)
	}
	return llm.NewRing(backends...), nil
}
