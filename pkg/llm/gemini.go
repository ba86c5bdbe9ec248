// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llm

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"google.golang.org/genai"

	"github.com/agentcore/orchestrator/pkg/message"
)

// GeminiBackend is a Backend over google.golang.org/genai, already a
// direct dependency of the teacher.
type GeminiBackend struct {
	client *genai.Client
	model  string
}

// NewGeminiBackend constructs a ring member for model using apiKey.
func NewGeminiBackend(ctx context.Context, apiKey, model string) (*GeminiBackend, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &GeminiBackend{client: client, model: model}, nil
}

func (b *GeminiBackend) Name() string { return "gemini:" + b.model }

func toGeminiContents(messages []message.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := genai.RoleUser
		if m.Kind == message.KindAssistant {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(m.Content, role))
	}
	return out
}

func toGeminiTools(tools []ToolDefinition) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func classifyGeminiErr(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate") ||
		strings.Contains(msg, "deadline") || strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "503") || strings.Contains(msg, "500") {
		return &RetriableError{Err: err, Retriable: true}
	}
	return &RetriableError{Err: err, Retriable: false}
}

func (b *GeminiBackend) Generate(ctx context.Context, messages []message.Message, tools []ToolDefinition, params Params) (Response, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(params.Temperature)),
		Tools:       toGeminiTools(tools),
	}
	resp, err := b.client.Models.GenerateContent(ctx, b.model, toGeminiContents(messages), cfg)
	if err != nil {
		return Response{}, fmt.Errorf("gemini generate: %w", classifyGeminiErr(err))
	}
	out := Response{}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				out.Text += part.Text
			}
			if part.FunctionCall != nil {
				out.ToolCalls = append(out.ToolCalls, message.ToolCall{
					Name:      part.FunctionCall.Name,
					Arguments: part.FunctionCall.Args,
				})
			}
		}
	}
	return out, nil
}

func (b *GeminiBackend) GenerateStream(ctx context.Context, messages []message.Message, tools []ToolDefinition, params Params) (iter.Seq2[StreamChunk, error], error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(params.Temperature)),
		Tools:       toGeminiTools(tools),
	}
	chunks := b.client.Models.GenerateContentStream(ctx, b.model, toGeminiContents(messages), cfg)

	return func(yield func(StreamChunk, error) bool) {
		for chunk, err := range chunks {
			if err != nil {
				yield(StreamChunk{}, fmt.Errorf("gemini stream: %w", classifyGeminiErr(err)))
				return
			}
			text := ""
			for _, cand := range chunk.Candidates {
				if cand.Content == nil {
					continue
				}
				for _, part := range cand.Content.Parts {
					text += part.Text
				}
			}
			if text != "" && !yield(StreamChunk{Text: text}, nil) {
				return
			}
		}
		yield(StreamChunk{Done: true}, nil)
	}, nil
}
