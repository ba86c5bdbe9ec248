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
	"errors"
	"fmt"
	"iter"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/agentcore/orchestrator/pkg/message"
)

// OpenAIBackend is a Backend over the official OpenAI Go SDK.
type OpenAIBackend struct {
	client openai.Client
	model  string
}

// NewOpenAIBackend constructs a ring member for model using apiKey.
func NewOpenAIBackend(apiKey, model string) *OpenAIBackend {
	return &OpenAIBackend{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (b *OpenAIBackend) Name() string { return "openai:" + b.model }

func toOpenAIMessages(messages []message.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Kind {
		case message.KindSystemDirective:
			out = append(out, openai.SystemMessage(m.Content))
		case message.KindUser:
			out = append(out, openai.UserMessage(m.Content))
		case message.KindAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		case message.KindToolResult:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		}
	}
	return out
}

func toOpenAITools(tools []ToolDefinition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  t.Schema,
			},
		})
	}
	return out
}

func classifyOpenAIErr(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusGatewayTimeout,
			http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
			return &RetriableError{Err: err, Retriable: true}
		default:
			return &RetriableError{Err: err, Retriable: false}
		}
	}
	return &RetriableError{Err: err, Retriable: true}
}

func (b *OpenAIBackend) Generate(ctx context.Context, messages []message.Message, tools []ToolDefinition, params Params) (Response, error) {
	resp, err := b.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    b.model,
		Messages: toOpenAIMessages(messages),
		Tools:    toOpenAITools(tools),
	})
	if err != nil {
		return Response{}, fmt.Errorf("openai generate: %w", classifyOpenAIErr(err))
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("openai generate: empty choices")
	}
	choice := resp.Choices[0]
	out := Response{Text: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		args, err := decodeJSONArgs(tc.Function.Arguments)
		if err != nil {
			continue
		}
		out.ToolCalls = append(out.ToolCalls, message.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return out, nil
}

func (b *OpenAIBackend) GenerateStream(ctx context.Context, messages []message.Message, tools []ToolDefinition, params Params) (iter.Seq2[StreamChunk, error], error) {
	stream := b.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:    b.model,
		Messages: toOpenAIMessages(messages),
		Tools:    toOpenAITools(tools),
	})

	return func(yield func(StreamChunk, error) bool) {
		defer stream.Close()
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta != "" {
				if !yield(StreamChunk{Text: delta}, nil) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield(StreamChunk{}, fmt.Errorf("openai stream: %w", classifyOpenAIErr(err)))
			return
		}
		yield(StreamChunk{Done: true}, nil)
	}, nil
}
