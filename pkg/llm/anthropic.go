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

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentcore/orchestrator/pkg/message"
)

// AnthropicBackend is a Backend over the real Anthropic Messages API,
// replacing the teacher's hand-rolled HTTP client (pkg/llms/anthropic.go)
// with the official SDK already present in the retrieval pack.
type AnthropicBackend struct {
	client anthropic.Client
	model  string
}

// NewAnthropicBackend constructs a ring member for model using apiKey.
func NewAnthropicBackend(apiKey, model string) *AnthropicBackend {
	return &AnthropicBackend{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (b *AnthropicBackend) Name() string { return "anthropic:" + b.model }

func toAnthropicMessages(messages []message.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Kind {
		case message.KindUser, message.KindSystemDirective:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case message.KindAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		case message.KindToolResult:
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		}
	}
	return out
}

func toAnthropicTools(tools []ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{
			Properties: t.Schema["properties"],
		}, t.Name))
	}
	return out
}

func classifyAnthropicErr(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return &RetriableError{Err: err, Retriable: true}
		case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
			return &RetriableError{Err: err, Retriable: true}
		default:
			return &RetriableError{Err: err, Retriable: false}
		}
	}
	return &RetriableError{Err: err, Retriable: true} // network-level errors: assume transient
}

func (b *AnthropicBackend) Generate(ctx context.Context, messages []message.Message, tools []ToolDefinition, params Params) (Response, error) {
	maxTokens := int64(params.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}
	resp, err := b.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(b.model),
		MaxTokens: maxTokens,
		Messages:  toAnthropicMessages(messages),
		Tools:     toAnthropicTools(tools),
	})
	if err != nil {
		return Response{}, fmt.Errorf("anthropic generate: %w", classifyAnthropicErr(err))
	}

	out := Response{}
	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Text += variant.Text
		case anthropic.ToolUseBlock:
			args, _ := variant.Input.(map[string]any)
			out.ToolCalls = append(out.ToolCalls, message.ToolCall{
				ID:        variant.ID,
				Name:      variant.Name,
				Arguments: args,
			})
		}
	}
	return out, nil
}

func (b *AnthropicBackend) GenerateStream(ctx context.Context, messages []message.Message, tools []ToolDefinition, params Params) (iter.Seq2[StreamChunk, error], error) {
	maxTokens := int64(params.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}
	stream := b.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(b.model),
		MaxTokens: maxTokens,
		Messages:  toAnthropicMessages(messages),
		Tools:     toAnthropicTools(tools),
	})

	return func(yield func(StreamChunk, error) bool) {
		defer stream.Close()
		for stream.Next() {
			event := stream.Current()
			if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
				if textDelta, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok {
					if !yield(StreamChunk{Text: textDelta.Text}, nil) {
						return
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield(StreamChunk{}, fmt.Errorf("anthropic stream: %w", classifyAnthropicErr(err)))
			return
		}
		yield(StreamChunk{Done: true}, nil)
	}, nil
}
