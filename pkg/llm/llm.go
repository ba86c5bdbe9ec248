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

// Package llm implements the LLM Gateway (spec §4.3): a uniform call
// interface over a model ring with retry/backoff and rotation, plus a
// lazy, cancellable streaming mode.
package llm

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/agentcore/orchestrator/pkg/message"
)

// ErrUnavailable is surfaced when every ring member has exhausted its retry
// budget (spec §7: "UpstreamUnavailable").
var ErrUnavailable = errors.New("llm: upstream unavailable")

// Params carries per-call generation settings.
type Params struct {
	Temperature float64
	MaxTokens   int
}

// Response is one non-streaming LLM Gateway result.
type Response struct {
	Text      string
	ToolCalls []message.ToolCall
	Model     string // backend/model that actually served this call
}

// StreamChunk is one token or tool-call fragment of a streaming response.
type StreamChunk struct {
	Text     string
	ToolCall *message.ToolCall // non-nil when a tool call completes in this chunk
	Done     bool
}

// ToolDefinition is the wire-neutral shape a Backend needs to advertise
// tools to its model (mirrors tool.Tool's public surface without importing
// package tool, avoiding an import cycle).
type ToolDefinition struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Backend is one model endpoint in the ring (spec §6 Outbound "LLM
// backend"). Implementations classify their own errors via RetriableError.
type Backend interface {
	Name() string
	Generate(ctx context.Context, messages []message.Message, tools []ToolDefinition, params Params) (Response, error)
	GenerateStream(ctx context.Context, messages []message.Message, tools []ToolDefinition, params Params) (iter.Seq2[StreamChunk, error], error)
}

// RetriableError wraps a Backend error with a classification flag
// (spec §4.3 "Retriable errors: timeout, rate-limit, transient server
// error. Non-retriable: schema/auth/validation.").
type RetriableError struct {
	Err       error
	Retriable bool
}

func (e *RetriableError) Error() string { return e.Err.Error() }
func (e *RetriableError) Unwrap() error { return e.Err }

// Retriable classifies err, defaulting to non-retriable for plain errors.
func Retriable(err error) bool {
	var re *RetriableError
	if errors.As(err, &re) {
		return re.Retriable
	}
	return false
}

// Gateway is the uniform LLM Gateway: call(messages, tools?, stream?).
type Gateway struct {
	ring        *Ring
	Attempts    int
	BackoffBase time.Duration
}

// NewGateway constructs a Gateway over ring with the documented retry
// defaults (3 attempts per backend, waiting ~1s and then ~2s between them).
func NewGateway(ring *Ring) *Gateway {
	return &Gateway{ring: ring, Attempts: 3, BackoffBase: time.Second}
}

// Call invokes the gateway non-streaming, retrying per-backend with
// exponential backoff and rotating across the ring on exhaustion
// (spec §4.3). Budget: at most backends × attempts calls per request.
func (g *Gateway) Call(ctx context.Context, messages []message.Message, tools []ToolDefinition, params Params) (Response, error) {
	var lastErr error
	for attemptAcrossRing := 0; attemptAcrossRing < g.ring.Len(); attemptAcrossRing++ {
		backend := g.ring.Current()
		resp, err := g.callWithRetry(ctx, backend, messages, tools, params)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !Retriable(err) {
			return Response{}, err
		}
		g.ring.Advance()
	}
	return Response{}, errors.Join(ErrUnavailable, lastErr)
}

func (g *Gateway) callWithRetry(ctx context.Context, backend Backend, messages []message.Message, tools []ToolDefinition, params Params) (Response, error) {
	var err error
	for attempt := 0; attempt < g.Attempts; attempt++ {
		var resp Response
		resp, err = backend.Generate(ctx, messages, tools, params)
		if err == nil {
			resp.Model = backend.Name()
			return resp, nil
		}
		if !Retriable(err) {
			return Response{}, err
		}
		if attempt == g.Attempts-1 {
			break
		}
		wait := g.BackoffBase * time.Duration(1<<attempt)
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-time.After(wait):
		}
	}
	return Response{}, err
}

// CallStream invokes the current ring member in streaming mode. Streaming
// calls do not retry mid-stream (spec §4.3 "non-restartable"); a failure
// to *start* the stream rotates the ring like Call does.
func (g *Gateway) CallStream(ctx context.Context, messages []message.Message, tools []ToolDefinition, params Params) (iter.Seq2[StreamChunk, error], error) {
	var lastErr error
	for attemptAcrossRing := 0; attemptAcrossRing < g.ring.Len(); attemptAcrossRing++ {
		backend := g.ring.Current()
		stream, err := backend.GenerateStream(ctx, messages, tools, params)
		if err == nil {
			return stream, nil
		}
		lastErr = err
		if !Retriable(err) {
			return nil, err
		}
		g.ring.Advance()
	}
	return nil, errors.Join(ErrUnavailable, lastErr)
}
