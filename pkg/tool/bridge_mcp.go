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

package tool

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// MCPBridge is an external-tool protocol bridge backed by a real MCP
// client, replacing a hand-rolled JSON-RPC transport. One bridge wraps one
// MCP server endpoint and is registered under Name() as the tool namespace.
type MCPBridge struct {
	name string
	url  string
	cli  *client.Client
}

// NewMCPBridge builds a bridge over an MCP server reachable via
// Server-Sent Events at url; name becomes the discovered tools' namespace.
func NewMCPBridge(name, url string) *MCPBridge {
	return &MCPBridge{name: name, url: url}
}

func (b *MCPBridge) Name() string { return b.name }

func (b *MCPBridge) connect(ctx context.Context) error {
	if b.cli != nil {
		return nil
	}
	c, err := client.NewSSEMCPClient(b.url)
	if err != nil {
		return fmt.Errorf("mcp bridge %s: dial: %w", b.name, err)
	}
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("mcp bridge %s: start: %w", b.name, err)
	}
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "agent-orchestration-core", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		return fmt.Errorf("mcp bridge %s: initialize: %w", b.name, err)
	}
	b.cli = c
	return nil
}

// ListTools implements Bridge.
func (b *MCPBridge) ListTools(ctx context.Context) ([]Descriptor, error) {
	if err := b.connect(ctx); err != nil {
		return nil, err
	}
	resp, err := b.cli.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcp bridge %s: list_tools: %w", b.name, err)
	}
	out := make([]Descriptor, 0, len(resp.Tools))
	for _, t := range resp.Tools {
		out = append(out, Descriptor{
			Name:        t.Name,
			Description: t.Description,
			Schema:      schemaToMap(t.InputSchema),
		})
	}
	return out, nil
}

// Invoke implements Bridge.
func (b *MCPBridge) Invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	if err := b.connect(ctx); err != nil {
		return "", err
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := b.cli.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("mcp bridge %s: call_tool %s: %w", b.name, name, err)
	}
	out := ""
	for _, c := range res.Content {
		if tc, ok := mcp.AsTextContent(c); ok {
			out += tc.Text
		}
	}
	return out, nil
}

func schemaToMap(s mcp.ToolInputSchema) map[string]any {
	return map[string]any{
		"type":       s.Type,
		"properties": s.Properties,
		"required":   s.Required,
	}
}
