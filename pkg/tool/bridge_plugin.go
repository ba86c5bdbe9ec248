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
	"net/rpc"
	"os/exec"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"
)

// pluginHandshake is shared between host and plugin binary so a stray
// executable can't be mistaken for a tool plugin.
var pluginHandshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "AGENTCORE_TOOL_PLUGIN",
	MagicCookieValue: "agentcore-tool-bridge",
}

// ToolPluginRPC is the net/rpc surface a tool plugin binary implements.
type ToolPluginRPC interface {
	ListTools() ([]Descriptor, error)
	Invoke(name string, args map[string]any) (string, error)
}

// toolPlugin is the plugin.Plugin implementation used on the host side.
type toolPlugin struct {
	plugin.NetRPCUnsupportedBroker
}

func (p *toolPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return nil, fmt.Errorf("tool plugin: server side not implemented by host")
}

func (p *toolPlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &toolPluginClient{client: c}, nil
}

type toolPluginClient struct{ client *rpc.Client }

func (c *toolPluginClient) ListTools() ([]Descriptor, error) {
	var resp []Descriptor
	if err := c.client.Call("Plugin.ListTools", new(interface{}), &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

type invokeArgs struct {
	Name string
	Args map[string]any
}

func (c *toolPluginClient) Invoke(name string, args map[string]any) (string, error) {
	var resp string
	if err := c.client.Call("Plugin.Invoke", invokeArgs{Name: name, Args: args}, &resp); err != nil {
		return "", err
	}
	return resp, nil
}

// PluginBridge is an external-tool bridge backed by an in-process RPC
// plugin binary launched with hashicorp/go-plugin, grounded on the
// go-plugin-based native plugin tool host.
type PluginBridge struct {
	name    string
	command string
	args    []string

	client    *plugin.Client
	rpcClient ToolPluginRPC
}

// NewPluginBridge builds a bridge that launches command as a subprocess
// plugin on first use.
func NewPluginBridge(name, command string, args ...string) *PluginBridge {
	return &PluginBridge{name: name, command: command, args: args}
}

func (b *PluginBridge) Name() string { return b.name }

func (b *PluginBridge) connect() (ToolPluginRPC, error) {
	if b.rpcClient != nil {
		return b.rpcClient, nil
	}
	b.client = plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig: pluginHandshake,
		Plugins: map[string]plugin.Plugin{
			"tool": &toolPlugin{},
		},
		Cmd:              exec.Command(b.command, b.args...),
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
		Logger:           hclog.NewNullLogger(),
	})
	rpcc, err := b.client.Client()
	if err != nil {
		return nil, fmt.Errorf("plugin bridge %s: %w", b.name, err)
	}
	raw, err := rpcc.Dispense("tool")
	if err != nil {
		return nil, fmt.Errorf("plugin bridge %s: dispense: %w", b.name, err)
	}
	impl, ok := raw.(ToolPluginRPC)
	if !ok {
		return nil, fmt.Errorf("plugin bridge %s: unexpected plugin type", b.name)
	}
	b.rpcClient = impl
	return impl, nil
}

// ListTools implements Bridge.
func (b *PluginBridge) ListTools(ctx context.Context) ([]Descriptor, error) {
	impl, err := b.connect()
	if err != nil {
		return nil, err
	}
	return impl.ListTools()
}

// Invoke implements Bridge.
func (b *PluginBridge) Invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	impl, err := b.connect()
	if err != nil {
		return "", err
	}
	return impl.Invoke(name, args)
}

// Close terminates the plugin subprocess.
func (b *PluginBridge) Close() {
	if b.client != nil {
		b.client.Kill()
	}
}
