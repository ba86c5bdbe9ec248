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

// Command orchestrator is the CLI entry point for the Agent Orchestration
// Core: it loads a YAML config (spec §6 Configuration), wires the Agent
// Loop Driver, Multi-Agent Router, Workflow Scheduler, Approval Gate, and
// Tool Registry into one pkg/orchestrator.Orchestrator, and exposes
// spec §6's Inbound contract as subcommands.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/agentcore/orchestrator/pkg/config"
)

// CLI is the root kong command tree.
type CLI struct {
	Run       RunCmd       `cmd:"" help:"Execute one request against the orchestration core."`
	Approvals ApprovalsCmd `cmd:"" help:"Inspect and resolve pending approvals."`
	Workflows WorkflowsCmd `cmd:"" help:"List workflow plan templates."`
	Tools     ToolsCmd     `cmd:"" help:"Refresh external tool bridges."`
	Version   VersionCmd   `cmd:"" help:"Show version information."`

	Config   string `short:"c" help:"Path to config file." type:"path" default:"orchestrator.yaml"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info" enum:"debug,info,warn,error"`
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run(cli *CLI) error {
	fmt.Println("agentcore orchestrator dev build")
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("orchestrator"),
		kong.Description("Agent Orchestration Core CLI."),
		kong.UsageOnError(),
	)

	initLogger(cli.LogLevel)

	if err := config.LoadEnvFiles(); err != nil {
		slog.Warn("could not load .env files", "error", err)
	}

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
	if err != nil {
		os.Exit(1)
	}
}

func initLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
