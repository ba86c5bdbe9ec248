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
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"

	"github.com/agentcore/orchestrator/pkg/skill"
)

// KnowledgeRetriever matches the external RAG collaborator's contract
// (spec §6 Outbound); the core only depends on this interface.
type KnowledgeRetriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]KnowledgeResult, error)
}

// KnowledgeResult is one hit returned by a KnowledgeRetriever.
type KnowledgeResult struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	Source  string  `json:"source"`
}

func schemaFor(v any) map[string]any {
	reflector := &jsonschema.Reflector{ExpandedStruct: true}
	s := reflector.Reflect(v)
	raw, err := s.MarshalJSON()
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{}
	}
	return m
}

// decode is a thin mapstructure wrapper used to turn a ToolCall's free-form
// argument map into a typed struct.
func decode(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(args)
}

type loadSkillArgs struct {
	Name string `json:"name" jsonschema:"required,description=Name of the skill to load"`
}

type createSkillArgs struct {
	Instruction string   `json:"instruction" jsonschema:"required,description=Freeform description of the skill to synthesize"`
	Name        string   `json:"name" jsonschema:"required"`
	Content     string   `json:"content" jsonschema:"required"`
	Tags        []string `json:"tags,omitempty"`
}

type updateSkillArgs struct {
	Name  string `json:"name" jsonschema:"required"`
	Delta string `json:"delta" jsonschema:"required,description=Text to append to the skill body"`
}

type retrieveKnowledgeArgs struct {
	Query string `json:"query" jsonschema:"required"`
	K     int    `json:"k" jsonschema:"required"`
}

// BuiltinTools returns the skill loader/creator/updater/lister and the
// knowledge retriever every orchestrator core ships with (spec §4.2).
// retriever may be nil, in which case retrieve_knowledge reports it is
// unconfigured rather than panicking.
func BuiltinTools(store *skill.Store, retriever KnowledgeRetriever) []Tool {
	return []Tool{
		{
			Name:        "load_skill",
			Description: "Load the full content of a named skill.",
			Schema:      schemaFor(loadSkillArgs{}),
			Invoke: func(ctx context.Context, args map[string]any) (string, error) {
				var a loadSkillArgs
				if err := decode(args, &a); err != nil {
					return "", fmt.Errorf("load_skill: %w", err)
				}
				sk, ok := store.Get(a.Name)
				if !ok {
					return "", fmt.Errorf("load_skill: skill %q not found", a.Name)
				}
				return sk.Content, nil
			},
		},
		{
			Name:         "create_skill",
			Description:  "Create a new skill from an instruction.",
			Schema:       schemaFor(createSkillArgs{}),
			Sensitive:    true,
			RequiresRole: "",
			Invoke: func(ctx context.Context, args map[string]any) (string, error) {
				var a createSkillArgs
				if err := decode(args, &a); err != nil {
					return "", fmt.Errorf("create_skill: %w", err)
				}
				sk, err := store.Create(a.Name, a.Instruction, a.Content, a.Tags, skill.SourceAgent, true)
				if err != nil {
					return "", fmt.Errorf("create_skill: %w", err)
				}
				return fmt.Sprintf("created skill %q (v%d)", sk.Name, sk.Version), nil
			},
		},
		{
			Name:        "update_skill",
			Description: "Append a delta to an existing skill's content.",
			Schema:      schemaFor(updateSkillArgs{}),
			Sensitive:   true,
			Invoke: func(ctx context.Context, args map[string]any) (string, error) {
				var a updateSkillArgs
				if err := decode(args, &a); err != nil {
					return "", fmt.Errorf("update_skill: %w", err)
				}
				sk, err := store.Update(a.Name, a.Delta)
				if err != nil {
					return "", fmt.Errorf("update_skill: %w", err)
				}
				return fmt.Sprintf("updated skill %q to v%d", sk.Name, sk.Version), nil
			},
		},
		{
			Name:        "list_skills",
			Description: "List all known skills by name and description.",
			Schema:      schemaFor(struct{}{}),
			Invoke: func(ctx context.Context, args map[string]any) (string, error) {
				skills := store.List()
				out := ""
				for _, sk := range skills {
					out += fmt.Sprintf("- %s: %s\n", sk.Name, sk.Description)
				}
				return out, nil
			},
		},
		{
			Name:        "retrieve_knowledge",
			Description: "Retrieve the k most relevant knowledge snippets for a query.",
			Schema:      schemaFor(retrieveKnowledgeArgs{}),
			Invoke: func(ctx context.Context, args map[string]any) (string, error) {
				if retriever == nil {
					return "", fmt.Errorf("retrieve_knowledge: no retriever configured")
				}
				var a retrieveKnowledgeArgs
				if err := decode(args, &a); err != nil {
					return "", fmt.Errorf("retrieve_knowledge: %w", err)
				}
				results, err := retriever.Retrieve(ctx, a.Query, a.K)
				if err != nil {
					return "", fmt.Errorf("retrieve_knowledge: %w", err)
				}
				out := ""
				for _, r := range results {
					out += fmt.Sprintf("[%s score=%.3f] %s\n", r.Source, r.Score, r.Content)
				}
				return out, nil
			},
		},
	}
}
