package middleware

import "github.com/agentcore/orchestrator/pkg/tool"

// RoleFilterMiddleware restricts the tool set passed to the model by user
// role (spec §4.4). The default rule hides any tool named in
// skillMutatingTools from non-admin roles; additional RequiresRole
// restrictions on individual tools (enforced by tool.Registry.Resolve) are
// a second, independent layer.
type RoleFilterMiddleware struct {
	Base
	AdminRole          string
	SkillMutatingTools map[string]bool
}

// NewRoleFilterMiddleware constructs the role-scoped tool filter with the
// documented default rule: non-admin roles cannot see tools that create
// or mutate skills.
func NewRoleFilterMiddleware() *RoleFilterMiddleware {
	return &RoleFilterMiddleware{
		Base:      NewBase("role_filter"),
		AdminRole: "admin",
		SkillMutatingTools: map[string]bool{
			"create_skill": true,
			"update_skill": true,
		},
	}
}

// FilterTools implements Middleware.
func (m *RoleFilterMiddleware) FilterTools(role string, tools []tool.Tool) []tool.Tool {
	if role == m.AdminRole {
		return tools
	}
	out := make([]tool.Tool, 0, len(tools))
	for _, t := range tools {
		if m.SkillMutatingTools[t.Name] {
			continue
		}
		out = append(out, t)
	}
	return out
}
