package memory

import (
	"fmt"

	"github.com/aretw0/testflow/pkg/domain"
)

type template struct {
	label  string
	config map[string]any
}

// Palette implements ports.Palette from a fixed template table.
type Palette struct {
	templates map[domain.NodeType]template
}

// NewPalette returns the default node templates.
func NewPalette() *Palette {
	return &Palette{templates: map[domain.NodeType]template{
		domain.NodeTypeHTTPRequest: {"HTTP Request", map[string]any{"request_id": ""}},
		domain.NodeTypeCollection:  {"Run Collection", map[string]any{"collection_id": ""}},
		domain.NodeTypeAssertion: {"Assertion", map[string]any{"assertions": []any{
			map[string]any{"type": "status_code", "operator": "eq", "expected": "200", "field": ""},
		}}},
		domain.NodeTypeScript: {"Script", map[string]any{"script": "", "language": "javascript"}},
		domain.NodeTypeDelay:  {"Delay", map[string]any{"delay_ms": domain.DefaultDelayMs}},
		domain.NodeTypeCondition: {"Condition", map[string]any{"expression": ""}},
		domain.NodeTypeLoop: {"Loop", map[string]any{
			"mode": domain.LoopModeCount, "count": 3, "max_iterations": domain.DefaultMaxIterations, "condition": "",
		}},
		domain.NodeTypeSetVariable: {"Set Variable", map[string]any{"assignments": []any{}}},
		domain.NodeTypeGroup:       {"Group", map[string]any{}},
	}}
}

// Override replaces the template of one node type.
func (p *Palette) Override(t domain.NodeType, label string, config map[string]any) {
	p.templates[t] = template{label: label, config: domain.CloneConfig(config)}
}

// Template returns a copy of the default label and config for t.
func (p *Palette) Template(t domain.NodeType) (string, map[string]any, error) {
	tpl, ok := p.templates[t]
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", domain.ErrUnknownNodeType, t)
	}
	return tpl.label, domain.CloneConfig(tpl.config), nil
}
