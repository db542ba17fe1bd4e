package domain

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Loop modes.
const (
	LoopModeCount     = "count"
	LoopModeCondition = "condition"
)

// Default values applied by the palette and by config decoding.
const (
	DefaultDelayMs       = 1000
	DefaultLoopCount     = 1
	DefaultMaxIterations = 100
)

// HTTPRequestConfig references a saved request or embeds one inline.
type HTTPRequestConfig struct {
	RequestID     string         `mapstructure:"request_id"`
	InlineRequest map[string]any `mapstructure:"inline_request"`
}

// CollectionConfig runs every request of a collection.
type CollectionConfig struct {
	CollectionID string `mapstructure:"collection_id"`
}

// Assertion is a single check evaluated against the previous response.
type Assertion struct {
	Type     string `mapstructure:"type"`
	Operator string `mapstructure:"operator"`
	Expected string `mapstructure:"expected"`
	Field    string `mapstructure:"field"`
}

// AssertionConfig holds the checks of an assertion node.
type AssertionConfig struct {
	Assertions []Assertion `mapstructure:"assertions"`
}

// ScriptConfig holds user code executed by the orchestrator.
type ScriptConfig struct {
	Script   string `mapstructure:"script"`
	Language string `mapstructure:"language"`
}

// DelayConfig pauses the run.
type DelayConfig struct {
	DelayMs int `mapstructure:"delay_ms"`
}

// ConditionConfig branches on an expression.
type ConditionConfig struct {
	Expression string `mapstructure:"expression"`
}

// LoopConfig repeats the loop body by count or while a condition holds.
type LoopConfig struct {
	Mode          string `mapstructure:"mode"`
	Count         int    `mapstructure:"count"`
	MaxIterations int    `mapstructure:"max_iterations"`
	Condition     string `mapstructure:"condition"`
}

// Assignment sets a flow variable.
type Assignment struct {
	Key   string `mapstructure:"key"`
	Value string `mapstructure:"value"`
}

// SetVariableConfig holds variable assignments.
type SetVariableConfig struct {
	Assignments []Assignment `mapstructure:"assignments"`
}

// DecodeConfig decodes a node's opaque config map into the typed record for its type.
// Group nodes decode to nil.
func DecodeConfig(t NodeType, raw map[string]any) (any, error) {
	var target any
	switch t {
	case NodeTypeHTTPRequest:
		target = &HTTPRequestConfig{}
	case NodeTypeCollection:
		target = &CollectionConfig{}
	case NodeTypeAssertion:
		target = &AssertionConfig{}
	case NodeTypeScript:
		target = &ScriptConfig{Language: "javascript"}
	case NodeTypeDelay:
		target = &DelayConfig{DelayMs: DefaultDelayMs}
	case NodeTypeCondition:
		target = &ConditionConfig{}
	case NodeTypeLoop:
		target = &LoopConfig{Mode: LoopModeCount, Count: DefaultLoopCount, MaxIterations: DefaultMaxIterations}
	case NodeTypeSetVariable:
		target = &SetVariableConfig{}
	case NodeTypeGroup:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, t)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode %s config: %w", t, err)
	}
	return target, nil
}
