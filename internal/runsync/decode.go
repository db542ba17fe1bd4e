package runsync

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/testflow/pkg/domain"
	"github.com/tidwall/gjson"
)

var (
	errInvalidJSON  = errors.New("invalid json")
	errMissingType  = errors.New("missing event type")
	errUnknownType  = errors.New("unknown event type")
	errMissingField = errors.New("missing required field")
)

// camelAliases maps camelCase keys some senders use to the wire field they fill.
var camelAliases = []struct {
	key   string
	apply func(ev *domain.RunEvent, v gjson.Result)
}{
	{"nodeId", func(ev *domain.RunEvent, v gjson.Result) { ev.NodeID = v.String() }},
	{"edgeId", func(ev *domain.RunEvent, v gjson.Result) { ev.EdgeID = v.String() }},
	{"nodeType", func(ev *domain.RunEvent, v gjson.Result) { ev.NodeType = domain.NodeType(v.String()) }},
	{"statusCode", func(ev *domain.RunEvent, v gjson.Result) { ev.StatusCode = int(v.Int()) }},
	{"elapsedMs", func(ev *domain.RunEvent, v gjson.Result) { ev.ElapsedMs = v.Float() }},
	{"branchTaken", func(ev *domain.RunEvent, v gjson.Result) { ev.BranchTaken = domain.BranchTaken(v.String()) }},
	{"iterationsCompleted", func(ev *domain.RunEvent, v gjson.Result) { ev.IterationsCompleted = int(v.Int()) }},
}

// Decode parses one stream frame. A leading SSE "data:" prefix is tolerated.
// Frames that are not JSON, carry no known type, or lack the id their type
// requires are rejected so the caller can drop them.
func Decode(frame []byte) (*domain.RunEvent, error) {
	frame = bytes.TrimSpace(frame)
	frame = bytes.TrimSpace(bytes.TrimPrefix(frame, []byte("data:")))

	if !gjson.ValidBytes(frame) {
		return nil, errInvalidJSON
	}
	doc := gjson.ParseBytes(frame)
	if !doc.IsObject() {
		return nil, errInvalidJSON
	}
	rawType := doc.Get("type")
	if !rawType.Exists() || rawType.String() == "" {
		return nil, errMissingType
	}
	typ := domain.NormalizeEventType(rawType.String())
	if !typ.Known() {
		return nil, fmt.Errorf("%w: %q", errUnknownType, rawType.String())
	}

	var ev domain.RunEvent
	if err := json.Unmarshal(frame, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidJSON, err)
	}
	ev.Type = typ
	for _, alias := range camelAliases {
		if v := doc.Get(alias.key); v.Exists() {
			alias.apply(&ev, v)
		}
	}

	switch typ {
	case domain.EventNodeStart, domain.EventNodeResult, domain.EventNodeSkipped, domain.EventLoopIteration:
		if ev.NodeID == "" {
			return nil, fmt.Errorf("%w: node_id", errMissingField)
		}
	case domain.EventEdgeActive:
		if ev.EdgeID == "" {
			return nil, fmt.Errorf("%w: edge_id", errMissingField)
		}
	case domain.EventError:
		if ev.Error == "" {
			ev.Error = doc.Get("message").String()
		}
	}
	return &ev, nil
}
