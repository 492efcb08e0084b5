package stream

import (
	"encoding/json"
	"fmt"
)

// Payload is the decoded payload of a signed commit. A genesis payload
// carries a header (controllers, optional model) and initial data; a data
// payload carries prev plus either a full replacement (data) or a JSON Merge
// Patch (patch). The engine treats both operations as opaque: state folding
// only ever calls Apply.
type Payload struct {
	Header *PayloadHeader  `json:"header,omitempty"`
	ID     string          `json:"id,omitempty"`
	Prev   string          `json:"prev,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Patch  json.RawMessage `json:"patch,omitempty"`
}

// PayloadHeader is the genesis header declaring stream ownership and model
// membership.
type PayloadHeader struct {
	Controllers []string `json:"controllers"`
	Model       string   `json:"model,omitempty"`
}

func decodePayload(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if len(p.Data) > 0 && len(p.Patch) > 0 {
		return nil, fmt.Errorf("decode payload: declares both data and patch")
	}
	return &p, nil
}

// IsGenesis reports whether the payload is a genesis payload.
func (p *Payload) IsGenesis() bool {
	return p.Header != nil && p.Prev == ""
}

// Apply produces the next content from prior content per the payload's
// declared operation: data replaces wholesale, patch applies RFC 7386 JSON
// Merge Patch semantics. A payload with neither leaves content unchanged.
func (p *Payload) Apply(prior json.RawMessage) (json.RawMessage, error) {
	switch {
	case len(p.Data) > 0:
		next := make(json.RawMessage, len(p.Data))
		copy(next, p.Data)
		return next, nil
	case len(p.Patch) > 0:
		return mergePatch(prior, p.Patch)
	}
	return prior, nil
}

// mergePatch applies an RFC 7386 merge patch: object members merge
// recursively, null members delete, and any non-object patch replaces the
// target outright.
func mergePatch(target, patch json.RawMessage) (json.RawMessage, error) {
	var p any
	if err := json.Unmarshal(patch, &p); err != nil {
		return nil, fmt.Errorf("merge patch: %w", err)
	}

	var t any
	if len(target) > 0 {
		if err := json.Unmarshal(target, &t); err != nil {
			return nil, fmt.Errorf("merge patch target: %w", err)
		}
	}

	merged, err := json.Marshal(applyMerge(t, p))
	if err != nil {
		return nil, fmt.Errorf("merge patch result: %w", err)
	}
	return merged, nil
}

func applyMerge(target, patch any) any {
	patchObj, ok := patch.(map[string]any)
	if !ok {
		return patch
	}
	targetObj, ok := target.(map[string]any)
	if !ok {
		targetObj = map[string]any{}
	}
	for k, v := range patchObj {
		if v == nil {
			delete(targetObj, k)
			continue
		}
		targetObj[k] = applyMerge(targetObj[k], v)
	}
	return targetObj
}
