package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Resource is a generic FHIR resource decoded from JSON. The server stores and
// routes arbitrary resource types, so resources stay schemaless; typed structs
// exist only for the payloads the server itself produces (Bundle, OperationOutcome).
type Resource map[string]any

func ParseResource(raw []byte) (Resource, error) {
	var r Resource
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("parse resource: %w", err)
	}
	if r.Type() == "" {
		return nil, fmt.Errorf("parse resource: missing resourceType")
	}
	return r, nil
}

func (r Resource) Type() string {
	t, _ := r["resourceType"].(string)
	return t
}

func (r Resource) ID() string {
	id, _ := r["id"].(string)
	return id
}

func (r Resource) SetID(id string) {
	r["id"] = id
}

// VersionID returns meta.versionId, or "" when the resource has never been stored.
func (r Resource) VersionID() string {
	meta, _ := r["meta"].(map[string]any)
	if meta == nil {
		return ""
	}
	v, _ := meta["versionId"].(string)
	return v
}

func (r Resource) LastUpdated() string {
	meta, _ := r["meta"].(map[string]any)
	if meta == nil {
		return ""
	}
	v, _ := meta["lastUpdated"].(string)
	return v
}

func (r Resource) SetMeta(versionID string, lastUpdated time.Time) {
	meta, _ := r["meta"].(map[string]any)
	if meta == nil {
		meta = map[string]any{}
		r["meta"] = meta
	}
	meta["versionId"] = versionID
	meta["lastUpdated"] = lastUpdated.UTC().Format(time.RFC3339)
}

// Clone returns a deep copy. Mutating the copy (reference rewriting, meta updates)
// never leaks into the original.
func (r Resource) Clone() Resource {
	if r == nil {
		return nil
	}
	raw, err := json.Marshal(r)
	if err != nil {
		// a Resource decoded from JSON always re-marshals
		panic(fmt.Sprintf("clone resource: %v", err))
	}
	var out Resource
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("clone resource: %v", err))
	}
	return out
}

func (r Resource) MarshalRaw() json.RawMessage {
	raw, _ := json.Marshal(r)
	return raw
}

// RewriteReferences walks the resource tree and applies fn to every
// reference element ({"reference": "..."}) found at any depth. fn returns the
// replacement string; returning an error stops the walk.
func (r Resource) RewriteReferences(fn func(ref string) (string, error)) error {
	return rewriteRefs(map[string]any(r), fn)
}

func rewriteRefs(node any, fn func(string) (string, error)) error {
	switch v := node.(type) {
	case map[string]any:
		if ref, ok := v["reference"].(string); ok && ref != "" {
			rewritten, err := fn(ref)
			if err != nil {
				return err
			}
			v["reference"] = rewritten
		}
		for _, child := range v {
			if err := rewriteRefs(child, fn); err != nil {
				return err
			}
		}
	case []any:
		for _, child := range v {
			if err := rewriteRefs(child, fn); err != nil {
				return err
			}
		}
	}
	return nil
}
