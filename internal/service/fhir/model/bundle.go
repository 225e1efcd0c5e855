package model

import (
	"encoding/json"
	"fmt"
)

// Bundle types the server accepts and produces.
const (
	BundleTypeBatch               = "batch"
	BundleTypeTransaction         = "transaction"
	BundleTypeBatchResponse       = "batch-response"
	BundleTypeTransactionResponse = "transaction-response"
	BundleTypeSearchset           = "searchset"
)

type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Request  *EntryRequest   `json:"request,omitempty"`
	Response *EntryResponse  `json:"response,omitempty"`
	Search   *EntrySearch    `json:"search,omitempty"`
}

// EntryRequest carries the sub-operation verb, target and conditional headers.
type EntryRequest struct {
	Method          string `json:"method"`
	URL             string `json:"url"`
	IfMatch         string `json:"ifMatch,omitempty"`
	IfNoneMatch     string `json:"ifNoneMatch,omitempty"`
	IfModifiedSince string `json:"ifModifiedSince,omitempty"`
	IfNoneExist     string `json:"ifNoneExist,omitempty"`
}

type EntryResponse struct {
	Status       string          `json:"status"`
	Location     string          `json:"location,omitempty"`
	Etag         string          `json:"etag,omitempty"`
	LastModified string          `json:"lastModified,omitempty"`
	Outcome      json.RawMessage `json:"outcome,omitempty"`
}

type EntrySearch struct {
	Mode string `json:"mode,omitempty"`
}

func ParseBundle(raw []byte) (Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return Bundle{}, fmt.Errorf("parse bundle: %w", err)
	}
	if b.ResourceType != "Bundle" {
		return Bundle{}, fmt.Errorf("parse bundle: resourceType %q is not Bundle", b.ResourceType)
	}
	return b, nil
}

// NewSearchset wraps search results in a searchset bundle. Entry order follows
// the result order handed in.
func NewSearchset(resources []Resource) Bundle {
	total := len(resources)
	b := Bundle{
		ResourceType: "Bundle",
		Type:         BundleTypeSearchset,
		Total:        &total,
	}
	for _, res := range resources {
		b.Entry = append(b.Entry, BundleEntry{
			FullURL:  res.Type() + "/" + res.ID(),
			Resource: res.MarshalRaw(),
			Search:   &EntrySearch{Mode: "match"},
		})
	}
	return b
}
