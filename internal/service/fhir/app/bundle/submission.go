package bundle

import (
	"fmt"
	"strings"

	"github.com/curanet/fhird/internal/service/fhir/model"
)

type Mode int

const (
	Batch Mode = iota
	Transaction
)

func (m Mode) String() string {
	if m == Transaction {
		return "transaction"
	}
	return "batch"
}

// Entry is one sub-operation of a submission. Index is the entry's position in
// the submitted bundle and fixes its position in the response. An Entry with
// an empty Method is malformed: it gets a placeholder response and is never
// dispatched.
type Entry struct {
	Index    int
	Method   string
	URL      string
	FullURL  string
	Resource model.Resource

	IfMatch         string
	IfNoneMatch     string
	IfModifiedSince string
	IfNoneExist     string
}

// Submission is the parsed, immutable form of a batch or transaction bundle.
type Submission struct {
	Mode    Mode
	Entries []Entry
}

// parseSubmission validates the bundle mode and lifts each entry into an
// Entry. Unparseable entry payloads are treated as malformed entries rather
// than rejecting the whole submission.
func parseSubmission(b model.Bundle) (Submission, error) {
	var mode Mode
	switch b.Type {
	case model.BundleTypeBatch:
		mode = Batch
	case model.BundleTypeTransaction:
		mode = Transaction
	default:
		return Submission{}, fmt.Errorf("bundle type %q: %w", b.Type, ErrInvalidMode)
	}

	sub := Submission{Mode: mode, Entries: make([]Entry, 0, len(b.Entry))}
	for i, be := range b.Entry {
		e := Entry{Index: i, FullURL: be.FullURL}
		if be.Request != nil {
			e.Method = strings.ToUpper(strings.TrimSpace(be.Request.Method))
			e.URL = strings.TrimPrefix(be.Request.URL, "/")
			e.IfMatch = be.Request.IfMatch
			e.IfNoneMatch = be.Request.IfNoneMatch
			e.IfModifiedSince = be.Request.IfModifiedSince
			e.IfNoneExist = be.Request.IfNoneExist
		}
		if len(be.Resource) > 0 {
			res, err := model.ParseResource(be.Resource)
			if err != nil {
				e.Method = "" // malformed: placeholder instead of dispatch
			} else {
				e.Resource = res
			}
		}
		sub.Entries = append(sub.Entries, e)
	}
	return sub, nil
}

// resourceType extracts the target type from the entry URL ("Patient/5",
// "Patient?name=x" or bare "Patient").
func (e Entry) resourceType() string {
	target := e.URL
	if i := strings.IndexAny(target, "/?"); i >= 0 {
		target = target[:i]
	}
	return target
}
