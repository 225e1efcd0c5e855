package model

import "encoding/json"

// Issue codes used by the server, a subset of the FHIR issue-type value set.
const (
	IssueInvalid         = "invalid"
	IssueNotFound        = "not-found"
	IssueNotSupported    = "not-supported"
	IssueForbidden       = "forbidden"
	IssueConflict        = "conflict"
	IssueMultipleMatches = "multiple-matches"
	IssueProcessing      = "processing"
)

type OperationOutcome struct {
	ResourceType string         `json:"resourceType"`
	Issue        []OutcomeIssue `json:"issue"`
}

type OutcomeIssue struct {
	Severity    string `json:"severity"`
	Code        string `json:"code"`
	Diagnostics string `json:"diagnostics,omitempty"`
}

func NewOutcome(code, diagnostics string) OperationOutcome {
	return OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue: []OutcomeIssue{{
			Severity:    "error",
			Code:        code,
			Diagnostics: diagnostics,
		}},
	}
}

func (o OperationOutcome) MarshalRaw() json.RawMessage {
	raw, _ := json.Marshal(o)
	return raw
}

// AsOutcome reports whether raw is an OperationOutcome, decoding it if so.
func AsOutcome(raw []byte) (OperationOutcome, bool) {
	var o OperationOutcome
	if err := json.Unmarshal(raw, &o); err != nil {
		return OperationOutcome{}, false
	}
	if o.ResourceType != "OperationOutcome" {
		return OperationOutcome{}, false
	}
	return o, true
}
