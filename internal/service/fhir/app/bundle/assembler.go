package bundle

import (
	"net/http"

	"github.com/curanet/fhird/internal/service/fhir/model"
)

// assembler collects result envelopes into a response bundle whose entry
// order equals the submission order, regardless of execution order.
type assembler struct {
	mode    Mode
	entries []*model.BundleEntry
}

func newAssembler(mode Mode, size int) *assembler {
	return &assembler{mode: mode, entries: make([]*model.BundleEntry, size)}
}

func (a *assembler) place(env envelope) {
	e := env.entry
	a.entries[env.index] = &e
}

// placeMalformed fills the slot of an entry that carried no operation verb.
func (a *assembler) placeMalformed(index int) {
	a.entries[index] = &model.BundleEntry{
		Response: &model.EntryResponse{
			Status:  statusLine(http.StatusBadRequest),
			Outcome: model.NewOutcome(model.IssueInvalid, "entry has no request").MarshalRaw(),
		},
	}
}

func (a *assembler) bundle() model.Bundle {
	typ := model.BundleTypeBatchResponse
	if a.mode == Transaction {
		typ = model.BundleTypeTransactionResponse
	}
	out := model.Bundle{ResourceType: "Bundle", Type: typ}
	for _, e := range a.entries {
		if e == nil {
			// Exactly one envelope per index is an engine invariant; a hole
			// here is a bug, not client input.
			e = &model.BundleEntry{Response: &model.EntryResponse{
				Status:  statusLine(http.StatusInternalServerError),
				Outcome: model.NewOutcome(model.IssueProcessing, "missing entry result").MarshalRaw(),
			}}
		}
		out.Entry = append(out.Entry, *e)
	}
	return out
}
