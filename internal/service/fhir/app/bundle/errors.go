package bundle

import (
	"errors"
	"fmt"

	"github.com/curanet/fhird/internal/service/fhir/model"
)

var (
	// ErrInvalidMode: the submitted bundle is neither batch nor transaction.
	ErrInvalidMode = errors.New("bundle type must be batch or transaction")

	// ErrTransactionFailed: the transactional scope could not commit and no
	// more specific cause is available.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrUnresolvedReference: a conditional reference matched zero or more
	// than one resource while building the reference graph.
	ErrUnresolvedReference = errors.New("unresolved reference")

	// ErrUnsupportedResource: a reference names a resource type the server
	// does not serve.
	ErrUnsupportedResource = errors.New("unsupported resource type")
)

// AbortError reports the first transaction-fatal entry outcome. The whole
// submission fails with this single error; no per-entry results survive.
type AbortError struct {
	Index   int
	Status  int
	Outcome model.OperationOutcome
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("transaction aborted by entry %d (status %d)", e.Index, e.Status)
}
