// Package bundle implements the bundle transaction engine: it turns one
// batch or transaction submission into an ordered set of sub-operations routed
// through the server's own processing pipeline, and assembles one aggregated
// response in submission order.
package bundle

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/curanet/fhird/internal/service/common"
	"github.com/curanet/fhird/internal/service/fhir/model"
	"github.com/curanet/fhird/internal/service/fhir/ports"
)

type Engine struct {
	resolver   *resolver
	dispatcher *dispatcher
	tx         ports.TransactionalResource
	logger     *zap.Logger
}

func New(
	ids ports.IDProvider,
	search ports.SearchService,
	pipeline ports.Pipeline,
	tx ports.TransactionalResource,
	audit ports.AuditSink,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		resolver:   &resolver{ids: ids, search: search},
		dispatcher: &dispatcher{pipeline: pipeline, audit: audit},
		tx:         tx,
		logger:     logger,
	}
}

// Process executes one submission and returns the aggregated response bundle.
// Per-entry failures are represented inside the response; the returned error
// is reserved for submission-level failures (invalid mode, unresolved
// reference graph, transaction abort, cancellation).
func (e *Engine) Process(ctx context.Context, b model.Bundle) (model.Bundle, error) {
	sub, err := parseSubmission(b)
	if err != nil {
		return model.Bundle{}, err
	}

	correlation := common.Correlation(ctx)
	if correlation == "" {
		correlation = uuid.NewString()
		ctx = common.WithCorrelation(ctx, correlation)
	}
	log := e.logger.With(
		zap.String("correlation", correlation),
		zap.Stringer("mode", sub.Mode),
		zap.Int("entries", len(sub.Entries)),
	)
	log.Info("processing submission")

	// Reference resolution runs only for transactions: batch entries are
	// independent and must not observe each other's assigned ids.
	var forced map[int]string
	if sub.Mode == Transaction {
		forced, err = e.resolver.resolve(ctx, sub.Entries)
		if err != nil {
			log.Warn("reference resolution failed", zap.Error(err))
			return model.Bundle{}, err
		}
	}

	groups, malformed := schedule(sub.Entries)

	// A malformed entry is a client error raised before dispatch; in a
	// transaction nothing may take effect, so fail the whole submission.
	if sub.Mode == Transaction && len(malformed) > 0 {
		return model.Bundle{}, &AbortError{
			Index:   malformed[0].Index,
			Status:  400,
			Outcome: model.NewOutcome(model.IssueInvalid, "entry has no request"),
		}
	}

	asm := newAssembler(sub.Mode, len(sub.Entries))
	for _, m := range malformed {
		asm.placeMalformed(m.Index)
	}

	var scope ports.Scope
	if sub.Mode == Transaction {
		scope, err = e.tx.Begin(ctx)
		if err != nil {
			return model.Bundle{}, fmt.Errorf("open transaction scope: %w", err)
		}
		defer scope.Dispose()
		ctx = common.WithScope(ctx, scope)
	}

	// Sequential dispatch, group by group: later groups may depend on state
	// mutated by earlier ones. Ordering is the correctness mechanism here.
	for _, group := range groups {
		for _, entry := range group {
			if err := ctx.Err(); err != nil {
				log.Warn("submission canceled", zap.Int("entry", entry.Index))
				return model.Bundle{}, err
			}
			env := e.dispatcher.dispatch(ctx, entry, forced[entry.Index])
			asm.place(env)

			if sub.Mode == Transaction && env.isError() {
				log.Warn("transaction aborted",
					zap.Int("entry", entry.Index),
					zap.Int("status", env.status),
				)
				return model.Bundle{}, abortFrom(env)
			}
		}
	}

	if scope != nil {
		if err := scope.Commit(ctx); err != nil {
			log.Error("commit failed", zap.Error(err))
			return model.Bundle{}, fmt.Errorf("%w: %v", ErrTransactionFailed, err)
		}
	}
	log.Info("submission complete")
	return asm.bundle(), nil
}

func abortFrom(env envelope) *AbortError {
	abort := &AbortError{Index: env.index, Status: env.status}
	if env.entry.Response != nil && len(env.entry.Response.Outcome) > 0 {
		if o, ok := model.AsOutcome(env.entry.Response.Outcome); ok {
			abort.Outcome = o
			return abort
		}
	}
	abort.Outcome = model.NewOutcome(model.IssueProcessing, env.entry.Response.Status)
	return abort
}
