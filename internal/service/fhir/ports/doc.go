// Package ports defines the contracts between the FHIR application core and
// its infrastructure adapters.
//
//   - [Store]: resource persistence with optimistic concurrency
//   - [SearchService]: resolves query predicates to matching resources
//   - [Pipeline]: in-process dispatch through the server's own request routing
//   - [TransactionalResource] / [Scope]: atomic commit for transaction bundles
//   - [IDProvider]: resource id assignment
//   - [AuditSink]: fire-and-forget audit records
//
// The application layer depends only on these interfaces; concrete
// implementations live under internal/service/fhir/adapters.
package ports
