// Package core provides the business logic for inventory spreadsheet ETL.
//
// The package holds all domain logic independent of any UI or transport
// layer. Web handlers, the CLI and tests use it without modification.
//
// # Architecture
//
// A job runs one uploaded file through these stages:
//
//   - Reading: [ReadTable] decodes .xlsx workbooks with excelize and delimited
//     text in any common encoding, then locates the header row.
//   - Mapping: [MapColumns] binds each known field to at most one header.
//     A file without a processor column is rejected.
//   - Row processing: a [RowProcessor] normalizes every mapped cell, runs the
//     [SchemaValidator] and the [BusinessValidator], scores the record and
//     sets its final state.
//   - Aggregation: [BuildReport] and [ComputeStats] summarize the batch.
//
// [Service] ties the stages together, limits concurrent jobs with a
// [JobLimiter] and keeps finished jobs queryable for a retention period.
//
// # Business Rules
//
// Rules are registered at init time with [RegisterBusinessRule]. Each rule
// is backed by a policy.Rule, so thresholds, severity, provider/site scope
// and auto-corrections can be overridden from a YAML rules file:
//
//	rules, err := core.LoadRuleSet("reglas.yaml")
//	svc := core.NewService(core.ServiceConfig{Rules: rules}, core.Dependencies{})
//
// # Job Lifecycle
//
// An [ETLJob] moves forward through INITIATED, PARSING, NORMALIZING,
// VALIDATING and SCORING and ends in COMPLETED, ERROR or CANCELLED. Row
// failures never abort a job; a file that cannot be read or mapped does.
// Progress is broadcast to subscribers via [Service.Subscribe].
//
// # Error Ledger
//
// Every finding is filed through an [ErrorTracker]. Entries with the same
// job, type, code, field and message collapse into one whose occurrence
// count grows; an entry seen more than once is recurrent.
//
// Technical errors are mapped to user-facing messages using [MapError].
// Each category has a code prefix for support reference:
//
//   - FILE: uploaded file problems
//   - MAP: column mapping
//   - JOB: job lifecycle
//   - DB: persistence
package core
