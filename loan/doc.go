// Package loan defines the shared domain model for the loan pipeline:
// applications, intake results, risk assessments, compliance reports,
// routing decisions, and escalation records.
//
// It is the bottom layer of the module and depends only on types; every
// stage package (intake, risk, compliance, decision, escalation,
// pipeline) builds on these definitions so that the per-application
// audit record has one vocabulary end to end.
package loan
