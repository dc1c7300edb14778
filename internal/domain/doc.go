// Package domain defines the core business types for the outreach engine:
// jobs and their payloads, campaigns, leads, inboxes and workspace settings.
//
// Types in this package are value objects plus the pure rules that govern
// them (job state transitions, the warmup ramp, auto-pause thresholds).
// Nothing here touches a database, the network or the clock; callers pass
// "now" in explicitly.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON/DB tags are allowed (they're metadata, not behavior)
//   - Validation methods are allowed (they're pure functions on the type)
//   - Constants and enums belong here
package domain
