// Package notification runs booking notification triggers.
//
// For one booking event it loads every enabled rule of the event's trigger
// type, matches each rule against the booking's answers and status, and for
// every rule that fires resolves the recipient, binds the merge tags,
// dispatches through the injected Notifier and records the fire. Each rule
// is isolated: a failure on one rule becomes a failed FireResult and the
// remaining rules still run. Only store failures while loading abort a pass.
//
// The service also owns rule administration (validated create/update) and
// dry-run diagnostics. It depends only on the interfaces in repository.go
// and never imports net/http or database/sql.
package notification
