// Package trigger implements the booking notification rule engine.
//
// A booking's answers are canonicalised by Normalize, indexed once per
// booking by NewIndex and evaluated condition by condition by Evaluate.
// Match AND-combines a rule's answer and status conditions, ResolveRecipient
// picks the destination for a firing rule and Binder assembles the merge-tag
// data bag handed to the template renderer.
//
// Everything in this package is pure: no I/O, no clocks, no globals that
// change after init. Loading rules, answers and bookings and dispatching
// notifications is the job of the notification service.
package trigger
