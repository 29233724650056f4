// Package notify turns a fired trigger into a delivered message.
//
// EmailNotifier implements the notification service's Notifier: it loads
// the template named by the rule, renders subject and bodies with Liquid
// against the merge-tag bag, and hands the message to a Sender. Senders
// exist for AWS SES, an outbound webhook and the structured log.
package notify
