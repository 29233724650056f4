package notify

import "errors"

var (
	ErrTemplateNotFound = errors.New("notification template not found")
	ErrNoRecipients     = errors.New("message has no recipients")
	ErrNotConfigured    = errors.New("transport not configured")
)
