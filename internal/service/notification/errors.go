package notification

import "errors"

// Sentinel errors for the notification service layer.
var (
	ErrRuleNotFound     = errors.New("trigger rule not found")
	ErrBookingNotFound  = errors.New("booking not found")
	ErrQuestionNotFound = errors.New("question not found")
)
