package service

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrConversationClosed = errors.New("conversation is closed")
	ErrDuplicateReport    = errors.New("listing already reported")
)
