package domain

import "errors"

var (
	ErrInvalidMessage       = errors.New("invalid_message")
	ErrMessageTooLong       = errors.New("message_too_long")
	ErrInferenceUnavailable = errors.New("inference_unavailable")
	ErrInferenceRejected    = errors.New("inference_rejected")
	ErrEmptyReply           = errors.New("empty_reply")
)
