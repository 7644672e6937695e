package domain

import "errors"

var (
	ErrInvalidSignature   = errors.New("invalid_signature")
	ErrGatewayUnavailable = errors.New("gateway_unavailable")
	ErrGatewayRejected    = errors.New("gateway_rejected")
	ErrInvalidConfig      = errors.New("invalid_payment_config")
	ErrInvalidProvider    = errors.New("invalid_provider")
	ErrProviderNotFound   = errors.New("provider_not_found")
	ErrInvalidPayload     = errors.New("invalid_payload")
	ErrInvalidEvent       = errors.New("invalid_event")
	ErrInvalidRequest     = errors.New("invalid_request")
)
