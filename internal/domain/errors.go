package domain

import "errors"

var (
	// ErrInvalidArgument marks commands rejected by local validation.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound marks commands referring to an absent record.
	ErrNotFound = errors.New("not found")
	// ErrChannelDisconnected marks commands whose outbound message could not be sent.
	ErrChannelDisconnected = errors.New("channel disconnected")
)
