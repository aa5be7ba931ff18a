package model

import "errors"

var (
	ErrProfileNotFound    = errors.New("profile not found")
	ErrMessageNotFound    = errors.New("message not found")
	ErrInvalidPersona     = errors.New("invalid persona")
	ErrGenerativeCall     = errors.New("generative call failed")
	ErrContextInvalidated = errors.New("conversation context invalidated")
	ErrPersistence        = errors.New("persistence failed")
)
