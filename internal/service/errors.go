package service

import (
	"errors"
	"strings"
)

var (
	// ErrMissingCredential is returned when a request carries no API key.
	ErrMissingCredential = errors.New("missing credential")
	// ErrInvalidCredential covers wrong, revoked and malformed keys alike.
	ErrInvalidCredential = errors.New("invalid or inactive credential")
	// ErrInvalidSession is returned for bad or expired session tokens.
	ErrInvalidSession = errors.New("invalid session token")
	// ErrProfileNotFound is returned when the calling agent has no profile.
	ErrProfileNotFound = errors.New("agent profile not found")
)

// ValidationError lists request fields that are missing or malformed.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing or invalid fields: " + strings.Join(e.Fields, ", ")
}

// fieldCheck accumulates failed field checks in order.
type fieldCheck []string

func (c *fieldCheck) require(ok bool, field string) {
	if !ok {
		*c = append(*c, field)
	}
}

func (c fieldCheck) err() error {
	if len(c) == 0 {
		return nil
	}
	return &ValidationError{Fields: c}
}
