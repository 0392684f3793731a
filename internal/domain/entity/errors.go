package entity

import "errors"

var (
	// ErrEmptySessionID rejects audit rows without a session.
	ErrEmptySessionID = errors.New("empty session id")
)
