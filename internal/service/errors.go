package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotFound       = errors.New("not found")
	ErrInvalidState   = errors.New("invalid or expired oauth state")
	ErrChannelBlocked = errors.New("channel is not active")
	ErrPostImmutable  = errors.New("post is published and can no longer be edited")
	ErrNotCancellable = errors.New("post can no longer be cancelled")
	ErrNotPublished   = errors.New("schedule is not published")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
