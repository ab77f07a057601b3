package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrTemporary    = errors.New("temporary failure")
	ErrUnavailable  = errors.New("dependency unavailable")
)

// Stable codes reported to API and MCP clients.
const (
	CodeInvalidInput = "invalid_input"
	CodeNotFound     = "not_found"
	CodeTemporary    = "temporary"
	CodeUnavailable  = "unavailable"
	CodeInternal     = "internal"
)

var errorCodes = []struct {
	kind error
	code string
}{
	{ErrInvalidInput, CodeInvalidInput},
	{ErrNotFound, CodeNotFound},
	{ErrTemporary, CodeTemporary},
	{ErrUnavailable, CodeUnavailable},
}

// WrapError tags err with kind and the failing operation.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// Code returns the code of the first kind err carries, in declaration order,
// or CodeInternal.
func Code(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.kind) {
			return c.code
		}
	}
	return CodeInternal
}
