package util

import (
	"strconv"
)

// ParseID parses a positive numeric id from a path or query value.
func ParseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil || id == 0 {
		return 0, NewValidationError("invalid id: " + s)
	}
	return uint(id), nil
}

// ParseOptionalInt returns nil for an empty value.
func ParseOptionalInt(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, NewValidationError("invalid number: " + s)
	}
	return &v, nil
}

// ParseOptionalBool returns nil for an empty value.
func ParseOptionalBool(s string) (*bool, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return nil, NewValidationError("invalid boolean: " + s)
	}
	return &v, nil
}
