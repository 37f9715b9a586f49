package model

import (
	"strings"
)

// ValidationError is returned before any write when a required field is missing or malformed.
type ValidationError struct {
	Field string
	Msg   string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

func Required(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return ValidationError{Field: field, Msg: "required"}
	}
	return nil
}

func ValidateDate(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	if _, ok := ParseDate(v, nil); !ok {
		return ValidationError{Field: field, Msg: "expected YYYY-MM-DD"}
	}
	return nil
}

func ValidatePriority(p Priority) error {
	if p == "" || p.Valid() {
		return nil
	}
	return ValidationError{Field: "priority", Msg: "must be one of high|medium|low"}
}

func ValidateStatus(s TaskStatus) error {
	switch s {
	case "", StatusOpen, StatusDone:
		return nil
	}
	return ValidationError{Field: "status", Msg: "must be open or done"}
}
