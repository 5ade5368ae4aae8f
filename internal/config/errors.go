package config

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue/token"
)

// Error codes
const (
	ErrCodeEnv     = "CONFIG_ENV"
	ErrCodeRead    = "CONFIG_READ"
	ErrCodeSchema  = "CONFIG_SCHEMA"
	ErrCodeInvalid = "CONFIG_INVALID"
)

// Error is a configuration failure. Pos is set for errors inside a CUE
// run file.
type Error struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsConfigError reports whether err is a configuration Error.
func IsConfigError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}
