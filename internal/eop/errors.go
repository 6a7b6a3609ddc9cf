package eop

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable is returned when a bulletin cannot be retrieved
	// (transport failure, non-2xx status, timeout, missing file).
	ErrSourceUnavailable = errors.New("eop: source unavailable")

	// ErrParse is matched by every *ParseError.
	ErrParse = errors.New("eop: malformed bulletin")

	ErrUnknownSource = errors.New("eop: unknown source")
	ErrUnknownFormat = errors.New("eop: unknown bulletin format")

	// ErrInvalidMJD rejects MJDs that are not finite or fall outside years 0 to 9999.
	ErrInvalidMJD = errors.New("eop: mjd out of range")
)

// ParseError reports a bulletin row that could not be used. Line is 1-based;
// zero means the error concerns the bulletin as a whole.
type ParseError struct {
	Line  int
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	switch {
	case e.Line == 0:
		return fmt.Sprintf("eop: parse: %v", e.Err)
	case e.Field == "":
		return fmt.Sprintf("eop: parse line %d: %v", e.Line, e.Err)
	default:
		return fmt.Sprintf("eop: parse line %d field %s: %v", e.Line, e.Field, e.Err)
	}
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }
