package tagexpr

import (
	"errors"
	"fmt"
)

// ErrParse is matched by every error returned from Parse.
var ErrParse = errors.New("invalid tag expression")

// ParseError describes a malformed expression.
type ParseError struct {
	Expr string // the expression as given
	Pos  int    // byte offset of the offending token
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("tag expression %q: %s at offset %d", e.Expr, e.Msg, e.Pos)
}

// Is reports whether target is ErrParse.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}
