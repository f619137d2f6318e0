package domain

import (
	"errors"
	"fmt"
)

var ErrInvalidFormat = errors.New("invalid format")

// InvalidGitRefError reports a git:// checkout expression that does not name
// a project and repository.
type InvalidGitRefError struct {
	Expression string
}

func (e *InvalidGitRefError) Error() string {
	return fmt.Sprintf("invalid git repository reference %q", e.Expression)
}

func (e *InvalidGitRefError) Unwrap() error { return ErrInvalidFormat }
