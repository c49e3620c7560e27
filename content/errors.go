package content

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("record was modified concurrently")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrEmailTaken         = errors.New("email already in use")
	ErrLastAdmin          = errors.New("cannot remove the last active admin")
	ErrSelfDelete         = errors.New("cannot delete own account")
	ErrCategoryInUse      = errors.New("category has projects")
	ErrCategoryNotFound   = errors.New("category does not exist")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserInactive       = errors.New("user is inactive")
)

// ValidationError reports a rejected input field. Key names the message
// catalog entry describing the problem.
type ValidationError struct {
	Field string
	Key   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Key)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, key string) error {
	return &ValidationError{Field: field, Key: key}
}

// CategoryInUseError carries how many projects still reference a category.
type CategoryInUseError struct {
	Projects int
}

func (e *CategoryInUseError) Error() string {
	return "category has " + strconv.Itoa(e.Projects) + " project(s)"
}

func (e *CategoryInUseError) Is(target error) bool { return target == ErrCategoryInUse }
