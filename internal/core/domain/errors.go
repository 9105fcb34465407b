package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEvidenceNotFound = errors.New("evidence not found")
	ErrVaultNotFound    = errors.New("vault not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrTemporary        = errors.New("temporary failure")
	ErrStillProcessing  = errors.New("document still processing")
	ErrMissingAPIKey    = errors.New("vault api key is not configured")
	ErrRemote           = errors.New("remote collaborator failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// StillProcessingError is returned when classification was requested before the
// remote pipeline finished. It is a retry-later signal, not a failure.
type StillProcessingError struct {
	Status RemoteStatus
}

func (e *StillProcessingError) Error() string {
	return fmt.Sprintf("document still processing: remote status %s", e.Status)
}

func (e *StillProcessingError) Is(target error) bool {
	return target == ErrStillProcessing
}

func NewStillProcessing(status RemoteStatus) error {
	return &StillProcessingError{Status: status}
}

// StillProcessingStatus extracts the remote status hint from err, if any.
func StillProcessingStatus(err error) (RemoteStatus, bool) {
	var sp *StillProcessingError
	if errors.As(err, &sp) {
		return sp.Status, true
	}
	return "", false
}
