package grouping

import (
	"errors"
	"fmt"
)

// ValidationError возвращается, когда операция отклонена до изменения
// состояния и до обращения к бэкенду.
type ValidationError struct {
	Kind error
	Msg  string
}

func (e *ValidationError) Error() string {
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

func validationErrorf(kind error, format string, args ...any) error {
	return &ValidationError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Виды ValidationError.
var (
	ErrImmutableParticipant = errors.New("checked-in participant cannot be deleted")
	ErrDuplicateGroup       = errors.New("group already exists")
	ErrProtectedGroup       = errors.New("ungrouped bucket cannot be changed this way")
	ErrInvalidGroupCode     = errors.New("invalid group code")
	ErrInvalidFieldValue    = errors.New("invalid field value")
)

var (
	ErrParticipantNotFound = errors.New("participant not found")
	ErrGroupNotFound       = errors.New("group not found")
	ErrOperationInFlight   = errors.New("operation already in progress")
	ErrEngineClosed        = errors.New("engine is closed")
)

// IsValidation сообщает, получена ли err при локальной проверке.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
