package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the coordinator and the executor. Each sentinel's
// text doubles as the user-visible error name.
var (
	ErrNoDeclarationFound         = errors.New("NoDeclarationFound")
	ErrInvalidImport              = errors.New("InvalidImport")
	ErrUnsupportedLibraryLanguage = errors.New("UnsupportedLibraryLanguage")
	ErrUnknownConnector           = errors.New("UnknownConnector")
	ErrUnsupportedLanguage        = errors.New("UnsupportedLanguage")
	ErrBusy                       = errors.New("Busy")
)

var named = []error{
	ErrNoDeclarationFound,
	ErrInvalidImport,
	ErrUnsupportedLibraryLanguage,
	ErrUnknownConnector,
	ErrUnsupportedLanguage,
	ErrBusy,
}

// ExecutionError wraps any failure raised while a script runs.
// Source is the rewritten script, kept for logs only.
type ExecutionError struct {
	Name    string `json:"name" msgpack:"name"`
	Message string `json:"message" msgpack:"message"`
	Stack   string `json:"stack" msgpack:"stack"`
	Source  string `json:"-" msgpack:"-"`
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// Notice is the {name, message} pair surfaced to the user for a fatal error.
type Notice struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Notification maps err onto a Notice. Stacks never travel this way.
func Notification(err error) Notice {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return Notice{Name: ee.Name, Message: ee.Message}
	}
	for _, s := range named {
		if errors.Is(err, s) {
			return Notice{Name: s.Error(), Message: err.Error()}
		}
	}
	return Notice{Name: "Error", Message: err.Error()}
}
