package service

import (
	"errors"

	"github.com/mauzec/taskindex/internal/core"
)

var errNoRecord = errors.New("remote returned no record")

func tryAsAppError(err error, op string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := core.AsAppError(err); ok {
		return appErr.WithOper(op)
	}
	return internalError(op, "unexpected error", err)
}

// remoteError reports any failed remote call as RemoteUnavailable, keeping
// the cause wrapped.
func remoteError(op, msg string, err error) error {
	return core.NewRemoteUnavailableError(msg, err, op)
}

func validationError(op, msg string) error {
	return core.NewAppErrorBuilder(core.ErrorCodeValidation).
		Message(msg).
		SafeToShow(true).
		Oper(op).
		Build()
}

func internalError(op, msg string, err error) error {
	return core.NewAppErrorBuilder(core.ErrorCodeInternal).
		Message(msg).
		Err(err).
		SafeToShow(false).
		Oper(op).
		Build()
}

func publicMessage(err error) string {
	if appErr, ok := core.AsAppError(err); ok {
		return appErr.PublicMessage()
	}
	return err.Error()
}
