// Package cmdutil provides utility functions specifically for the rxscan CLI.
package cmdutil

import (
	"errors"
	"fmt"
	"os"

	"github.com/rxscan/rxscan/pkg/types"
)

func NewHandledCliError(err error) HandledCliError {
	return HandledCliError{err}
}

// HandledCliError is an error which has already been presented to the user. If
// a HandledCliError is returned from a command, the process should exit with
// a non-zero exit code, but no further error message should be printed.
type HandledCliError struct {
	error
}

func (e HandledCliError) Unwrap() error {
	return e.error
}

// TranslateError translates a technical error into a more user-friendly one.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}

	// If it's already a handled error, don't translate it again.
	var handled HandledCliError
	if errors.As(err, &handled) {
		return err
	}

	var (
		scanFailed types.ScanFailedError
		decodeErr  types.DecodeError
		encodeErr  types.EncodeError
		deniedErr  types.StorageAccessDeniedError
	)
	switch {
	case errors.Is(err, types.ErrNoScannerAvailable):
		return NewHandledCliError(errors.New("no scanner found: connect a scanner and try again, or list devices with `rxscan devices`"))
	case errors.Is(err, types.ErrBusy):
		return NewHandledCliError(errors.New("a scan is already in progress: wait for it to finish"))
	case errors.Is(err, types.ErrInvalidQuality):
		return NewHandledCliError(fmt.Errorf("invalid quality: %w", types.ErrInvalidQuality))
	case errors.As(err, &scanFailed):
		return NewHandledCliError(fmt.Errorf("scan failed on %s: %w", scanFailed.DeviceID(), errors.Unwrap(scanFailed)))
	case errors.As(err, &decodeErr):
		return NewHandledCliError(fmt.Errorf("could not read image %s: %w", decodeErr.Path(), errors.Unwrap(decodeErr)))
	case errors.As(err, &encodeErr):
		if errors.Is(err, os.ErrExist) {
			return NewHandledCliError(fmt.Errorf("%s already exists: choose another destination", encodeErr.Path()))
		}
		return NewHandledCliError(fmt.Errorf("could not write JPEG %s: %w", encodeErr.Path(), errors.Unwrap(encodeErr)))
	case errors.As(err, &deniedErr):
		return NewHandledCliError(errors.New("the default folder is no longer accessible: pick another with `rxscan folder set`"))
	}

	return err
}
