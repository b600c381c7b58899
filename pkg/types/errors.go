package types

import (
	"errors"
	"fmt"
)

var (
	// ErrNoScannerAvailable is returned when a scan is requested but discovery
	// has no selected device.
	ErrNoScannerAvailable = errors.New("no scanner found")
	// ErrBusy is returned when a scan is requested while another is in flight.
	ErrBusy = errors.New("a scan is already in progress")
	// ErrCancelled reports a scan cancelled by the user or the platform. It is
	// a neutral outcome, not a failure.
	ErrCancelled = errors.New("scan cancelled")
	// ErrInvalidDevice is returned for an empty device identifier.
	ErrInvalidDevice = errors.New("invalid scanner device identifier")
	// ErrInvalidQuality is returned for a JPEG quality outside (0, 1].
	ErrInvalidQuality = errors.New("jpeg quality must be in (0, 1]")
)

type ErrEmpty struct {
	Field string
}

func (e ErrEmpty) Error() string {
	return fmt.Sprintf("%s cannot be empty", e.Field)
}

// ScanFailedError wraps any scan failure other than cancellation, such as the
// device disappearing mid-scan or an I/O error writing the scan.
type ScanFailedError struct {
	deviceID string
	err      error
}

func NewScanFailedError(deviceID string, err error) ScanFailedError {
	return ScanFailedError{deviceID: deviceID, err: err}
}

func (e ScanFailedError) Error() string {
	return fmt.Sprintf("scan on %q failed: %s", e.deviceID, e.err)
}

func (e ScanFailedError) Unwrap() error {
	return e.err
}

func (e ScanFailedError) DeviceID() string {
	return e.deviceID
}

// DecodeError indicates the converter could not decode its source image.
type DecodeError struct {
	path string
	err  error
}

func NewDecodeError(path string, err error) DecodeError {
	return DecodeError{path: path, err: err}
}

func (e DecodeError) Error() string {
	return fmt.Sprintf("decoding %s: %s", e.path, e.err)
}

func (e DecodeError) Unwrap() error {
	return e.err
}

func (e DecodeError) Path() string {
	return e.path
}

// EncodeError indicates the converter could not write its destination.
type EncodeError struct {
	path string
	err  error
}

func NewEncodeError(path string, err error) EncodeError {
	return EncodeError{path: path, err: err}
}

func (e EncodeError) Error() string {
	return fmt.Sprintf("encoding %s: %s", e.path, e.err)
}

func (e EncodeError) Unwrap() error {
	return e.err
}

func (e EncodeError) Path() string {
	return e.path
}

// StorageAccessDeniedError is returned when a folder access token no longer
// resolves, either because the grant was revoked or the folder is gone.
type StorageAccessDeniedError struct {
	token string
	err   error
}

func NewStorageAccessDeniedError(token string, err error) StorageAccessDeniedError {
	return StorageAccessDeniedError{token: token, err: err}
}

func (e StorageAccessDeniedError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("storage access denied for token %q", e.token)
	}
	return fmt.Sprintf("storage access denied for token %q: %s", e.token, e.err)
}

func (e StorageAccessDeniedError) Unwrap() error {
	return e.err
}

func (e StorageAccessDeniedError) Token() string {
	return e.token
}
