package common

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the loader, encoder and viewer
var (
	ErrNoExif           = errors.New("no EXIF data present")
	ErrNegativeRational = errors.New("negative value cannot be stored as an unsigned rational")
	ErrMissingField     = errors.New("field missing")
	ErrMalformedField   = errors.New("field malformed")
)

// CSVReadError reports a metadata CSV that could not be opened or parsed
type CSVReadError struct {
	Path string
	Err  error
}

func (e *CSVReadError) Error() string {
	return fmt.Sprintf("CSV read error: %s: %v", e.Path, e.Err)
}

func (e *CSVReadError) Unwrap() error { return e.Err }

// ImageOpenError reports a source image that is missing, unreadable or corrupt
type ImageOpenError struct {
	Path string
	Err  error
}

func (e *ImageOpenError) Error() string {
	return fmt.Sprintf("Image open error: %s: %v", e.Path, e.Err)
}

func (e *ImageOpenError) Unwrap() error { return e.Err }

// ImageWriteError reports an output path that could not be written
type ImageWriteError struct {
	Path string
	Err  error
}

func (e *ImageWriteError) Error() string {
	return fmt.Sprintf("Image write error: %s: %v", e.Path, e.Err)
}

func (e *ImageWriteError) Unwrap() error { return e.Err }

// EncodeError reports a failure to build or serialize the EXIF blob.
// Tag is empty when the failure is not tied to a single tag.
type EncodeError struct {
	Tag string
	Err error
}

func (e *EncodeError) Error() string {
	if e.Tag == "" {
		return fmt.Sprintf("EXIF encode error: %v", e.Err)
	}
	return fmt.Sprintf("EXIF encode error: %s: %v", e.Tag, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// ViewError reports an image whose EXIF could not be read back.
// A file without EXIF is not a ViewError.
type ViewError struct {
	Path string
	Err  error
}

func (e *ViewError) Error() string {
	return fmt.Sprintf("EXIF view error: %s: %v", e.Path, e.Err)
}

func (e *ViewError) Unwrap() error { return e.Err }

// FieldError reports a metadata field rejected under the fail numeric policy
type FieldError struct {
	Key   string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("Field error: %s: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("Field error: %s=%q: %v", e.Key, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// CoordinateError reports a coordinate rejected by strict checking
type CoordinateError struct {
	Axis    string
	Value   float64
	Ref     string
	Message string
}

func (e *CoordinateError) Error() string {
	return fmt.Sprintf("Coordinate error: %s %v%s: %s", e.Axis, e.Value, e.Ref, e.Message)
}

// ConfigError reports an invalid configuration value
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("Configuration error: %s", e.Message)
}

// NewConfigError creates a configuration error
func NewConfigError(message string) error {
	return &ConfigError{Message: message}
}

// Stage names the pipeline stage an error belongs to, or "" if unknown
func Stage(err error) string {
	var (
		csvErr   *CSVReadError
		openErr  *ImageOpenError
		writeErr *ImageWriteError
		encErr   *EncodeError
		viewErr  *ViewError
		fieldErr *FieldError
		coordErr *CoordinateError
		cfgErr   *ConfigError
	)
	switch {
	case errors.As(err, &csvErr):
		return "load"
	case errors.As(err, &fieldErr), errors.As(err, &coordErr):
		return "validate"
	case errors.As(err, &openErr), errors.As(err, &writeErr), errors.As(err, &encErr):
		return "encode"
	case errors.As(err, &viewErr):
		return "view"
	case errors.As(err, &cfgErr):
		return "config"
	}
	return ""
}
