package backup

import (
	"errors"
	"fmt"
)

// BackupError represents errors that occur during backup operations
type BackupError struct {
	Type    BackupErrorType        `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *BackupError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause error
func (e *BackupError) Unwrap() error {
	return e.Cause
}

// BackupErrorType represents different types of backup errors
type BackupErrorType string

const (
	BackupErrorTypeResolution    BackupErrorType = "RESOLUTION_ERROR"
	BackupErrorTypeExport        BackupErrorType = "EXPORT_ERROR"
	BackupErrorTypeDownload      BackupErrorType = "DOWNLOAD_ERROR"
	BackupErrorTypeCleanup       BackupErrorType = "CLEANUP_ERROR"
	BackupErrorTypeAuditWrite    BackupErrorType = "AUDIT_WRITE_ERROR"
	BackupErrorTypeConfiguration BackupErrorType = "CONFIGURATION_ERROR"
	BackupErrorTypeValidation    BackupErrorType = "VALIDATION_ERROR"
	BackupErrorTypeStorage       BackupErrorType = "STORAGE_ERROR"
)

// NewBackupError creates a new BackupError
func NewBackupError(errorType BackupErrorType, message string, cause error) *BackupError {
	return &BackupError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (e *BackupError) WithContext(key string, value interface{}) *BackupError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Common error constructors
func NewResolutionError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeResolution, message, cause)
}

func NewExportError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeExport, message, cause)
}

func NewDownloadError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeDownload, message, cause)
}

func NewCleanupError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeCleanup, message, cause)
}

func NewAuditWriteError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeAuditWrite, message, cause)
}

func NewConfigurationError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeConfiguration, message, cause)
}

func NewValidationError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeValidation, message, cause)
}

func NewStorageError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeStorage, message, cause)
}

// IsErrorType reports whether err wraps a BackupError of the given type
func IsErrorType(err error, errorType BackupErrorType) bool {
	var backupErr *BackupError
	if errors.As(err, &backupErr) {
		return backupErr.Type == errorType
	}
	return false
}

// ValidationError represents validation-specific errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidationErrors represents a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	return fmt.Sprintf("%d validation errors: %s (and %d more)", len(e), e[0].Error(), len(e)-1)
}

// Add adds a validation error to the collection
func (e *ValidationErrors) Add(field, message string, value interface{}) {
	*e = append(*e, ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	})
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// merge appends err to e, flattening nested ValidationErrors
func (e *ValidationErrors) merge(section string, err error) {
	if err == nil {
		return
	}
	var nested ValidationErrors
	if errors.As(err, &nested) {
		*e = append(*e, nested...)
		return
	}
	e.Add(section, err.Error(), nil)
}
