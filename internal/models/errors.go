package models

import "errors"

var (
	// ErrOCRUnavailable means OCR was required but no engine is configured or installed.
	ErrOCRUnavailable = errors.New("ocr engine unavailable")

	// ErrDimensionMismatch means two components disagree on the embedding dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is returned when a scope holds no data.
	ErrNotFound = errors.New("not found")

	// ErrStoreUnavailable wraps connectivity failures of the vector or graph store.
	ErrStoreUnavailable = errors.New("store unavailable")

	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	ErrUnsupportedBackend = errors.New("unsupported backend")
)
