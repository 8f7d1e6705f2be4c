package service

import (
	"errors"
	"fmt"

	"github.com/stemsi/secureeval-backend/internal/repository"
)

// Engine errors. Handlers map them onto HTTP status codes.
var (
	ErrSessionNotFound         = errors.New("session not found")
	ErrQuestionSetNotFound     = errors.New("question set not found")
	ErrReportNotGenerated      = errors.New("integrity report not generated yet")
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	ErrInvalidInput            = errors.New("invalid input")
	ErrStorageFailure          = errors.New("storage failure")
	ErrSubmissionInProgress    = errors.New("submission is being graded")
	ErrNotSessionOwner         = errors.New("session belongs to another student")
	ErrExtractionFailed        = errors.New("question extraction failed")
	ErrUnsupportedFileType     = errors.New("unsupported file type")
	ErrFileTooLarge            = errors.New("file too large")
)

// storageError translates a store error for the given entity.
func storageError(op string, err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return notFound
	}
	return fmt.Errorf("%w: %s: %w", ErrStorageFailure, op, err)
}

func sessionError(op string, err error) error {
	return storageError(op, err, ErrSessionNotFound)
}

func questionSetError(op string, err error) error {
	return storageError(op, err, ErrQuestionSetNotFound)
}
