package domain

import "errors"

var (
	ErrEmailNotFound    = errors.New("email not found")
	ErrTagNotFound      = errors.New("tag not found")
	ErrModelUnavailable = errors.New("model server unavailable")
	ErrParse            = errors.New("email parse failed")
	ErrUnsupportedFile  = errors.New("unsupported file type")
	ErrBatchRunning     = errors.New("a batch is already running")
	ErrBatchNotFound    = errors.New("batch not found")
)
