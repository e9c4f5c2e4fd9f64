package models

import "errors"

var (
	ErrInvalidPath      = errors.New("invalid path")
	ErrEmptyScan        = errors.New("no supported source files found")
	ErrFileRead         = errors.New("file read failed")
	ErrEmbeddingService = errors.New("embedding service error")
	ErrLLMService       = errors.New("llm service error")
	ErrInvalidConfig    = errors.New("invalid config")
)
