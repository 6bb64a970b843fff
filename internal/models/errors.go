package models

import (
	"errors"
)

var (
	ErrNoSources        = errors.New("no sources to submit")
	ErrJobInFlight      = errors.New("a job is already in flight")
	ErrEmptyJobID       = errors.New("job id must not be empty")
	ErrSourceNotFound   = errors.New("source not found")
	ErrSourcesLocked    = errors.New("sources cannot be changed while a job is in flight")
	ErrUnsupportedInput = errors.New("input is neither a readable file nor an http(s) URL")
)
