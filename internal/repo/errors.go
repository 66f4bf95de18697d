package repo

import "errors"

var (
	ErrNotFound     = errors.New("credential not found")
	ErrBadKey       = errors.New("bad order key")
	ErrInconsistent = errors.New("inconsistent data")
)

const (
	maxKeyLen        = 100
	defaultBatchSize = 500
	defaultCredsCap  = 16
)
