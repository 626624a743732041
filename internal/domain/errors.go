package domain

import "errors"

// Доменные ошибки. Handler переводит их в HTTP-статусы.
var (
	ErrDemonNotFound       = errors.New("demon not found")
	ErrInvalidDemonID      = errors.New("invalid demon id")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// ErrSnapshotNotFound: в хранилище нет сохраненного журнала для демона.
var ErrSnapshotNotFound = errors.New("movement snapshot not found")
