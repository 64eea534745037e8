package domain

import (
	"errors"

	"github.com/alanyoungcy/polyrec/internal/vector"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrNotComputable       = errors.New("pnl not computable")
	ErrNoProfile           = errors.New("no interest profile producible")
	ErrDimensionMismatch   = vector.ErrDimensionMismatch
)
