package domain

import "errors"

var (
	ErrInvalidQuantity  = errors.New("invalid_quantity")
	ErrInvalidSessionID = errors.New("invalid_session_id")
	ErrUpstream         = errors.New("upstream_error")
	ErrUpstreamOpen     = errors.New("upstream_unavailable")
)
