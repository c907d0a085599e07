package order

import "errors"

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrEmptyDraft    = errors.New("order draft has no lines")
)
