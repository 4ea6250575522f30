package database

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrSlotTaken     = errors.New("time slot is no longer available")
	ErrInvalidStatus = errors.New("invalid appointment status")
)
