package model

import "errors"

var (
	ErrAlreadyExists       = errors.New("already exists")
	ErrNotFound            = errors.New("not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBelowMinimum        = errors.New("balance below minimum withdrawal")
	ErrInvalidDestination  = errors.New("invalid payout destination")
	ErrInvalidReward       = errors.New("reward must be positive")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrBlocked             = errors.New("account is blocked")
	ErrTaskInactive        = errors.New("task is not active")
)
