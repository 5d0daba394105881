package moderation

import (
	"errors"

	"github.com/dukerupert/rewardledger/internal/model"
)

// Describe turns an error from the facade into text fit for a chat reply.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, model.ErrUnauthorized):
		return "This command is only available to administrators."
	case errors.Is(err, model.ErrBlocked):
		return "Your account has been blocked. Contact support if you think this is a mistake."
	case errors.Is(err, model.ErrBelowMinimum):
		return "Your balance is below the minimum withdrawal amount."
	case errors.Is(err, model.ErrInvalidDestination):
		return "That payout address is not valid. Use the form handle@provider."
	case errors.Is(err, model.ErrInsufficientBalance):
		return "Insufficient balance."
	case errors.Is(err, model.ErrInvalidReward):
		return "The reward must be a positive number of credits."
	case errors.Is(err, model.ErrTaskInactive):
		return "This task is no longer available."
	case errors.Is(err, model.ErrInvalidTransition):
		return "This request has already been processed."
	case errors.Is(err, model.ErrAlreadyExists):
		return "You already have a pending submission for this task."
	case errors.Is(err, model.ErrNotFound):
		return "Nothing matching was found. It may already have been processed."
	default:
		return "Something went wrong. Please try again later."
	}
}
