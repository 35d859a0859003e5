package controller

import (
	"errors"
	"strings"

	"gopkg.in/telebot.v4"
)

// Descriptions Telegram has used for the same conditions; matched only when
// the error did not come back as one of telebot's sentinels.
const (
	staleInteractionText = "query is too old"
	noOpEditText         = "message is not modified"
)

func descriptionContains(err error, text string) bool {
	var tgErr *telebot.Error
	if errors.As(err, &tgErr) {
		return strings.Contains(strings.ToLower(tgErr.Description), text)
	}
	return false
}

// IsStaleInteraction reports an acknowledgment of an expired button press.
func IsStaleInteraction(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, telebot.ErrQueryTooOld) || descriptionContains(err, staleInteractionText)
}

// IsNoOpEdit reports an edit that would leave the message unchanged.
func IsNoOpEdit(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, telebot.ErrMessageNotModified) ||
		errors.Is(err, telebot.ErrSameMessageContent) ||
		descriptionContains(err, noOpEditText)
}
