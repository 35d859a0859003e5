package controller

import (
	"strings"
)

type CallbackAction string

const (
	CallbackActionChannelsFollowed CallbackAction = "channels_followed"
	CallbackActionProfile          CallbackAction = "profile"
	CallbackActionReferralLink     CallbackAction = "referral_link"
	CallbackActionBackToMain       CallbackAction = "back_to_main"
)

func (a CallbackAction) String() string {
	return string(a)
}

// DataMatches accepts both raw callback data and telebot's "\f<unique>|<payload>" form.
func (a CallbackAction) DataMatches(data string) bool {
	if data == a.String() {
		return true
	}
	cringePrefix := "\f" + a.String()
	return data == cringePrefix || strings.HasPrefix(data, cringePrefix+"|")
}

var callbackActions = []CallbackAction{
	CallbackActionChannelsFollowed,
	CallbackActionProfile,
	CallbackActionReferralLink,
	CallbackActionBackToMain,
}

func parseCallbackAction(unique, data string) (CallbackAction, bool) {
	for _, a := range callbackActions {
		if unique == a.String() || a.DataMatches(data) {
			return a, true
		}
	}
	return "", false
}
