package controller

import (
	"fmt"
	"strings"

	"github.com/C4T-BuT-S4D/invitegate/internal/models"
	"github.com/C4T-BuT-S4D/invitegate/internal/referral"
	"gopkg.in/telebot.v4"
)

const (
	textWelcome            = "Welcome! Please follow these channels to continue:"
	textUserNotFound       = "User not found. Please start the bot again."
	textFollowFirst        = "Please follow the required channels first."
	textFollowFirstForLink = "Please follow the required channels first to get your referral link."
	textThrottled          = "Too many requests, please slow down."
	textPitch              = "Congratulations on your first step towards a bright future!\n" +
		"Now, invite your friends to get your link to our private channel where we have lessons together."
)

func (m *Controller) referralLink(userID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%d", m.config.BotUsername, userID)
}

func channelURL(handle string) string {
	return "https://t.me/" + strings.TrimPrefix(handle, "@")
}

func (m *Controller) followPrompt() *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}
	rows := make([]telebot.Row, 0, len(m.config.RequiredChannels)+1)
	for _, ch := range m.config.RequiredChannels {
		rows = append(rows, markup.Row(markup.URL("Follow "+ch, channelURL(ch))))
	}
	rows = append(rows, markup.Row(markup.Data("I've followed all channels", CallbackActionChannelsFollowed.String())))
	markup.Inline(rows...)
	return markup
}

func (m *Controller) mainMenu(name string, userID int64) (string, *telebot.ReplyMarkup) {
	link := m.referralLink(userID)
	text := fmt.Sprintf(
		"Hello %s! Congratulations on your first step towards a bright future!\n\n"+
			"Now, invite your friends to get your link to our private channel where we have lessons together.\n\n"+
			"Your referral link: %s",
		name,
		link,
	)

	markup := &telebot.ReplyMarkup{}
	markup.Inline(
		markup.Row(
			markup.Data("Profile", CallbackActionProfile.String()),
			markup.Data("Referral Link", CallbackActionReferralLink.String()),
		),
		markup.Row(markup.Query("Invite Friends", shareText(link))),
	)
	return text, markup
}

func shareText(link string) string {
	return textPitch + "\n\n" + link
}

func backMarkup() *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}
	markup.Inline(markup.Row(markup.Data("Back", CallbackActionBackToMain.String())))
	return markup
}

func (m *Controller) profileView(user *models.User, name string) string {
	if !user.ChannelsFollowed {
		return textFollowFirst
	}

	progress := referral.ProgressOf(user, m.config.RequiredInvites)
	text := fmt.Sprintf("Name: %s\nInvited friends: %d\n", name, user.InvitedCount)
	if progress.Met() || user.Unlocked {
		return text + fmt.Sprintf("\nCongratulations! You can join the channel via this link: %s", m.config.GatedChannelURL)
	}
	return text + fmt.Sprintf("\nFriends to invite for channel access: %d", progress.Remaining())
}

func (m *Controller) referralLinkView(userID int64) (string, *telebot.ReplyMarkup) {
	link := m.referralLink(userID)

	markup := &telebot.ReplyMarkup{}
	markup.Inline(
		markup.Row(markup.Query("Invite Friends", shareText(link))),
		markup.Row(markup.Data("Back", CallbackActionBackToMain.String())),
	)
	return fmt.Sprintf("Your referral link:\n\n%s", shareText(link)), markup
}

func (m *Controller) checkView(user *models.User) string {
	if !user.ChannelsFollowed {
		return textFollowFirst
	}

	progress := referral.ProgressOf(user, m.config.RequiredInvites)
	if progress.Met() || user.Unlocked {
		return fmt.Sprintf(
			"You have successfully invited %d friends. Now you can join the channel via this link: %s",
			m.config.RequiredInvites,
			m.config.GatedChannelURL,
		)
	}
	return fmt.Sprintf("You need to invite %d more friends to get access to the channel.", progress.Remaining())
}

func (m *Controller) unlockMessage() string {
	return fmt.Sprintf(
		"Congratulations! You have invited %d friends. You can now join the channel via this link: %s",
		m.config.RequiredInvites,
		m.config.GatedChannelURL,
	)
}

func displayName(u *telebot.User) string {
	switch {
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return u.Username
	default:
		return fmt.Sprintf("user %d", u.ID)
	}
}
