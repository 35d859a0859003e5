package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/C4T-BuT-S4D/invitegate/internal/config"
	"github.com/C4T-BuT-S4D/invitegate/internal/models"
	"github.com/C4T-BuT-S4D/invitegate/internal/referral"
	"github.com/C4T-BuT-S4D/invitegate/internal/storage"
	"github.com/C4T-BuT-S4D/invitegate/internal/throttle"
	"gopkg.in/telebot.v4"
)

// Notifier sends messages outside of the current update, e.g. to a referrer.
type Notifier interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

type Controller struct {
	config  *config.Config
	storage *storage.Storage
	bot     Notifier
	limiter throttle.Limiter
}

func New(cfg *config.Config, storage *storage.Storage, bot Notifier, limiter throttle.Limiter) *Controller {
	if limiter == nil {
		limiter = throttle.Nop{}
	}
	return &Controller{
		config:  cfg,
		storage: storage,
		bot:     bot,
		limiter: limiter,
	}
}

// Register wires the handlers into bot.
func (m *Controller) Register(bot *telebot.Bot) {
	bot.Handle("/start", func(c telebot.Context) error { return m.HandleStart(c) })
	bot.Handle("/check", func(c telebot.Context) error { return m.HandleCheck(c) })
	bot.Handle(telebot.OnCallback, func(c telebot.Context) error { return m.HandleCallback(c) })
}

func (m *Controller) Commands() []telebot.Command {
	return []telebot.Command{
		{Text: "start", Description: "Get your referral link"},
		{Text: "check", Description: "Check your invite progress"},
	}
}

func (m *Controller) run(conv Conversation, name string, fn func(uc *UpdateContext) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.BotHandleTimeout)
	defer cancel()

	uc := NewUpdateContext(ctx, conv)
	uc.L().Debugf("Received %s", name)

	if conv.Sender() == nil {
		uc.L().Debugf("ignoring %s without sender", name)
	} else if err := fn(uc); err != nil {
		return fmt.Errorf("handling %s: %w", name, err)
	}

	// Only handled updates move the offset, so a failed one is retried after a restart.
	if err := m.storage.UpdateLastUpdate(uc, conv.Update().ID); err != nil {
		uc.L().Errorf("failed to update last update: %v", err)
	}
	return nil
}

func (m *Controller) HandleStart(conv Conversation) error {
	return m.run(conv, "start", m.start)
}

func (m *Controller) HandleCheck(conv Conversation) error {
	return m.run(conv, "check", m.check)
}

func (m *Controller) HandleCallback(conv Conversation) error {
	return m.run(conv, "callback", m.callback)
}

// lookup returns nil without error for unregistered users.
func (m *Controller) lookup(uc *UpdateContext) (*models.User, error) {
	user, err := m.storage.GetStatus(uc, uc.Sender().ID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return user, nil
}

func (m *Controller) start(uc *UpdateContext) error {
	sender := uc.Sender()

	user, err := m.lookup(uc)
	if err != nil {
		return err
	}

	next, effects, err := referral.Transition(referral.StateOf(user), referral.EventStart, nil)
	if err != nil {
		return fmt.Errorf("applying start: %w", err)
	}

	for _, effect := range effects {
		switch effect.Kind {
		case referral.EffectRegister:
			referrerID := referral.ParseReferrer(uc.Conv().Args(), sender.ID)
			stored, created, err := m.storage.GetOrCreateUser(uc, sender.ID, sender.Username, sender.FirstName, referrerID)
			if err != nil {
				return fmt.Errorf("registering user: %w", err)
			}
			if created {
				uc.L().Infof("Registered %v", stored)
			}

		case referral.EffectPromptFollow:
			if err := uc.Conv().Send(textWelcome, m.followPrompt()); err != nil {
				return fmt.Errorf("sending follow prompt: %w", err)
			}
		}
	}

	uc.L().Debugf("User %d is now %s", sender.ID, next)
	return nil
}

func (m *Controller) callback(uc *UpdateContext) error {
	sender := uc.Sender()

	allowed, err := m.limiter.Allow(uc, sender.ID)
	if err != nil {
		uc.L().Warnf("throttle check failed, letting the press through: %v", err)
	}
	if !allowed {
		uc.L().Infof("User %d is throttled", sender.ID)
		return m.acknowledge(uc, &telebot.CallbackResponse{Text: textThrottled, ShowAlert: true})
	}

	if err := m.acknowledge(uc); err != nil {
		return err
	}

	var unique, data string
	if cb := uc.Conv().Callback(); cb != nil {
		unique, data = cb.Unique, cb.Data
	}

	action, ok := parseCallbackAction(unique, data)
	if !ok {
		uc.L().Debugf("ignoring unknown callback %q", data)
		return nil
	}

	switch action {
	case CallbackActionChannelsFollowed:
		return m.channelsFollowed(uc)
	case CallbackActionProfile:
		return m.profile(uc)
	case CallbackActionReferralLink:
		return m.referralLinkScreen(uc)
	case CallbackActionBackToMain:
		return m.showMainMenu(uc)
	}
	return nil
}

// acknowledge answers the callback; expired interactions are not an error.
func (m *Controller) acknowledge(uc *UpdateContext, resp ...*telebot.CallbackResponse) error {
	if err := uc.Conv().Respond(resp...); err != nil {
		if IsStaleInteraction(err) {
			uc.L().Warnf("Received an expired callback query, proceeding without answering: %v", err)
			return nil
		}
		return fmt.Errorf("answering callback: %w", err)
	}
	return nil
}

// edit replaces the originating message; an unchanged message is not an error.
func (m *Controller) edit(uc *UpdateContext, text string, markup *telebot.ReplyMarkup) error {
	var err error
	if markup != nil {
		err = uc.Conv().Edit(text, markup)
	} else {
		err = uc.Conv().Edit(text)
	}
	if err != nil {
		if IsNoOpEdit(err) {
			uc.L().Debugf("message not modified")
			return nil
		}
		return fmt.Errorf("editing message: %w", err)
	}
	return nil
}

func (m *Controller) channelsFollowed(uc *UpdateContext) error {
	sender := uc.Sender()

	user, err := m.lookup(uc)
	if err != nil {
		return err
	}

	var referrerID *int64
	if user != nil {
		referrerID = user.ReferrerID
	}

	_, effects, err := referral.Transition(referral.StateOf(user), referral.EventConfirmFollow, referrerID)
	if errors.Is(err, referral.ErrNotRegistered) {
		return m.edit(uc, textUserNotFound, nil)
	}
	if err != nil {
		return fmt.Errorf("applying follow confirmation: %w", err)
	}

	var (
		unlocked []int64
		showMenu bool
	)
	if err := m.storage.Transaction(uc, func(tx *storage.Storage) error {
		unlocked, showMenu = nil, false
		first := false
		for _, effect := range effects {
			switch effect.Kind {
			case referral.EffectMarkFollowed:
				if first, err = tx.MarkFollowed(uc, sender.ID); err != nil {
					return fmt.Errorf("marking followed: %w", err)
				}
				if !first {
					uc.L().Infof("User %d confirmed follow concurrently, not crediting twice", sender.ID)
				}

			case referral.EffectCreditReferrer:
				if !first {
					continue
				}
				res, err := tx.IncrementInvite(uc, effect.UserID, m.config.RequiredInvites)
				if errors.Is(err, storage.ErrNotFound) {
					uc.L().Warnf("Referrer %d of user %d is not registered, no credit given", effect.UserID, sender.ID)
					continue
				}
				if err != nil {
					return fmt.Errorf("crediting referrer: %w", err)
				}
				uc.L().Infof("Referrer %d credited for user %d, now has %d invites", effect.UserID, sender.ID, res.InvitedCount)
				if referral.ShouldNotify(*res) {
					unlocked = append(unlocked, effect.UserID)
				}

			case referral.EffectShowMainMenu:
				showMenu = true
			}
		}
		return nil
	}); err != nil {
		return err
	}

	// Side effects outside the database wait for the commit.
	for _, referrer := range unlocked {
		m.notifyUnlocked(uc, referrer)
	}
	if showMenu {
		return m.showMainMenu(uc)
	}
	return nil
}

// notifyUnlocked is best effort: the confirming user's flow must not fail
// because the referrer blocked the bot.
func (m *Controller) notifyUnlocked(uc *UpdateContext, referrerID int64) {
	if _, err := m.bot.Send(&telebot.User{ID: referrerID}, m.unlockMessage()); err != nil {
		uc.L().Errorf("Failed to send channel link to user %d: %v", referrerID, err)
		return
	}
	uc.L().Infof("Sent channel link to user %d", referrerID)
}

func (m *Controller) showMainMenu(uc *UpdateContext) error {
	sender := uc.Sender()
	text, markup := m.mainMenu(displayName(sender), sender.ID)
	return m.edit(uc, text, markup)
}

func (m *Controller) profile(uc *UpdateContext) error {
	user, err := m.lookup(uc)
	if err != nil {
		return err
	}
	if user == nil {
		return m.edit(uc, textUserNotFound, nil)
	}
	return m.edit(uc, m.profileView(user, displayName(uc.Sender())), backMarkup())
}

func (m *Controller) referralLinkScreen(uc *UpdateContext) error {
	user, err := m.lookup(uc)
	if err != nil {
		return err
	}
	if user == nil {
		return m.edit(uc, textUserNotFound, nil)
	}
	if !user.ChannelsFollowed {
		return m.edit(uc, textFollowFirstForLink, nil)
	}
	text, markup := m.referralLinkView(user.UserID)
	return m.edit(uc, text, markup)
}

func (m *Controller) check(uc *UpdateContext) error {
	user, err := m.lookup(uc)
	if err != nil {
		return err
	}

	text := textUserNotFound
	if user != nil {
		text = m.checkView(user)
	}
	if err := uc.Conv().Send(text); err != nil {
		return fmt.Errorf("sending status: %w", err)
	}
	return nil
}
