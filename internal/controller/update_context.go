package controller

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v4"
)

// Conversation is the part of telebot.Context the controller talks to.
type Conversation interface {
	Update() telebot.Update
	Sender() *telebot.User
	Chat() *telebot.Chat
	Callback() *telebot.Callback
	Args() []string
	Send(what interface{}, opts ...interface{}) error
	Edit(what interface{}, opts ...interface{}) error
	Respond(resp ...*telebot.CallbackResponse) error
}

type UpdateContext struct {
	context.Context
	conv Conversation
	log  *logrus.Entry
}

func NewUpdateContext(c context.Context, conv Conversation) *UpdateContext {
	fields := logrus.Fields{
		"update_id":  conv.Update().ID,
		"request_id": uuid.New().String(),
	}
	if conv.Chat() != nil {
		fields["chat_id"] = conv.Chat().ID
	}
	if conv.Sender() != nil {
		fields["sender_id"] = conv.Sender().ID
		fields["sender_username"] = conv.Sender().Username
	}
	if conv.Callback() != nil {
		fields["callback_data"] = conv.Callback().Data
	}

	return &UpdateContext{
		Context: c,
		conv:    conv,
		log:     logrus.WithFields(fields),
	}
}

func (uc *UpdateContext) L() *logrus.Entry {
	return uc.log
}

func (uc *UpdateContext) Conv() Conversation {
	return uc.conv
}

func (uc *UpdateContext) Sender() *telebot.User {
	return uc.conv.Sender()
}
