// Package referral holds the per-user referral state machine. It performs no
// I/O: callers apply the returned effects against storage and the bot.
package referral

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/C4T-BuT-S4D/invitegate/internal/models"
	"github.com/C4T-BuT-S4D/invitegate/internal/storage"
)

var ErrNotRegistered = errors.New("user is not registered")

type State int

const (
	StateNew State = iota
	StateAwaitingFollow
	StateEligible
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateAwaitingFollow:
		return "awaiting_follow"
	case StateEligible:
		return "eligible"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// StateOf derives the state from a ledger record; nil means no record.
func StateOf(u *models.User) State {
	switch {
	case u == nil:
		return StateNew
	case !u.ChannelsFollowed:
		return StateAwaitingFollow
	default:
		return StateEligible
	}
}

type Event int

const (
	EventStart Event = iota
	EventConfirmFollow
)

func (e Event) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventConfirmFollow:
		return "confirm_follow"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

type EffectKind int

const (
	EffectRegister EffectKind = iota
	EffectPromptFollow
	EffectMarkFollowed
	EffectCreditReferrer
	EffectShowMainMenu
)

func (k EffectKind) String() string {
	switch k {
	case EffectRegister:
		return "register"
	case EffectPromptFollow:
		return "prompt_follow"
	case EffectMarkFollowed:
		return "mark_followed"
	case EffectCreditReferrer:
		return "credit_referrer"
	case EffectShowMainMenu:
		return "show_main_menu"
	default:
		return fmt.Sprintf("EffectKind(%d)", int(k))
	}
}

type Effect struct {
	Kind EffectKind
	// UserID is set for EffectCreditReferrer.
	UserID int64
}

func (e Effect) String() string {
	if e.Kind == EffectCreditReferrer {
		return fmt.Sprintf("%s(%d)", e.Kind, e.UserID)
	}
	return e.Kind.String()
}

// Transition applies ev to a user in state from. referrerID is the user's
// stored referrer and only matters for the first follow confirmation.
func Transition(from State, ev Event, referrerID *int64) (State, []Effect, error) {
	switch ev {
	case EventStart:
		if from == StateNew {
			return StateAwaitingFollow, []Effect{{Kind: EffectRegister}, {Kind: EffectPromptFollow}}, nil
		}
		return from, []Effect{{Kind: EffectPromptFollow}}, nil

	case EventConfirmFollow:
		switch from {
		case StateNew:
			return from, nil, ErrNotRegistered
		case StateAwaitingFollow:
			effects := []Effect{{Kind: EffectMarkFollowed}}
			if referrerID != nil {
				effects = append(effects, Effect{Kind: EffectCreditReferrer, UserID: *referrerID})
			}
			effects = append(effects, Effect{Kind: EffectShowMainMenu})
			return StateEligible, effects, nil
		case StateEligible:
			return StateEligible, []Effect{{Kind: EffectShowMainMenu}}, nil
		}
	}

	return from, nil, fmt.Errorf("no transition from %s on %s", from, ev)
}

// ParseReferrer extracts a referrer id from the /start payload. Anything that
// is not a positive integer, or points at the user themselves, is ignored.
func ParseReferrer(args []string, self int64) *int64 {
	if len(args) == 0 {
		return nil
	}
	raw := args[0]
	if raw == "" {
		return nil
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return nil
		}
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	if id == 0 || id == self {
		return nil
	}
	return &id
}

type Progress struct {
	Invited  int
	Required int
}

func ProgressOf(u *models.User, required int) Progress {
	return Progress{Invited: u.InvitedCount, Required: required}
}

func (p Progress) Met() bool {
	return p.Invited >= p.Required
}

func (p Progress) Remaining() int {
	return max(0, p.Required-p.Invited)
}

// ShouldNotify reports whether a credit is the one that unlocked the referrer.
// Credits past the threshold after that return false.
func ShouldNotify(res storage.CreditResult) bool {
	return res.JustUnlocked
}
