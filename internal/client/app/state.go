package app

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/zenite-os/zenite/internal/character"
	"github.com/zenite-os/zenite/internal/client/dicelog"
	"github.com/zenite-os/zenite/internal/client/realtime"
	apperrors "github.com/zenite-os/zenite/internal/platform/errors"
	"github.com/zenite-os/zenite/internal/router"
	"github.com/zenite-os/zenite/internal/services/netlink/contract"
)

// SessionState is the signed-in identity.
type SessionState struct {
	UserID   string
	Username string
	Guest    bool
	Token    string
}

// SignedIn reports whether a session exists.
func (s SessionState) SignedIn() bool {
	return s.Token != ""
}

// SheetState holds the user's characters.
type SheetState struct {
	Characters []character.Character
	ActiveID   string
	// Dirty lists characters with edits not yet saved.
	Dirty map[string]bool
}

// Active returns the active character.
func (s SheetState) Active() (character.Character, bool) {
	return s.find(s.ActiveID)
}

func (s SheetState) find(id string) (character.Character, bool) {
	idx := slices.IndexFunc(s.Characters, func(c character.Character) bool { return c.ID == id })
	if idx < 0 {
		return character.Character{}, false
	}
	return s.Characters[idx], true
}

func (s SheetState) clone() SheetState {
	out := SheetState{
		Characters: slices.Clone(s.Characters),
		ActiveID:   s.ActiveID,
		Dirty:      make(map[string]bool, len(s.Dirty)),
	}
	for id, dirty := range s.Dirty {
		out.Dirty[id] = dirty
	}
	return out
}

// NetLinkState is the active campaign table.
type NetLinkState struct {
	Campaign *contract.Campaign
	Members  []contract.Member
	Chat     []contract.ChatMessage
	Dice     []dicelog.Entry
	Status   realtime.Status
	// PendingCode is an invite code waiting for the wizard to finish.
	PendingCode string
	Initiative  json.RawMessage
	Music       json.RawMessage
	MemberData  json.RawMessage
}

// Active reports whether a campaign is entered.
func (n NetLinkState) Active() bool {
	return n.Campaign != nil
}

func (n NetLinkState) clone() NetLinkState {
	out := n
	if n.Campaign != nil {
		c := *n.Campaign
		out.Campaign = &c
	}
	out.Members = slices.Clone(n.Members)
	out.Chat = slices.Clone(n.Chat)
	out.Dice = slices.Clone(n.Dice)
	return out
}

// ToastKind classifies a user-visible notice.
type ToastKind string

const (
	ToastInfo    ToastKind = "info"
	ToastWarning ToastKind = "warning"
	ToastError   ToastKind = "error"
	// ToastStorage reports a full local store.
	ToastStorage ToastKind = "storage"
)

// Toast is a user-visible notice.
type Toast struct {
	Kind    ToastKind
	Code    apperrors.Code
	Message string
	At      time.Time
}

// UIState is what the shell renders around the views.
type UIState struct {
	Route   router.Route
	Toasts  []Toast
	Loading bool
}

func (u UIState) clone() UIState {
	out := u
	out.Toasts = slices.Clone(u.Toasts)
	return out
}
