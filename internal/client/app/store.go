// Package app is the client core: per-feature state composed into a Store
// that drives routing, character editing and the NetLink table.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zenite-os/zenite/internal/character"
	"github.com/zenite-os/zenite/internal/client/autosave"
	"github.com/zenite-os/zenite/internal/client/dicelog"
	"github.com/zenite-os/zenite/internal/client/localstore"
	"github.com/zenite-os/zenite/internal/client/realtime"
	apperrors "github.com/zenite-os/zenite/internal/platform/errors"
	"github.com/zenite-os/zenite/internal/platform/id"
	"github.com/zenite-os/zenite/internal/platform/logging"
	"github.com/zenite-os/zenite/internal/platform/random"
	"github.com/zenite-os/zenite/internal/router"
	"github.com/zenite-os/zenite/internal/services/netlink/contract"
)

// MaxToasts caps the toast queue.
const MaxToasts = 20

// Backend is the NetLink API the store calls.
type Backend interface {
	SignUp(ctx context.Context, username, password string) (contract.Session, error)
	Login(ctx context.Context, username, password string) (contract.Session, error)
	Guest(ctx context.Context) (contract.Session, error)
	SetToken(token string)

	ListCharacters(ctx context.Context) ([]contract.Character, error)
	PutCharacter(ctx context.Context, id string, sheet json.RawMessage) (contract.Character, error)

	ListCampaigns(ctx context.Context) ([]contract.Campaign, error)
	JoinByCode(ctx context.Context, req contract.JoinRequest) (contract.JoinResponse, error)
	UpdateCampaign(ctx context.Context, campaignID string, req contract.UpdateCampaignRequest) (contract.Campaign, error)
	ListMembers(ctx context.Context, campaignID string) ([]contract.Member, error)
	ListRolls(ctx context.Context, campaignID string, limit int) ([]contract.DiceRoll, error)
	AppendRoll(ctx context.Context, campaignID string, req contract.RollRequest) (contract.DiceRoll, error)
	ListMessages(ctx context.Context, campaignID string, limit int) ([]contract.ChatMessage, error)
	SendMessage(ctx context.Context, campaignID string, req contract.ChatRequest) (contract.ChatMessage, error)
}

// Config wires a Store.
type Config struct {
	Backend Backend
	Dialer  realtime.Dialer
	// Local caches guest characters and save history. Optional.
	Local   *localstore.Store
	History router.History
	Locale  string
	Logger  logging.Logger
	Random  random.Source
	Now     func() time.Time
	NewID   func() (string, error)

	SheetDelay    time.Duration
	SettingsDelay time.Duration
	// RetrySleep overrides the realtime reconnect wait.
	RetrySleep       func(ctx context.Context, d time.Duration) error
	SubscribeTimeout time.Duration
}

// Store is the client's single source of state.
type Store struct {
	backend  Backend
	local    *localstore.Store
	router   *router.Router
	channel  *realtime.Manager
	dice     *dicelog.Log
	sheets   *autosave.Debouncer
	settings *autosave.Debouncer
	locale   string
	logger   logging.Logger
	random   random.Source
	now      func() time.Time
	newID    func() (string, error)

	mu      sync.Mutex
	session SessionState
	sheet   SheetState
	netlink NetLinkState
	ui      UIState
	// tableGen changes whenever the active campaign changes; in-flight
	// results captured under an older value are dropped.
	tableGen uint64

	bg sync.WaitGroup
}

// New builds a Store and registers its route hooks.
func New(cfg Config) (*Store, error) {
	if cfg.Backend == nil {
		return nil, errors.New("backend is required")
	}
	if cfg.Dialer == nil {
		return nil, errors.New("realtime dialer is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.Random == nil {
		cfg.Random = random.CryptoSource{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = id.NewID
	}
	if cfg.SheetDelay <= 0 {
		cfg.SheetDelay = autosave.SheetDelay
	}
	if cfg.SettingsDelay <= 0 {
		cfg.SettingsDelay = autosave.SettingsDelay
	}

	s := &Store{
		backend: cfg.Backend,
		local:   cfg.Local,
		dice:    dicelog.New(dicelog.DefaultLimit),
		locale:  cfg.Locale,
		logger:  cfg.Logger,
		random:  cfg.Random,
		now:     cfg.Now,
		newID:   cfg.NewID,
		sheet:   SheetState{Dirty: map[string]bool{}},
		netlink: NetLinkState{Status: realtime.StatusClosed},
	}
	s.router = router.New(router.DefaultTable(), router.SessionFunc(s.hasSession), cfg.History)
	s.router.Handle(router.NameSheet, s.sheetHook)
	s.router.Handle(router.NameNetLink, s.netlinkHook)
	s.ui.Route = s.router.Current()

	channel, err := realtime.NewManager(realtime.Config{
		Dialer: cfg.Dialer,
		Handlers: realtime.Handlers{
			OnChange:     s.onChange,
			OnBroadcast:  s.onBroadcast,
			OnStatus:     s.onStatus,
			OnSubscribed: s.onSubscribed,
			OnGiveUp:     s.onGiveUp,
			OnError:      func(_ string, err error) { s.toast(ToastError, err) },
		},
		Logger:           cfg.Logger.With(logging.Fields{"component": "realtime"}),
		SubscribeTimeout: cfg.SubscribeTimeout,
		Sleep:            cfg.RetrySleep,
	})
	if err != nil {
		return nil, err
	}
	s.channel = channel
	s.sheets = autosave.New(cfg.SheetDelay, s.saveCharacter, func(_ string, err error) { s.toast(ToastError, err) })
	s.settings = autosave.New(cfg.SettingsDelay, s.saveSettings, func(_ string, err error) { s.toast(ToastError, err) })
	return s, nil
}

// Session returns a copy of the session state.
func (s *Store) Session() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Sheet returns a copy of the sheet state.
func (s *Store) Sheet() SheetState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sheet.clone()
}

// NetLink returns a copy of the campaign table state.
func (s *Store) NetLink() NetLinkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.netlink.clone()
	out.Dice = s.dice.Entries()
	return out
}

// UI returns a copy of the shell state.
func (s *Store) UI() UIState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ui.clone()
}

// Close flushes pending saves and drops the realtime channel.
func (s *Store) Close(ctx context.Context) error {
	err := errors.Join(s.sheets.Close(ctx), s.settings.Close(ctx))
	s.channel.Leave()
	s.bg.Wait()
	return err
}

func (s *Store) hasSession() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.SignedIn()
}

// HandleRoute resolves a fragment through the router.
func (s *Store) HandleRoute(ctx context.Context, fragment string) (router.Route, error) {
	route, err := s.router.Resolve(ctx, fragment)
	return s.settle(route, err)
}

// Navigate pushes route and resolves it.
func (s *Store) Navigate(ctx context.Context, route router.Route) (router.Route, error) {
	resolved, err := s.router.Navigate(ctx, route)
	return s.settle(resolved, err)
}

// settle records the resolved route and leaves the table once the user is
// no longer on a NetLink view.
func (s *Store) settle(route router.Route, err error) (router.Route, error) {
	s.mu.Lock()
	s.ui.Route = route
	s.mu.Unlock()
	if route.Name != router.NameNetLink || route.Param == "" {
		s.leaveTable()
	}
	if err != nil {
		s.toast(ToastError, err)
	}
	return route, err
}

// SignUp creates an account and replays the pending route.
func (s *Store) SignUp(ctx context.Context, username, password string) (router.Route, error) {
	session, err := s.backend.SignUp(ctx, username, password)
	if err != nil {
		s.toast(ToastError, err)
		return s.router.Current(), err
	}
	return s.startSession(ctx, session)
}

// SignIn logs in and replays the pending route.
func (s *Store) SignIn(ctx context.Context, username, password string) (router.Route, error) {
	session, err := s.backend.Login(ctx, username, password)
	if err != nil {
		s.toast(ToastError, err)
		return s.router.Current(), err
	}
	return s.startSession(ctx, session)
}

// SignInGuest opens a guest session and replays the pending route.
func (s *Store) SignInGuest(ctx context.Context) (router.Route, error) {
	session, err := s.backend.Guest(ctx)
	if err != nil {
		s.toast(ToastError, err)
		return s.router.Current(), err
	}
	return s.startSession(ctx, session)
}

// SignOut flushes pending edits and clears all state.
func (s *Store) SignOut(ctx context.Context) error {
	flushErr := errors.Join(s.sheets.Flush(ctx), s.settings.Flush(ctx))
	s.leaveTable()
	s.backend.SetToken("")
	s.mu.Lock()
	s.session = SessionState{}
	s.sheet = SheetState{Dirty: map[string]bool{}}
	s.netlink = NetLinkState{Status: realtime.StatusClosed}
	s.mu.Unlock()
	s.dice.Reset()
	_, err := s.Navigate(ctx, router.Route{Name: router.NameLogin})
	return errors.Join(flushErr, err)
}

func (s *Store) startSession(ctx context.Context, session contract.Session) (router.Route, error) {
	s.backend.SetToken(session.Token)
	s.mu.Lock()
	s.session = SessionState{
		UserID:   session.UserID,
		Username: session.Username,
		Guest:    session.Guest,
		Token:    session.Token,
	}
	s.mu.Unlock()

	if err := s.loadCharacters(ctx); err != nil {
		s.toast(ToastError, err)
	}

	target, ok := s.router.ConsumePending()
	if !ok {
		target = router.Dashboard()
	}
	return s.Navigate(ctx, target)
}

func (s *Store) loadCharacters(ctx context.Context) error {
	rows, err := s.backend.ListCharacters(ctx)
	if err != nil {
		return err
	}
	characters := make([]character.Character, 0, len(rows))
	for _, row := range rows {
		c, err := character.DecodeSheet(row.Sheet)
		if err != nil {
			s.logger.Warn("skip undecodable character", logging.Fields{"character_id": row.ID, "error": err.Error()})
			continue
		}
		characters = append(characters, c)
	}

	s.mu.Lock()
	guest := s.session.Guest
	s.mu.Unlock()
	if guest && s.local != nil {
		characters = s.mergeGuestCache(ctx, characters)
	}

	s.mu.Lock()
	s.sheet.Characters = characters
	if _, ok := s.sheet.find(s.sheet.ActiveID); !ok {
		s.sheet.ActiveID = ""
		if len(characters) > 0 {
			s.sheet.ActiveID = characters[0].ID
		}
	}
	s.mu.Unlock()
	return nil
}

// mergeGuestCache adds locally cached guest characters the server does not
// know, after dropping the inactive ones.
func (s *Store) mergeGuestCache(ctx context.Context, characters []character.Character) []character.Character {
	if removed, err := s.local.CollectInactive(ctx, s.now()); err != nil {
		s.logger.Warn("collect inactive guest characters", logging.Fields{"error": err.Error()})
	} else if removed > 0 {
		s.logger.Info("dropped inactive guest characters", logging.Fields{"count": removed})
	}
	cached, err := s.local.GuestCharacters(ctx)
	if err != nil {
		s.logger.Warn("load guest cache", logging.Fields{"error": err.Error()})
		return characters
	}
	known := make(map[string]bool, len(characters))
	for _, c := range characters {
		known[c.ID] = true
	}
	for _, c := range cached {
		if !known[c.ID] {
			characters = append(characters, c)
		}
	}
	return characters
}

func (s *Store) toast(kind ToastKind, err error) {
	if err == nil {
		return
	}
	var redirect *router.Redirect
	if errors.As(err, &redirect) {
		return
	}
	code := apperrors.GetCode(err)
	if code == apperrors.CodeQuotaExceeded {
		kind = ToastStorage
	}
	s.notify(Toast{Kind: kind, Code: code, Message: apperrors.UserMessage(err, s.locale)})
}

func (s *Store) notify(t Toast) {
	t.At = s.now().UTC()
	s.mu.Lock()
	s.ui.Toasts = append(s.ui.Toasts, t)
	if over := len(s.ui.Toasts) - MaxToasts; over > 0 {
		s.ui.Toasts = s.ui.Toasts[over:]
	}
	s.mu.Unlock()
	s.logger.Debug("toast", logging.Fields{"kind": string(t.Kind), "code": string(t.Code)})
}

// DismissToasts clears the toast queue.
func (s *Store) DismissToasts() {
	s.mu.Lock()
	s.ui.Toasts = nil
	s.mu.Unlock()
}

func (s *Store) goBackground(fn func()) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		fn()
	}()
}

func notSignedIn() error {
	return apperrors.New(apperrors.CodeAuthRequired, "sign in first")
}

func wrapLocal(op string, err error) error {
	if err == nil || apperrors.IsCode(err, apperrors.CodeQuotaExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
