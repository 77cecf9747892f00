package app

import (
	"context"
	"slices"

	"github.com/zenite-os/zenite/internal/character"
	"github.com/zenite-os/zenite/internal/client/localstore"
	apperrors "github.com/zenite-os/zenite/internal/platform/errors"
	"github.com/zenite-os/zenite/internal/platform/logging"
	"github.com/zenite-os/zenite/internal/router"
)

var errCharacterNotFound = apperrors.New(apperrors.CodeNotFound, "character not found")

// sheetHook activates the character named by the route or falls back to
// the dashboard.
func (s *Store) sheetHook(_ context.Context, route router.Route) error {
	s.mu.Lock()
	_, ok := s.sheet.find(route.Param)
	if ok {
		s.sheet.ActiveID = route.Param
	}
	s.mu.Unlock()
	if !ok {
		s.toast(ToastWarning, errCharacterNotFound)
		return router.RedirectTo(router.Dashboard())
	}
	return nil
}

// CompleteWizard creates and stores a character. A campaign code stashed by
// the NetLink flow is consumed and joined with the new character.
func (s *Store) CompleteWizard(ctx context.Context, input character.WizardInput) (character.Character, error) {
	s.mu.Lock()
	session := s.session
	s.mu.Unlock()
	if !session.SignedIn() {
		return character.Character{}, notSignedIn()
	}

	input.OwnerID = session.UserID
	created, err := character.Create(input, s.now, s.newID)
	if err != nil {
		s.toast(ToastError, err)
		return character.Character{}, err
	}
	sheet, err := character.EncodeSheet(created)
	if err != nil {
		return character.Character{}, err
	}
	if _, err := s.backend.PutCharacter(ctx, created.ID, sheet); err != nil {
		s.toast(ToastError, err)
		return character.Character{}, err
	}

	s.mu.Lock()
	s.sheet.Characters = append(s.sheet.Characters, created)
	s.sheet.ActiveID = created.ID
	code := s.netlink.PendingCode
	s.netlink.PendingCode = ""
	s.mu.Unlock()
	s.cacheGuestCharacters(ctx)

	next := router.Route{Name: router.NameSheet, Param: created.ID}
	if code != "" {
		next = router.Route{Name: router.NameNetLink, Param: code}
	}
	if _, err := s.Navigate(ctx, next); err != nil {
		return created, err
	}
	return created, nil
}

// SelectCharacter makes id the active character.
func (s *Store) SelectCharacter(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sheet.find(id); !ok {
		return errCharacterNotFound
	}
	s.sheet.ActiveID = id
	return nil
}

// EditCharacter applies mutate to a character and schedules a debounced save.
func (s *Store) EditCharacter(id string, mutate func(*character.Character)) (character.Character, error) {
	s.mu.Lock()
	idx := slices.IndexFunc(s.sheet.Characters, func(c character.Character) bool { return c.ID == id })
	if idx < 0 {
		s.mu.Unlock()
		return character.Character{}, errCharacterNotFound
	}
	edited := s.sheet.Characters[idx]
	mutate(&edited)
	edited.ID = id
	edited = character.Touch(character.Derive(edited), s.now())
	s.sheet.Characters[idx] = edited
	s.sheet.Dirty[id] = true
	s.mu.Unlock()

	s.sheets.Trigger(id)
	return edited, nil
}

// saveCharacter is the debounced sheet save.
func (s *Store) saveCharacter(ctx context.Context, id string) error {
	s.mu.Lock()
	c, ok := s.sheet.find(id)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	sheet, err := character.EncodeSheet(c)
	if err != nil {
		return err
	}
	if _, err := s.backend.PutCharacter(ctx, id, sheet); err != nil {
		return err
	}

	s.mu.Lock()
	if current, ok := s.sheet.find(id); ok && current.UpdatedAt.Equal(c.UpdatedAt) {
		delete(s.sheet.Dirty, id)
	}
	snapshot := localstore.Snapshot{SavedAt: s.now().UTC(), Characters: slices.Clone(s.sheet.Characters)}
	s.mu.Unlock()

	s.cacheGuestCharacters(ctx)
	if s.local != nil {
		if err := s.local.SaveCloudSnapshot(ctx, snapshot); err != nil {
			return wrapLocal("save cloud snapshot", err)
		}
		if err := s.local.AppendHistory(ctx, snapshot); err != nil {
			return wrapLocal("append save history", err)
		}
	}
	return nil
}

// cacheGuestCharacters mirrors a guest's characters into the local store.
func (s *Store) cacheGuestCharacters(ctx context.Context) {
	if s.local == nil {
		return
	}
	s.mu.Lock()
	guest := s.session.Guest
	characters := slices.Clone(s.sheet.Characters)
	s.mu.Unlock()
	if !guest {
		return
	}
	if err := s.local.SaveGuestCharacters(ctx, characters); err != nil {
		s.logger.Warn("cache guest characters", logging.Fields{"error": err.Error()})
		s.toast(ToastStorage, err)
	}
}
