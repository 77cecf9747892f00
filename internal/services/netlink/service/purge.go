package service

import (
	"context"
	"fmt"
	"time"

	"github.com/zenite-os/zenite/internal/character"
	"github.com/zenite-os/zenite/internal/platform/logging"
)

// KickedRetention is how long kicked membership rows are kept.
const KickedRetention = 30 * 24 * time.Hour

// PurgeInactiveCharacters deletes characters untouched for the inactivity window.
func (s *Service) PurgeInactiveCharacters(ctx context.Context) (int, error) {
	cutoff := character.InactiveCutoff(s.now().UTC())
	n, err := s.store.DeleteCharactersUpdatedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge inactive characters: %w", err)
	}
	s.logger.Info("purged inactive characters", logging.Fields{"deleted": n, "cutoff": cutoff.Format(time.RFC3339)})
	return n, nil
}

// PurgeKickedMembers deletes kicked memberships older than KickedRetention.
func (s *Service) PurgeKickedMembers(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-KickedRetention)
	n, err := s.store.DeleteKickedMembersBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge kicked members: %w", err)
	}
	s.logger.Info("purged kicked members", logging.Fields{"deleted": n, "cutoff": cutoff.Format(time.RFC3339)})
	return n, nil
}
