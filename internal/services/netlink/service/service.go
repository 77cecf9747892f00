// Package service implements the NetLink operations behind the HTTP API:
// profiles, characters, campaigns, memberships and the dice and chat logs.
// Every successful write publishes a change on the campaign's realtime
// channel.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/zenite-os/zenite/internal/campaign/policy"
	"github.com/zenite-os/zenite/internal/platform/id"
	"github.com/zenite-os/zenite/internal/platform/logging"
	"github.com/zenite-os/zenite/internal/platform/random"
	"github.com/zenite-os/zenite/internal/services/netlink/archive"
	"github.com/zenite-os/zenite/internal/services/netlink/realtime"
	"github.com/zenite-os/zenite/internal/services/netlink/storage"
)

// Caller identifies the authenticated user of a request.
type Caller struct {
	UserID   string
	Username string
	Guest    bool
}

// Config wires a Service. Store and Bus are required.
type Config struct {
	Store   storage.Store
	Bus     realtime.Bus
	Policy  *policy.Enforcer
	Archive *archive.Archive
	Logger  logging.Logger
	Random  random.Source
	Now     func() time.Time
	NewID   func() (string, error)
}

// Service holds the NetLink business operations.
type Service struct {
	store   storage.Store
	bus     realtime.Bus
	policy  *policy.Enforcer
	archive *archive.Archive
	logger  logging.Logger
	random  random.Source
	now     func() time.Time
	newID   func() (string, error)
}

// New validates cfg and applies defaults.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Bus == nil {
		return nil, errors.New("realtime bus is required")
	}
	if cfg.Policy == nil {
		enforcer, err := policy.Default()
		if err != nil {
			return nil, err
		}
		cfg.Policy = enforcer
	}
	if cfg.Archive == nil {
		cfg.Archive = archive.New(nil, nil)
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
	return &Service{
		store:   cfg.Store,
		bus:     cfg.Bus,
		policy:  cfg.Policy,
		archive: cfg.Archive,
		logger:  cfg.Logger,
		random:  cfg.Random,
		now:     cfg.Now,
		newID:   cfg.NewID,
	}, nil
}

// publish emits a change after a committed write. Failures are logged only.
func (s *Service) publish(ctx context.Context, campaignID string, stream realtime.Stream, op realtime.Op, record any) {
	event, err := realtime.NewChange(campaignID, stream, op, record, s.now())
	if err != nil {
		s.logger.Error("encode change", err, logging.Fields{"campaign_id": campaignID, "stream": string(stream)})
		return
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Warn("publish change", logging.Fields{
			"campaign_id": campaignID,
			"stream":      string(stream),
			"op":          string(op),
			"error":       err.Error(),
		})
	}
}
