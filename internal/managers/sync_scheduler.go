package managers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/vaultbridge/vaultbridge/pkg/domain"
)

type SyncSchedulerDependencies struct {
	AccountMappings domain.AccountMappingManager
	Schedule        string
}

// SyncScheduler pushes every mapped credential into its vault on a cron schedule
type SyncScheduler struct {
	accountMappings domain.AccountMappingManager
	schedule        string
}

func NewSyncScheduler(deps SyncSchedulerDependencies) (*SyncScheduler, error) {
	schedule := strings.TrimSpace(deps.Schedule)

	if schedule != "" {
		if _, err := cron.ParseStandard(schedule); err != nil {
			return nil, fmt.Errorf("%w: invalid sync schedule %q: %v", domain.ErrValidation, schedule, err)
		}
	}

	return &SyncScheduler{
		accountMappings: deps.AccountMappings,
		schedule:        schedule,
	}, nil
}

func (s *SyncScheduler) Enabled() bool {
	return s.schedule != ""
}

// Run blocks until ctx is done. It returns immediately when no schedule is set.
func (s *SyncScheduler) Run(ctx context.Context) error {
	if !s.Enabled() {
		log.Debug().Msg("Scheduled credential sync disabled")
		return nil
	}

	scheduler := cron.New()

	if _, err := scheduler.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule credential sync: %w", err)
	}

	scheduler.Start()
	log.Info().Str("schedule", s.schedule).Msg("Scheduled credential sync started")

	<-ctx.Done()

	<-scheduler.Stop().Done()
	log.Info().Msg("Scheduled credential sync stopped")

	return nil
}

func (s *SyncScheduler) RunOnce(ctx context.Context) domain.SyncResult {
	result, err := s.accountMappings.SyncCredentials(ctx, "")
	if errors.Is(err, domain.ErrNotConfigured) {
		log.Debug().Err(err).Msg("Skipping scheduled sync")
		return result
	}
	if err != nil {
		log.Error().Err(err).Msg("Scheduled credential sync failed")
		return result
	}

	return result
}
