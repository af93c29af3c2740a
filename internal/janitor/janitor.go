// Package janitor executes queued GDPR erasure requests on a schedule.
// Conversations (with their messages), notifications, listings, and the
// profile row of the erased user are removed; the request row itself is
// kept as the audit trail.
package janitor

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/loopmarket/backend/internal/repository"
)

type Janitor struct {
	conversations repository.ConversationRepository
	notifications repository.NotificationRepository
	listings      repository.ListingRepository
	profiles      repository.ProfileRepository
	erasures      repository.ErasureRepository
	log           zerolog.Logger
	cron          *cron.Cron
}

func New(
	conversations repository.ConversationRepository,
	notifications repository.NotificationRepository,
	listings repository.ListingRepository,
	profiles repository.ProfileRepository,
	erasures repository.ErasureRepository,
	log zerolog.Logger,
) *Janitor {
	return &Janitor{
		conversations: conversations,
		notifications: notifications,
		listings:      listings,
		profiles:      profiles,
		erasures:      erasures,
		log:           log.With().Str("component", "janitor").Logger(),
		cron:          cron.New(),
	}
}

// Start schedules the sweep; spec is a cron expression such as "@hourly".
func (j *Janitor) Start(spec string) error {
	if _, err := j.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		j.Sweep(ctx)
	}); err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// Sweep executes every pending erasure. A request that partially fails
// stays pending and is retried on the next run.
func (j *Janitor) Sweep(ctx context.Context) {
	pending, err := j.erasures.ListPending(ctx, 20)
	if err != nil {
		j.log.Error().Err(err).Msg("list pending erasures")
		return
	}
	for _, req := range pending {
		if err := j.erase(ctx, req.UserUID); err != nil {
			j.log.Error().Err(err).Str("uid", req.UserUID).Msg("erasure failed, will retry")
			continue
		}
		if err := j.erasures.MarkDone(ctx, req.ID); err != nil {
			j.log.Error().Err(err).Uint64("request", req.ID).Msg("mark erasure done")
			continue
		}
		j.log.Info().Str("uid", req.UserUID).Msg("user data erased")
	}
}

func (j *Janitor) erase(ctx context.Context, uid string) error {
	if err := j.conversations.DeleteByUser(ctx, uid); err != nil {
		return err
	}
	if err := j.notifications.DeleteByUser(ctx, uid); err != nil {
		return err
	}
	if err := j.listings.DeleteBySeller(ctx, uid); err != nil {
		return err
	}
	return j.profiles.DeleteByUID(ctx, uid)
}
