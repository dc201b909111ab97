package services

import (
	"context"
	"time"

	"git.solsynth.dev/hypernet/chronicle/pkg/internal/composer"
	"git.solsynth.dev/hypernet/chronicle/pkg/internal/pipeline"
	"github.com/rs/zerolog/log"
)

// Cleaner bundles the periodic housekeeping run by the cron scheduler.
type Cleaner struct {
	Store              *ContentStore
	Pipeline           *pipeline.Pipeline
	Sessions           *composer.Sessions
	RetractedRetention time.Duration
	ParkedRetention    time.Duration
	OverlayRetention   time.Duration
	SessionIdle        time.Duration
	Clock              func() time.Time
}

func (v *Cleaner) DoAutoDatabaseCleanup() {
	log.Debug().Time("now", v.now()).Msg("Now running auto database cleanup...")

	deadline := v.now().Add(-v.RetractedRetention)
	count, err := v.Store.PurgeRetracted(context.Background(), deadline)
	if err != nil {
		log.Error().Err(err).Msg("An error occurred when running auto database cleanup...")
		return
	}

	log.Debug().Int64("affected", count).Msg("Clean up retracted content items has been done.")
}

func (v *Cleaner) DoAutoMemoryCleanup() {
	settled := v.Pipeline.RetryParked(context.Background())
	parked := v.Pipeline.Pending().PruneParked(v.ParkedRetention)
	overlay := v.Pipeline.Overlay().Prune(v.OverlayRetention)

	var sessions int
	if v.Sessions != nil {
		sessions = v.Sessions.Prune(v.SessionIdle)
	}

	log.Debug().
		Int("settled", settled).
		Int("parked", parked).
		Int("overlay", overlay).
		Int("sessions", sessions).
		Msg("Clean up in-memory submission state has been done.")
}

func (v *Cleaner) now() time.Time {
	if v.Clock != nil {
		return v.Clock()
	}
	return time.Now()
}
