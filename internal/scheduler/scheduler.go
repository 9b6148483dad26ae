// Package scheduler keeps the station catalog warm so interactive
// discovery over a configured region never pays the provider round
// trip.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/pointloom/pointloom/internal/geo"
	"github.com/pointloom/pointloom/internal/point"
)

// Scheduler periodically re-lists stations for a region across all
// registered networks.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   *point.Service
	region    *geo.Region
	interval  time.Duration
	logger    *slog.Logger
}

// New creates a catalog warm-up scheduler. region may be nil, in which
// case Start schedules nothing.
func New(region *geo.Region, interval time.Duration, service *point.Service, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		service:   service,
		region:    region,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the periodic warm-up and starts the underlying
// scheduler.
func (s *Scheduler) Start() error {
	if s.region == nil {
		s.logger.Info("no warm-up region configured; nothing to schedule")
		return nil
	}

	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 60
	}

	_, err := s.scheduler.Every(minutes).Minutes().Do(func() {
		s.logger.Info("running catalog warm-up")

		var wg sync.WaitGroup
		for _, network := range s.service.Networks() {
			network := network
			wg.Add(1)
			go func() {
				defer wg.Done()

				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
				defer cancel()

				collection, err := s.service.PointsFromGeometry(
					ctx, network, s.region, nil, point.DefaultDiscoveryOptions)
				if errors.Is(err, point.ErrNotSupported) {
					return
				}
				if err != nil {
					s.logger.Warn("warm-up failed", "network", network, "error", err)
					return
				}
				s.logger.Info("warm-up complete", "network", network, "stations", collection.Len())
			}()
		}
		wg.Wait()
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
