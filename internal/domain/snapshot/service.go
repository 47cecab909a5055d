package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vaxwatch/vaxwatch/internal/domain/availability"
	"github.com/vaxwatch/vaxwatch/internal/domain/schedule"
	"github.com/vaxwatch/vaxwatch/internal/platform/notification"
	"github.com/vaxwatch/vaxwatch/internal/platform/objstore"
	"github.com/vaxwatch/vaxwatch/internal/platform/provider"
	"github.com/vaxwatch/vaxwatch/internal/platform/telemetry"
)

// ServiceConfig carries the scrape cycle's tunables.
type ServiceConfig struct {
	HorizonDays    int
	CutoffGrace    time.Duration
	SlotLength     time.Duration
	PublicOnly     bool
	StaffRemap     map[int]int
	AlertThreshold int
	AlertRecipient string
	ProviderName   string
	BookingURL     string
	DashboardURL   string
	ArtifactName   string
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.HorizonDays == 0 {
		c.HorizonDays = 30
	}
	if c.AlertThreshold == 0 {
		c.AlertThreshold = 3
	}
	if c.ArtifactName == "" {
		c.ArtifactName = "generated/availability.json"
	}
	return c
}

// Service runs scrape cycles: fetch, aggregate, project, persist, publish,
// diff, alert. The provider configuration is cached between refreshes since
// it changes far less often than the schedule.
type Service struct {
	source   provider.Source
	repo     Repository
	store    objstore.Store
	notifier *notification.Notifier
	metrics  *telemetry.Provider
	logger   zerolog.Logger
	cfg      ServiceConfig

	mu             sync.RWMutex
	providerCfg    *schedule.ProviderConfig
	lastAnomalies  []availability.OverlapAnomaly
	lastUnresolved int
}

// NewService wires a Service. store and notifier may be nil, disabling
// artifact publishing and alerting respectively.
func NewService(source provider.Source, repo Repository, store objstore.Store, notifier *notification.Notifier, metrics *telemetry.Provider, cfg ServiceConfig, logger zerolog.Logger) *Service {
	return &Service{
		source:   source,
		repo:     repo,
		store:    store,
		notifier: notifier,
		metrics:  metrics,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// RefreshConfiguration fetches the provider configuration and replaces the
// cached copy. Run falls back to fetching on demand when no copy exists yet.
func (s *Service) RefreshConfiguration(ctx context.Context) error {
	cfg, err := s.source.FetchConfiguration(ctx)
	if err != nil {
		return fmt.Errorf("refresh configuration: %w", err)
	}

	s.mu.Lock()
	s.providerCfg = cfg
	s.mu.Unlock()

	s.logger.Info().
		Int("locations", len(cfg.Locations)).
		Int("services", len(cfg.Services)).
		Msg("provider configuration refreshed")
	return nil
}

func (s *Service) configuration(ctx context.Context) (*schedule.ProviderConfig, error) {
	s.mu.RLock()
	cfg := s.providerCfg
	s.mu.RUnlock()
	if cfg != nil {
		return cfg, nil
	}
	if err := s.RefreshConfiguration(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.providerCfg, nil
}

// Run executes one scrape cycle over the configured horizon starting now.
func (s *Service) Run(ctx context.Context) (*Snapshot, error) {
	now := time.Now().UTC()
	return s.RunWindow(ctx, now, now.AddDate(0, 0, s.cfg.HorizonDays))
}

// RunWindow executes one scrape cycle over an explicit date window. On any
// failure no snapshot is written: the previously stored one stays untouched.
func (s *Service) RunWindow(ctx context.Context, from, to time.Time) (*Snapshot, error) {
	start := time.Now()
	s.count(telemetry.MetricScrapeRuns, 1)

	snap, err := s.runWindow(ctx, from, to)
	if s.metrics != nil {
		s.metrics.ObserveScrapeDuration(time.Since(start))
	}
	if err != nil {
		s.count(telemetry.MetricScrapeFailures, 1)
		return nil, err
	}
	return snap, nil
}

func (s *Service) runWindow(ctx context.Context, from, to time.Time) (*Snapshot, error) {
	cfg, err := s.configuration(ctx)
	if err != nil {
		return nil, err
	}

	sched, err := s.source.FetchSchedule(ctx, from, to)
	if err != nil {
		return nil, err
	}

	result, err := availability.Aggregate(cfg, sched, availability.Options{
		CutoffGrace: s.cfg.CutoffGrace,
		SlotLength:  s.cfg.SlotLength,
		PublicOnly:  s.cfg.PublicOnly,
		StaffRemap:  s.cfg.StaffRemap,
	}, s.logger)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.lastAnomalies = result.Anomalies
	s.lastUnresolved = result.Unresolved
	s.mu.Unlock()

	s.count(telemetry.MetricUnresolvedAppts, int64(result.Unresolved))
	s.count(telemetry.MetricOverlapAnomalies, int64(len(result.Anomalies)))
	if s.metrics != nil {
		s.metrics.SetGauge(telemetry.MetricLocations, int64(len(result.Locations)))
	}

	var prev *Snapshot
	prev, err = s.repo.Latest(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		prev = nil
	} else if err != nil {
		return nil, err
	}

	snap := &Snapshot{TakenAt: time.Now().UTC(), Locations: Project(result)}
	if err := s.repo.Save(ctx, snap); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}

	if err := s.publish(ctx, snap); err != nil {
		// The snapshot is already durable; a failed artifact write is
		// worth a retry next cycle, not a failed run.
		s.logger.Error().Err(err).Msg("publish availability artifact")
	}

	s.alert(ctx, prev, snap)

	s.logger.Info().
		Int("locations", len(snap.Locations)).
		Int("unresolved", result.Unresolved).
		Int("anomalies", len(result.Anomalies)).
		Msg("scrape cycle complete")
	return snap, nil
}

func (s *Service) publish(ctx context.Context, snap *Snapshot) error {
	if s.store == nil {
		return nil
	}
	payload, err := json.Marshal(snap.Locations)
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}
	_, err = s.store.Put(ctx, s.cfg.ArtifactName, "application/json", bytes.NewReader(payload))
	return err
}

func (s *Service) alert(ctx context.Context, prev, curr *Snapshot) {
	if s.notifier == nil || prev == nil {
		return
	}

	deltas := Changes(prev.Locations, curr.Locations, s.cfg.AlertThreshold)
	if len(deltas) == 0 {
		return
	}

	s.logger.Info().Int("deltas", len(deltas)).Msg("availability changes detected, sending alert")

	_, err := s.notifier.SendFromTemplate(ctx, notification.TemplateAvailabilityAlert, map[string]string{
		"provider_name": s.cfg.ProviderName,
		"booking_url":   s.cfg.BookingURL,
		"dashboard_url": s.cfg.DashboardURL,
		"availability":  FormatDeltas(deltas),
	}, s.cfg.AlertRecipient)
	if err != nil {
		s.logger.Error().Err(err).Msg("send availability alert")
		return
	}
	s.count(telemetry.MetricAlertsSent, 1)
}

// Anomalies returns the overlap anomalies observed by the most recent cycle.
func (s *Service) Anomalies() []availability.OverlapAnomaly {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]availability.OverlapAnomaly, len(s.lastAnomalies))
	copy(out, s.lastAnomalies)
	return out
}

// Unresolved returns the unresolvable-appointment count from the most recent
// cycle.
func (s *Service) Unresolved() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUnresolved
}

func (s *Service) count(name string, delta int64) {
	if s.metrics != nil && delta != 0 {
		s.metrics.Count(name, delta)
	}
}
