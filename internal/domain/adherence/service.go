// Package adherence serves reconciliation, adherence, titration and stock
// reports computed by the dosing engine from stored protocols and logs.
package adherence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/coelhotv/meus-remedios/internal/domain/intakelog"
	"github.com/coelhotv/meus-remedios/internal/domain/medicine"
	"github.com/coelhotv/meus-remedios/internal/domain/protocol"
	"github.com/coelhotv/meus-remedios/internal/dosing"
	"github.com/coelhotv/meus-remedios/internal/platform/telemetry"
)

type ProtocolSource interface {
	GetProtocol(ctx context.Context, userID string, id uuid.UUID) (*protocol.Protocol, error)
	ActiveProtocols(ctx context.Context, userID string) ([]*protocol.Protocol, error)
}

type LogSource interface {
	ListSince(ctx context.Context, userID string, from time.Time) ([]*intakelog.IntakeLog, error)
	LastChange(ctx context.Context, userID string) (time.Time, error)
}

type MedicineSource interface {
	GetMedicine(ctx context.Context, userID string, id uuid.UUID) (*medicine.Medicine, error)
}

type Config struct {
	DefaultWindowDays int
	MaxWindowDays     int
	CacheTTL          time.Duration
	LowStockDays      int
}

type Service struct {
	engine    *dosing.Engine
	protocols ProtocolSource
	logs      LogSource
	medicines MedicineSource
	cfg       Config
	cache     *summaryCache
	metrics   *telemetry.Provider
}

func NewService(engine *dosing.Engine, protocols ProtocolSource, logs LogSource, medicines MedicineSource, cfg Config) *Service {
	if cfg.DefaultWindowDays <= 0 {
		cfg.DefaultWindowDays = 30
	}
	if cfg.MaxWindowDays <= 0 {
		cfg.MaxWindowDays = 365
	}
	return &Service{
		engine:    engine,
		protocols: protocols,
		logs:      logs,
		medicines: medicines,
		cfg:       cfg,
		cache:     newSummaryCache(cfg.CacheTTL, engine.Now),
	}
}

func (s *Service) UseMetrics(p *telemetry.Provider) { s.metrics = p }

// StartCacheCleanup evicts expired summaries in the background until ctx
// is done.
func (s *Service) StartCacheCleanup(ctx context.Context, interval time.Duration) {
	s.cache.startCleanup(ctx, interval)
}

// Invalidate drops every cached summary of userID.
func (s *Service) Invalidate(userID string) {
	s.cache.invalidate(userID)
}

func (s *Service) Today() dosing.CivilDate { return s.engine.Today() }

func (s *Service) load(ctx context.Context, userID string, from dosing.CivilDate) ([]dosing.Protocol, []dosing.IntakeLog, error) {
	var (
		protos []*protocol.Protocol
		logs   []*intakelog.IntakeLog
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		protos, err = s.protocols.ActiveProtocols(gctx, userID)
		if err != nil {
			return fmt.Errorf("load protocols: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		logs, err = s.logs.ListSince(gctx, userID, from.At(dosing.ClockTime{}, s.engine.Location()))
		if err != nil {
			return fmt.Errorf("load intake logs: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return protocol.ToDosingAll(protos), intakelog.ToDosingAll(logs), nil
}

// Day reconciles the doses of d for userID. A nil d means today.
func (s *Service) Day(ctx context.Context, userID string, d *dosing.CivilDate) (dosing.DayResult, error) {
	if d == nil {
		today := s.engine.Today()
		d = &today
	}
	protos, logs, err := s.load(ctx, userID, *d)
	if err != nil {
		return dosing.DayResult{}, err
	}
	result := s.engine.ReconcileDay(d, dosing.LogsOn(*d, logs, s.engine.Location()), protos)
	s.metrics.DoseClassified(string(dosing.StatusTaken), len(result.TakenDoses))
	s.metrics.DoseClassified(string(dosing.StatusMissed), len(result.MissedDoses))
	s.metrics.DoseClassified(string(dosing.StatusScheduled), len(result.ScheduledDoses))
	return result, nil
}

// Summary aggregates adherence over the last windowDays days. Results are
// cached per user, window, day and latest log write; windowDays <= 0 picks
// the configured default.
func (s *Service) Summary(ctx context.Context, userID string, windowDays int) (dosing.AdherenceStats, error) {
	if windowDays <= 0 {
		windowDays = s.cfg.DefaultWindowDays
	}
	if windowDays > s.cfg.MaxWindowDays {
		return dosing.AdherenceStats{}, &dosing.InputError{
			Field:  "window_days",
			Reason: fmt.Sprintf("must not exceed %d", s.cfg.MaxWindowDays),
		}
	}

	last, err := s.logs.LastChange(ctx, userID)
	if err != nil {
		return dosing.AdherenceStats{}, fmt.Errorf("load last intake: %w", err)
	}
	today := s.engine.Today()
	key := fmt.Sprintf("%s|%d|%s|%d", userID, windowDays, today, last.UnixNano())
	if stats, ok := s.cache.get(key); ok {
		s.metrics.CacheHit()
		return stats, nil
	}
	s.metrics.CacheMiss()

	protos, logs, err := s.load(ctx, userID, today.AddDays(-(windowDays - 1)))
	if err != nil {
		return dosing.AdherenceStats{}, err
	}
	stats, err := s.engine.Aggregate(logs, protos, windowDays)
	if err != nil {
		return dosing.AdherenceStats{}, err
	}
	s.cache.set(userID, key, stats)
	zerolog.Ctx(ctx).Debug().
		Int("window_days", windowDays).
		Int("score", stats.Score).
		Msg("adherence summary computed")
	return stats, nil
}

func (s *Service) Titration(ctx context.Context, userID string, protocolID uuid.UUID) (dosing.TitrationTimeline, error) {
	p, err := s.protocols.GetProtocol(ctx, userID, protocolID)
	if err != nil {
		return dosing.TitrationTimeline{}, err
	}
	return s.engine.ComputeTimeline(p.ToDosing())
}

// TitrationSummary returns nil when the protocol has no titration.
func (s *Service) TitrationSummary(ctx context.Context, userID string, protocolID uuid.UUID) (*dosing.TitrationSummary, error) {
	p, err := s.protocols.GetProtocol(ctx, userID, protocolID)
	if err != nil {
		return nil, err
	}
	return s.engine.TitrationSummary(p.ToDosing())
}

// Stock forecasts when the medicine runs out given the user's active
// protocols.
func (s *Service) Stock(ctx context.Context, userID string, medicineID uuid.UUID) (dosing.StockForecast, error) {
	var (
		med    *medicine.Medicine
		protos []*protocol.Protocol
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		med, err = s.medicines.GetMedicine(gctx, userID, medicineID)
		return err
	})
	g.Go(func() error {
		var err error
		protos, err = s.protocols.ActiveProtocols(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return dosing.StockForecast{}, err
	}
	return dosing.ForecastStock(med.ID.String(), med.StockQuantity, protocol.ToDosingAll(protos),
		s.engine.Today(), s.cfg.LowStockDays), nil
}
