// Package reminder runs the periodic missed-dose sweep: every tick it
// reconciles today for each user with active protocols and notifies each
// missed dose once per day.
package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/coelhotv/meus-remedios/internal/domain/protocol"
	"github.com/coelhotv/meus-remedios/internal/dosing"
	"github.com/coelhotv/meus-remedios/internal/platform/notification"
	"github.com/coelhotv/meus-remedios/internal/platform/telemetry"
)

// DefaultSchedule fires every 15 minutes, on the minute.
const DefaultSchedule = "0 */15 * * * *"

var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule reports whether spec is a six-field cron expression or a
// descriptor such as "@every 10m".
func ValidateSchedule(spec string) error {
	_, err := parser.Parse(spec)
	return err
}

type ProtocolSource interface {
	ActiveUserIDs(ctx context.Context) ([]string, error)
	ActiveProtocols(ctx context.Context, userID string) ([]*protocol.Protocol, error)
}

type DayReconciler interface {
	Day(ctx context.Context, userID string, d *dosing.CivilDate) (dosing.DayResult, error)
	Today() dosing.CivilDate
}

type Notifier interface {
	SendFromTemplate(ctx context.Context, userID, templateID string, data map[string]string) (*notification.Notification, error)
}

type Config struct {
	Schedule    string
	Concurrency int
}

type Result struct {
	Users   int
	Sent    int
	Failed  int
	Skipped int
}

type Sweeper struct {
	cfg       Config
	protocols ProtocolSource
	days      DayReconciler
	notifier  Notifier
	metrics   *telemetry.Provider
	logger    zerolog.Logger

	mu       sync.Mutex
	day      dosing.CivilDate
	notified map[string]struct{}

	cron *cron.Cron
}

func NewSweeper(cfg Config, protocols ProtocolSource, days DayReconciler, notifier Notifier, logger zerolog.Logger) *Sweeper {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Sweeper{
		cfg:       cfg,
		protocols: protocols,
		days:      days,
		notifier:  notifier,
		logger:    logger.With().Str("component", "reminder").Logger(),
		notified:  make(map[string]struct{}),
	}
}

func (s *Sweeper) UseMetrics(p *telemetry.Provider) { s.metrics = p }

// Start schedules RunOnce on the configured cron spec. Runs never overlap.
func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error().Err(err).Msg("reminder sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule reminder sweep %q: %w", s.cfg.Schedule, err)
	}
	s.cron.Start()
	s.logger.Info().Str("schedule", s.cfg.Schedule).Msg("reminder sweep scheduled")
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// claim marks a dose as notified for today and reports whether it was new.
// The set resets when the day changes.
func (s *Sweeper) claim(today dosing.CivilDate, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.day.Equal(today) {
		s.day = today
		s.notified = make(map[string]struct{})
	}
	if _, ok := s.notified[key]; ok {
		return false
	}
	s.notified[key] = struct{}{}
	return true
}

func (s *Sweeper) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.notified, key)
}

// RunOnce performs one sweep over every user with active protocols.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveSweep(time.Since(start)) }()

	users, err := s.protocols.ActiveUserIDs(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list users: %w", err)
	}
	today := s.days.Today()

	var (
		mu  sync.Mutex
		res = Result{Users: len(users)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, uid := range users {
		g.Go(func() error {
			r, err := s.sweepUser(gctx, uid, today)
			if err != nil {
				s.logger.Warn().Err(err).Str("user_id", uid).Msg("skipping user")
			}
			mu.Lock()
			res.Sent += r.Sent
			res.Failed += r.Failed
			res.Skipped += r.Skipped
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info().
		Int("users", res.Users).
		Int("sent", res.Sent).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Dur("took", time.Since(start)).
		Msg("reminder sweep finished")
	return res, ctx.Err()
}

func (s *Sweeper) sweepUser(ctx context.Context, userID string, today dosing.CivilDate) (Result, error) {
	var res Result
	day, err := s.days.Day(ctx, userID, &today)
	if err != nil {
		return res, err
	}
	if len(day.MissedDoses) == 0 {
		return res, nil
	}
	protos, err := s.protocols.ActiveProtocols(ctx, userID)
	if err != nil {
		return res, err
	}
	byID := make(map[string]*protocol.Protocol, len(protos))
	for _, p := range protos {
		byID[p.ID.String()] = p
	}

	for _, dose := range day.MissedDoses {
		key := userID + "|" + dose.ID
		if !s.claim(today, key) {
			res.Skipped++
			s.metrics.ReminderOutcome("skipped")
			continue
		}
		data := map[string]string{"medicine": dose.MedicineID, "protocol": dose.ProtocolID}
		if dose.ScheduledTime != nil {
			data["time"] = *dose.ScheduledTime
		}
		if p, ok := byID[dose.ProtocolID]; ok {
			data["protocol"] = p.Name
			if p.MedicineName != "" {
				data["medicine"] = p.MedicineName
			}
		}
		if _, err := s.notifier.SendFromTemplate(ctx, userID, notification.TemplateMissedDose, data); err != nil {
			s.release(key)
			res.Failed++
			s.metrics.ReminderOutcome("failed")
			s.logger.Warn().Err(err).Str("user_id", userID).Str("dose_id", dose.ID).Msg("reminder not delivered")
			continue
		}
		res.Sent++
		s.metrics.ReminderOutcome("sent")
	}
	return res, nil
}
