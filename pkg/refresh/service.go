// Package refresh rebuilds the data store from the upstream FPL feed.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/sportsql/pkg/fpl"
	"github.com/malbeclabs/sportsql/pkg/store"
)

const defaultSummaryWorkers = 8

// ErrRefreshInProgress is returned when a refresh is already running in this
// process or in another one sharing the database.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// Source is the upstream feed.
type Source interface {
	Bootstrap(ctx context.Context) (*fpl.Bootstrap, error)
	Fixtures(ctx context.Context) ([]fpl.Fixture, error)
	ElementSummary(ctx context.Context, playerID int) (*fpl.ElementSummary, error)
}

// Sink is the data store being refreshed.
type Sink interface {
	TryLock(ctx context.Context) (func(), error)
	ReplaceAll(ctx context.Context, data []store.TableData) error
	ReplacePlayerRows(ctx context.Context, playerID int, data []store.TableData) error
}

// Invalidator drops cached directory data after a refresh.
type Invalidator interface {
	Invalidate()
}

type Config struct {
	Logger *slog.Logger
	Source Source
	Sink   Sink
	Clock  clockwork.Clock

	// SummaryWorkers bounds concurrent per-player feed requests.
	SummaryWorkers int

	// Invalidate is called after every successful refresh.
	Invalidate []Invalidator
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Source == nil {
		return errors.New("source is required")
	}
	if c.Sink == nil {
		return errors.New("sink is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.SummaryWorkers <= 0 {
		c.SummaryWorkers = defaultSummaryWorkers
	}
	return nil
}

// Status describes the most recent refresh.
type Status struct {
	Running      bool      `json:"running"`
	LastStarted  time.Time `json:"last_started,omitzero"`
	LastFinished time.Time `json:"last_finished,omitzero"`
	LastError    string    `json:"last_error,omitempty"`
	Players      int       `json:"players"`
}

type Service struct {
	log *slog.Logger
	cfg Config

	running  sync.Mutex
	statusMu sync.RWMutex
	status   Status

	summaryPool pond.ResultPool[playerTables]
}

func New(cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate refresh config: %w", err)
	}
	return &Service{
		log:         cfg.Logger,
		cfg:         cfg,
		summaryPool: pond.NewResultPool[playerTables](cfg.SummaryWorkers),
	}, nil
}

// Close stops the per-player fetch pool once queued fetches finish.
func (s *Service) Close() {
	s.summaryPool.StopAndWait()
}

func (s *Service) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

// Run performs a full refresh. It returns ErrRefreshInProgress without
// waiting if another refresh holds the lock.
func (s *Service) Run(ctx context.Context) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return s.runLocked(ctx, s.begin())
}

// Start takes the refresh lock and runs a full refresh in the background.
// The lock is held until the refresh finishes; ctx bounds the whole run.
func (s *Service) Start(ctx context.Context) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	started := s.begin()
	go func() {
		defer release()
		_ = s.runLocked(ctx, started)
	}()
	return nil
}

// acquire takes the in-process lock and then the shared store lock.
func (s *Service) acquire(ctx context.Context) (func(), error) {
	if !s.running.TryLock() {
		return nil, ErrRefreshInProgress
	}
	release, err := s.cfg.Sink.TryLock(ctx)
	if err != nil {
		s.running.Unlock()
		if errors.Is(err, store.ErrLocked) {
			return nil, ErrRefreshInProgress
		}
		return nil, fmt.Errorf("failed to take refresh lock: %w", err)
	}
	return func() {
		release()
		s.running.Unlock()
	}, nil
}

func (s *Service) begin() time.Time {
	started := s.cfg.Clock.Now()
	s.setStatus(func(st *Status) {
		st.Running = true
		st.LastStarted = started
	})
	s.log.Info("refresh: started")
	return started
}

func (s *Service) runLocked(ctx context.Context, started time.Time) error {
	players, err := s.run(ctx)

	finished := s.cfg.Clock.Now()
	s.setStatus(func(st *Status) {
		st.Running = false
		st.LastFinished = finished
		st.LastError = ""
		if err != nil {
			st.LastError = err.Error()
		} else {
			st.Players = players
		}
	})
	MetricRefreshDuration.Observe(finished.Sub(started).Seconds())
	if err != nil {
		MetricRefreshTotal.WithLabelValues("error").Inc()
		s.log.Error("refresh: failed", "error", err, "duration", finished.Sub(started))
		return err
	}
	MetricRefreshTotal.WithLabelValues("success").Inc()
	MetricLastSuccess.Set(float64(finished.Unix()))
	s.log.Info("refresh: completed", "players", players, "duration", finished.Sub(started))
	s.invalidate()
	return nil
}

func (s *Service) run(ctx context.Context) (int, error) {
	bootstrap, err := s.cfg.Source.Bootstrap(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch bootstrap: %w", err)
	}
	fixtures, err := s.cfg.Source.Fixtures(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch fixtures: %w", err)
	}
	names := teamNames(bootstrap.Teams)

	group := s.summaryPool.NewGroupContext(ctx)
	for _, e := range bootstrap.Elements {
		id := e.ID
		group.SubmitErr(func() (playerTables, error) {
			summary, err := s.cfg.Source.ElementSummary(ctx, id)
			if err != nil {
				return playerTables{}, fmt.Errorf("failed to fetch summary for player %d: %w", id, err)
			}
			return buildPlayerTables(id, summary), nil
		})
	}
	results, err := group.Wait()
	if err != nil {
		return 0, err
	}

	var perPlayer playerTables
	for _, r := range results {
		perPlayer.history = append(perPlayer.history, r.history...)
		perPlayer.past = append(perPlayer.past, r.past...)
		perPlayer.future = append(perPlayer.future, r.future...)
	}

	data := []store.TableData{
		buildTeams(bootstrap.Teams, fixtures),
		buildPlayers(bootstrap.Elements, names),
		buildFixtures(fixtures, names),
	}
	data = append(data, perPlayer.tableData()...)

	if err := s.cfg.Sink.ReplaceAll(ctx, data); err != nil {
		return 0, fmt.Errorf("failed to load tables: %w", err)
	}
	return len(bootstrap.Elements), nil
}

// RefreshPlayer reloads one player's per-match and per-season rows. It is a
// no-op returning ErrRefreshInProgress while a full refresh runs.
func (s *Service) RefreshPlayer(ctx context.Context, playerID int) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	summary, err := s.cfg.Source.ElementSummary(ctx, playerID)
	if err != nil {
		MetricPlayerRefreshTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to fetch summary for player %d: %w", playerID, err)
	}
	if err := s.cfg.Sink.ReplacePlayerRows(ctx, playerID, buildPlayerTables(playerID, summary).tableData()); err != nil {
		MetricPlayerRefreshTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to load rows for player %d: %w", playerID, err)
	}
	MetricPlayerRefreshTotal.WithLabelValues("success").Inc()
	s.log.Debug("refresh: player refreshed", "player", playerID)
	return nil
}

func (s *Service) setStatus(fn func(*Status)) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	fn(&s.status)
}

func (s *Service) invalidate() {
	for _, inv := range s.cfg.Invalidate {
		inv.Invalidate()
	}
}
