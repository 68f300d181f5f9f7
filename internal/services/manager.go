// Package services owns the current fact set and exposes the query surface
// the CLI and report read from.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/samber/lo"

	"github.com/j-veylop/spendlens/internal/config"
	"github.com/j-veylop/spendlens/internal/db"
	"github.com/j-veylop/spendlens/internal/logger"
	"github.com/j-veylop/spendlens/internal/models"
	"github.com/j-veylop/spendlens/internal/services/aggregate"
	"github.com/j-veylop/spendlens/internal/services/anomaly"
	"github.com/j-veylop/spendlens/internal/services/forecast"
	"github.com/j-veylop/spendlens/internal/services/normalize"
	"github.com/j-veylop/spendlens/internal/services/recommend"
	"github.com/j-veylop/spendlens/internal/services/reconcile"
	"github.com/j-veylop/spendlens/internal/services/snapshot"
	"github.com/j-veylop/spendlens/internal/services/waste"
)

// ErrNoSnapshot is returned by queries issued before any snapshot loaded.
var ErrNoSnapshot = errors.New("no snapshot loaded")

type (
	// SnapshotLoadedEvent is emitted after a snapshot replaced the fact set.
	SnapshotLoadedEvent struct {
		Source      string
		GeneratedAt time.Time
		Stats       FactStats
	}

	// CriticalRecommendationsEvent is emitted when a reload surfaces
	// critical recommendations that the previous snapshot did not have.
	CriticalRecommendationsEvent struct {
		Recommendations []models.Recommendation
	}

	// ErrorEvent is emitted when an error occurs in any service.
	ErrorEvent struct {
		Service string
		Error   error
	}
)

// FactStats counts the facts in a loaded set.
type FactStats struct {
	Entities  int
	Costs     int
	Totals    int
	Licenses  int
	Invoices  int
	Resources int
}

// ServiceEvent is the interface implemented by all service events.
type ServiceEvent interface {
	isServiceEvent()
}

func (SnapshotLoadedEvent) isServiceEvent()          {}
func (CriticalRecommendationsEvent) isServiceEvent() {}
func (ErrorEvent) isServiceEvent()                   {}

// Notifier sends a desktop notification.
type Notifier func(title, body string) error

func beeepNotifier(title, body string) error {
	return beeep.Notify(title, body, "")
}

// Manager holds the current FactSet and answers queries against it. A load
// swaps the whole set at once; concurrent queries see either the old or the
// new set, never a mix.
type Manager struct {
	mu          sync.RWMutex
	cfg         *config.Config
	catalog     *config.Catalog
	engine      *forecast.Engine
	facts       atomic.Pointer[models.FactSet]
	watcher     *snapshot.Watcher
	eventChan   chan ServiceEvent
	stopChan    chan struct{}
	subscribers []chan ServiceEvent
	notify      bool
	notifier    Notifier
	critical    map[string]bool
	closeOnce   sync.Once
}

// NewManager creates a manager with no snapshot loaded. A nil catalog means
// the built-in default.
func NewManager(cfg *config.Config, catalog *config.Catalog) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if catalog == nil {
		catalog = config.DefaultCatalog()
	}

	engine := forecast.NewEngine(cfg.Forecast.Alpha)
	if method := models.ForecastMethod(cfg.Forecast.Method); method != "" && !lo.Contains(engine.Methods(), method) {
		return nil, &forecast.UnknownMethodError{Method: string(method)}
	}

	return &Manager{
		cfg:       cfg,
		catalog:   catalog,
		engine:    engine,
		eventChan: make(chan ServiceEvent, 100),
		stopChan:  make(chan struct{}),
		notifier:  beeepNotifier,
		critical:  make(map[string]bool),
	}, nil
}

// SetNotify enables desktop notifications for new critical recommendations.
func (m *Manager) SetNotify(enabled bool) {
	m.mu.Lock()
	m.notify = enabled
	m.mu.Unlock()
}

// Load normalizes raw and replaces the current fact set. On failure the
// previous set stays in place.
func (m *Manager) Load(raw *models.RawSnapshot, source string) error {
	fs, err := normalize.Normalize(raw, m.catalog)
	if err != nil {
		err = fmt.Errorf("failed to normalize snapshot from %s: %w", source, err)
		logger.Error("snapshot rejected", "source", source, "error", err)
		m.broadcast(ErrorEvent{Service: "normalize", Error: err})
		return err
	}

	m.facts.Store(fs)
	stats := statsOf(fs)
	logger.Info("snapshot loaded", "source", source,
		"costs", stats.Costs, "licenses", stats.Licenses, "invoices", stats.Invoices)

	m.broadcast(SnapshotLoadedEvent{
		Source:      source,
		GeneratedAt: fs.GeneratedAt,
		Stats:       stats,
	})
	m.checkNotifications()
	return nil
}

// LoadFile loads a snapshot JSON file.
func (m *Manager) LoadFile(path string) error {
	raw, err := snapshot.LoadFile(path)
	if err != nil {
		m.broadcast(ErrorEvent{Service: "snapshot", Error: err})
		return err
	}
	return m.Load(raw, path)
}

// LoadDatabase loads the newest snapshot from the collector hand-off database.
func (m *Manager) LoadDatabase(ctx context.Context, database *db.DB) error {
	raw, err := database.LoadSnapshot(ctx)
	if err != nil {
		err = fmt.Errorf("failed to load snapshot from %s: %w", database.Path(), err)
		m.broadcast(ErrorEvent{Service: "db", Error: err})
		return err
	}
	return m.Load(raw, database.Path())
}

// Watch reloads the snapshot file at path each time it is rewritten.
func (m *Manager) Watch(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watcher != nil {
		return errors.New("already watching " + m.watcher.Path())
	}

	w, err := snapshot.NewWatcher(path, m.cfg.WatchDebounce)
	if err != nil {
		return err
	}
	m.watcher = w
	go m.routeEvents(w)
	return nil
}

// routeEvents applies watcher results until the manager closes.
func (m *Manager) routeEvents(w *snapshot.Watcher) {
	for {
		select {
		case event := <-w.Events():
			switch event.Type {
			case snapshot.EventLoaded:
				_ = m.Load(event.Snapshot, w.Path())
			case snapshot.EventError:
				m.broadcast(ErrorEvent{Service: "snapshot", Error: event.Error})
			}
		case <-m.stopChan:
			return
		}
	}
}

// Facts returns the current fact set, or nil before the first load.
func (m *Manager) Facts() *models.FactSet {
	return m.facts.Load()
}

func (m *Manager) current() (*models.FactSet, error) {
	fs := m.facts.Load()
	if fs == nil {
		return nil, ErrNoSnapshot
	}
	return fs, nil
}

// asOf is the evaluation instant for relative windows.
func asOf(fs *models.FactSet) time.Time {
	if !fs.GeneratedAt.IsZero() {
		return fs.GeneratedAt
	}
	return time.Now().UTC()
}

// Aggregate answers a cost selection.
func (m *Manager) Aggregate(sel models.Selection) (models.TimeSeries, error) {
	fs, err := m.current()
	if err != nil {
		return models.TimeSeries{}, err
	}
	return aggregate.Aggregate(fs, sel), nil
}

// ReconcileOptions maps configuration onto ledger options.
func (m *Manager) ReconcileOptions() reconcile.Options {
	return reconcile.Options{
		OverThreshold:  m.cfg.Reconcile.OverThreshold,
		UnderThreshold: m.cfg.Reconcile.UnderThreshold,
		CreditPolicy:   reconcile.CreditPolicy(m.cfg.Reconcile.CreditPolicy),
	}
}

// Reconcile builds the ledger. Months, when given, fixes the window.
func (m *Manager) Reconcile(months ...string) ([]models.ReconciliationRow, error) {
	fs, err := m.current()
	if err != nil {
		return nil, err
	}
	opts := m.ReconcileOptions()
	opts.Months = months
	opts.SubscriptionEntities = fs.SubscriptionEntities()
	return reconcile.Reconcile(fs.Invoices, fs.MonthlyTotals, fs.Entities, opts), nil
}

// WasteOptions maps configuration onto analyzer options.
func (m *Manager) WasteOptions() waste.Options {
	return waste.Options{
		CriticalDays:         m.cfg.Waste.CriticalDays,
		HighDays:             m.cfg.Waste.HighDays,
		MediumDays:           m.cfg.Waste.MediumDays,
		UtilizationThreshold: m.cfg.Waste.UtilizationThreshold,
		MinPrepaid:           m.cfg.Waste.MinPrepaid,
	}
}

// AnalyzeWaste reports inactive, underutilized and redundant licenses,
// optionally restricted to one entity.
func (m *Manager) AnalyzeWaste(entityID string) (models.WasteReport, error) {
	fs, err := m.current()
	if err != nil {
		return models.WasteReport{}, err
	}
	licenses, capacities := fs.Licenses, fs.SkuCapacities
	if entityID != "" {
		licenses = lo.Filter(licenses, func(l models.LicenseFact, _ int) bool { return l.EntityID == entityID })
		capacities = lo.Filter(capacities, func(c models.SkuCapacity, _ int) bool { return c.EntityID == entityID })
	}
	opts := m.WasteOptions()
	opts.AsOf = asOf(fs)
	return waste.Analyze(licenses, capacities, opts), nil
}

// ForecastHistory is the monthly series a forecast over sel is fitted to.
// Only calendar months the selection covers in full are kept, so the month
// still in progress never drags the projection down.
func (m *Manager) ForecastHistory(sel models.Selection) (models.TimeSeries, error) {
	fs, err := m.current()
	if err != nil {
		return models.TimeSeries{}, err
	}
	sel.Granularity = models.GranularityMonth
	ts := aggregate.Aggregate(fs, sel)
	if ts.Invalid {
		return ts, fmt.Errorf("%w: %s", aggregate.ErrInvalidSelection, ts.Reason)
	}
	return aggregate.CompleteMonths(ts), nil
}

// Forecast projects the complete months of sel. Empty method and zero
// horizon use the configured defaults.
func (m *Manager) Forecast(sel models.Selection, method models.ForecastMethod, horizon int) ([]models.ForecastPoint, error) {
	ts, err := m.ForecastHistory(sel)
	if err != nil {
		return nil, err
	}
	if method == "" {
		method = m.DefaultForecastMethod()
	}
	if horizon == 0 {
		horizon = m.cfg.Forecast.Horizon
	}
	return m.engine.ForecastSeries(ts, method, horizon)
}

// DefaultForecastMethod is the method used when a caller names none.
func (m *Manager) DefaultForecastMethod() models.ForecastMethod {
	return models.ForecastMethod(m.cfg.Forecast.Method)
}

// ForecastMethods lists the registered forecast methods.
func (m *Manager) ForecastMethods() []models.ForecastMethod {
	return m.engine.Methods()
}

// RecommendOptions maps configuration and catalog onto rule options.
func (m *Manager) RecommendOptions() recommend.Options {
	opts := recommend.DefaultOptions()
	opts.InactiveCriticalCount = m.cfg.Recommend.InactiveCriticalCount
	opts.DevTestDiscount = m.cfg.Recommend.DevTestDiscount
	opts.AnomalySensitivity = anomaly.ParseSensitivity(m.cfg.Recommend.AnomalySensitivity)
	opts.RequiredTags = m.catalog.RequiredTags
	opts.DevTestMarkers = m.catalog.DevTestMarkers
	opts.DevTestOffers = m.catalog.DevTestOffers
	return opts
}

// Recommendations runs every rule over the trailing twelve months of spend,
// the waste report, the ledger and the resource inventory.
func (m *Manager) Recommendations() ([]models.Recommendation, error) {
	fs, err := m.current()
	if err != nil {
		return nil, err
	}
	return m.recommendationsFor(fs), nil
}

func (m *Manager) recommendationsFor(fs *models.FactSet) []models.Recommendation {
	now := asOf(fs)

	wasteOpts := m.WasteOptions()
	wasteOpts.AsOf = now

	ledgerOpts := m.ReconcileOptions()
	ledgerOpts.SubscriptionEntities = fs.SubscriptionEntities()

	in := recommend.Input{
		CostAggregate: aggregate.Aggregate(fs, models.Selection{
			Period:      models.Period12M,
			Granularity: models.GranularityMonth,
			AsOf:        now,
		}),
		Waste:          waste.Analyze(fs.Licenses, fs.SkuCapacities, wasteOpts),
		Reconciliation: reconcile.Reconcile(fs.Invoices, fs.MonthlyTotals, fs.Entities, ledgerOpts),
		Resources:      fs.Resources,
	}
	return recommend.Generate(in, m.RecommendOptions())
}

// checkNotifications compares critical recommendations with those seen on
// the previous load and notifies about new ones.
func (m *Manager) checkNotifications() {
	fs := m.facts.Load()
	if fs == nil {
		return
	}
	critical := lo.Filter(m.recommendationsFor(fs), func(r models.Recommendation, _ int) bool {
		return r.Priority == models.PriorityCritical
	})

	m.mu.Lock()
	fresh := lo.Filter(critical, func(r models.Recommendation, _ int) bool { return !m.critical[r.ID] })
	m.critical = lo.SliceToMap(critical, func(r models.Recommendation) (string, bool) { return r.ID, true })
	notify, notifier := m.notify, m.notifier
	m.mu.Unlock()

	if len(fresh) == 0 {
		return
	}
	m.broadcast(CriticalRecommendationsEvent{Recommendations: fresh})

	if !notify || notifier == nil {
		return
	}
	for _, r := range fresh {
		title := "Critical: " + r.Title
		body := fmt.Sprintf("Estimated savings %s per month", models.FormatMoney(r.EstimatedMonthlySavings))
		if err := notifier(title, body); err != nil {
			logger.Warn("notification failed", "error", err)
		}
	}
}

func statsOf(fs *models.FactSet) FactStats {
	return FactStats{
		Entities:  len(fs.Entities),
		Costs:     len(fs.Costs),
		Totals:    len(fs.MonthlyTotals),
		Licenses:  len(fs.Licenses),
		Invoices:  len(fs.Invoices),
		Resources: len(fs.Resources),
	}
}

// broadcast sends an event to all subscribers.
func (m *Manager) broadcast(event ServiceEvent) {
	// Send to main event channel
	select {
	case m.eventChan <- event:
	default:
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber channel full, skip
		}
	}
}

// Events returns the manager's own event channel.
func (m *Manager) Events() <-chan ServiceEvent {
	return m.eventChan
}

// Subscribe creates a channel for receiving service events.
func (m *Manager) Subscribe() chan ServiceEvent {
	ch := make(chan ServiceEvent, 50)

	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()

	return ch
}

// Unsubscribe removes a subscriber channel.
func (m *Manager) Unsubscribe(ch chan ServiceEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, sub := range m.subscribers {
		if sub == ch {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

// Close stops watching and closes all subscriber channels.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.stopChan)

		m.mu.Lock()
		for _, sub := range m.subscribers {
			close(sub)
		}
		m.subscribers = nil
		w := m.watcher
		m.mu.Unlock()

		if w != nil {
			err = w.Close()
		}
	})
	return err
}
