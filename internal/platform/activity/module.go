package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GoCodeAlone/modular"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/hadibuxm/jadeed/internal/platform/store"
)

// ModuleName is the module name and observer id.
const ModuleName = "activity"

var errStoreUnavailable = errors.New("store service unavailable")

// Event is one persisted audit entry.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Source     string          `json:"source"`
	Subject    string          `json:"subject"`
	Data       json.RawMessage `json:"data"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Log persists CloudEvents and lists them back.
type Log struct {
	store *store.Store
}

// NewLog creates an activity log on s.
func NewLog(s *store.Store) *Log {
	return &Log{store: s}
}

// Record stores event.
func (l *Log) Record(ctx context.Context, event cloudevents.Event) error {
	data := "{}"
	if raw := event.Data(); len(raw) > 0 {
		data = string(raw)
	}
	occurred := event.Time().UTC()
	if occurred.IsZero() {
		occurred = l.store.Now()
	}
	// Events are written outside any caller transaction.
	_, err := l.store.DB().ExecContext(ctx,
		`INSERT INTO activity_events (id, event_type, source, subject, data, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		store.NewID(), event.Type(), event.Source(), event.Subject(), data, occurred)
	if err != nil {
		return fmt.Errorf("failed to record activity event: %w", err)
	}
	return nil
}

// List returns the newest events for subject.
func (l *Log) List(ctx context.Context, subject string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.store.Q(ctx).QueryContext(ctx,
		`SELECT id, event_type, source, subject, data, occurred_at
		 FROM activity_events WHERE subject = $1
		 ORDER BY occurred_at DESC LIMIT $2`, subject, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		var data string
		if err := rows.Scan(&e.ID, &e.Type, &e.Source, &e.Subject, &data, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity event: %w", err)
		}
		e.Data = json.RawMessage(data)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Module observes every application event and writes it to the activity log.
type Module struct {
	logger modular.Logger
	log    *Log
}

// NewModule creates the activity module.
func NewModule() *Module {
	return &Module{}
}

// Name returns the module name
func (m *Module) Name() string {
	return ModuleName
}

// Init resolves the store and registers the module as an observer.
func (m *Module) Init(app modular.Application) error {
	m.logger = app.Logger()

	var s *store.Store
	if err := app.GetService(store.ServiceName, &s); err != nil {
		return fmt.Errorf("failed to get store service: %w", err)
	}
	if s == nil {
		return errStoreUnavailable
	}
	m.log = NewLog(s)

	if subject, ok := app.(modular.Subject); ok {
		if err := subject.RegisterObserver(m); err != nil {
			return fmt.Errorf("failed to register activity observer: %w", err)
		}
	}
	return nil
}

// OnEvent persists Jadeed events. Framework lifecycle events are only logged.
func (m *Module) OnEvent(ctx context.Context, event cloudevents.Event) error {
	m.logger.Debug("Activity event", "type", event.Type(), "source", event.Source(), "subject", event.Subject())
	if !strings.HasPrefix(event.Source(), "jadeed.") {
		return nil
	}
	// Observers may run after the emitting request has finished.
	if err := m.log.Record(context.WithoutCancel(ctx), event); err != nil {
		m.logger.Error("Failed to persist activity event", "type", event.Type(), "error", err)
		return err
	}
	return nil
}

// ObserverID implements modular.Observer
func (m *Module) ObserverID() string {
	return ModuleName
}

// Log returns the activity log.
func (m *Module) Log() *Log {
	return m.log
}

// Dependencies returns the names of modules this module depends on
func (m *Module) Dependencies() []string {
	return []string{store.ModuleName}
}

// ProvidesServices declares services provided by this module
func (m *Module) ProvidesServices() []modular.ServiceProvider {
	return []modular.ServiceProvider{
		{Name: "activity.log", Description: "Persisted domain event log", Instance: m.log},
	}
}

// RequiresServices declares services required by this module
func (m *Module) RequiresServices() []modular.ServiceDependency {
	return []modular.ServiceDependency{{Name: store.ServiceName, Required: true}}
}
