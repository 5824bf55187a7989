package activity

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/GoCodeAlone/modular"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadibuxm/jadeed/internal/platform/store/storetest"
)

// syncSubject delivers events to observers on the caller's goroutine.
type syncSubject struct {
	observers []modular.Observer
}

func (s *syncSubject) RegisterObserver(o modular.Observer, _ ...string) error {
	s.observers = append(s.observers, o)
	return nil
}

func (s *syncSubject) UnregisterObserver(modular.Observer) error { return nil }

func (s *syncSubject) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	for _, o := range s.observers {
		if err := o.OnEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (s *syncSubject) GetObservers() []modular.ObserverInfo { return nil }

func TestEmitter_PersistsThroughObserver(t *testing.T) {
	st := storetest.New(t)
	m := &Module{logger: storetest.Logger{}, log: NewLog(st)}
	subject := &syncSubject{}
	require.NoError(t, subject.RegisterObserver(m))

	emitter := NewSubjectEmitter(subject, "productmgmt", storetest.Logger{})
	emitter.Emit(context.Background(), "com.jadeed.workflow.created", "step-1", map[string]any{"title": "Vision"})
	emitter.Emit(context.Background(), "com.jadeed.workflow.completed", "step-1", nil)
	emitter.Emit(context.Background(), "com.jadeed.workflow.created", "step-2", nil)

	events, err := m.Log().List(context.Background(), "step-1", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, "jadeed.productmgmt", e.Source)
		assert.Equal(t, "step-1", e.Subject)
	}

	var payload map[string]any
	for _, e := range events {
		if e.Type == "com.jadeed.workflow.created" {
			require.NoError(t, json.Unmarshal(e.Data, &payload))
		}
	}
	assert.Equal(t, "Vision", payload["title"])
}

func TestModule_IgnoresFrameworkEvents(t *testing.T) {
	st := storetest.New(t)
	m := &Module{logger: storetest.Logger{}, log: NewLog(st)}

	event := modular.NewCloudEvent("com.modular.module.started", "application", nil, nil)
	event.SetSubject("app")
	require.NoError(t, m.OnEvent(context.Background(), event))

	events, err := m.Log().List(context.Background(), "app", 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEmitter_NilIsSafe(t *testing.T) {
	var e *Emitter
	assert.NotPanics(t, func() {
		e.Emit(context.Background(), "x", "y", nil)
	})
}
