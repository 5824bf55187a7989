// Package activity turns domain changes into CloudEvents and keeps an audit
// trail of them.
package activity

import (
	"context"

	"github.com/GoCodeAlone/modular"
)

// Emitter publishes domain events to the application's observers.
// A nil *Emitter is valid and drops everything.
type Emitter struct {
	subject modular.Subject
	source  string
	logger  modular.Logger
}

// NewEmitter returns an emitter for source. It drops events when app is not
// observable.
func NewEmitter(app modular.Application, source string) *Emitter {
	e := &Emitter{source: "jadeed." + source, logger: app.Logger()}
	if subject, ok := app.(modular.Subject); ok {
		e.subject = subject
	}
	return e
}

// NewSubjectEmitter returns an emitter bound to subject directly.
func NewSubjectEmitter(subject modular.Subject, source string, logger modular.Logger) *Emitter {
	return &Emitter{subject: subject, source: "jadeed." + source, logger: logger}
}

// Emit publishes eventType about subject with data as the payload.
func (e *Emitter) Emit(ctx context.Context, eventType, subject string, data map[string]any) {
	if e == nil || e.subject == nil {
		return
	}
	event := modular.NewCloudEvent(eventType, e.source, data, nil)
	if subject != "" {
		event.SetSubject(subject)
	}
	if err := e.subject.NotifyObservers(ctx, event); err != nil && e.logger != nil {
		e.logger.Warn("Failed to emit event", "type", eventType, "subject", subject, "error", err)
	}
}
