// Package events turns canonical integration events into incident lifecycle
// transitions and publishes each outcome on an in-process watermill topic.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"

	"github.com/hookgate/hookgate/internal/core"
	"github.com/hookgate/hookgate/internal/jsoncodec"
	"github.com/hookgate/hookgate/internal/observability"
)

// Actions reported back to webhook callers.
const (
	ActionTriggered    = "triggered"
	ActionDeduplicated = "deduplicated"
	ActionAcknowledged = "acknowledged"
	ActionResolved     = "resolved"
	ActionIgnored      = "ignored"
)

// DefaultTopic carries one Notification per processed event.
const DefaultTopic = "integration.events"

// Processor applies a canonical event on behalf of an integration.
type Processor interface {
	ProcessEvent(ctx context.Context, event core.EventPayload, serviceID, integrationID string) (core.ProcessResult, error)
}

// IncidentStore persists incidents. *store.Store satisfies it.
type IncidentStore interface {
	FindOpenIncident(ctx context.Context, serviceID, dedupKey string) (*core.Incident, error)
	SaveIncident(ctx context.Context, incident *core.Incident) error
}

// Notification is the message body published for every processed event.
type Notification struct {
	ID            string            `json:"id"`
	Action        string            `json:"action"`
	IntegrationID string            `json:"integrationId"`
	ServiceID     string            `json:"serviceId"`
	IncidentID    string            `json:"incidentId,omitempty"`
	Event         core.EventPayload `json:"event"`
	ProcessedAt   time.Time         `json:"processedAt"`
}

// IncidentProcessor deduplicates events by service and dedup key.
type IncidentProcessor struct {
	Incidents IncidentStore
	Publisher message.Publisher
	Topic     string
	Clock     func() time.Time
	Logger    observability.Logger

	locks keyLocks
}

// NewIncidentProcessor returns a processor over incidents. A nil store keeps
// incidents in memory.
func NewIncidentProcessor(incidents IncidentStore, publisher message.Publisher) *IncidentProcessor {
	if incidents == nil {
		incidents = NewMemoryIncidents()
	}
	return &IncidentProcessor{
		Incidents: incidents,
		Publisher: publisher,
		Topic:     DefaultTopic,
	}
}

// ProcessEvent applies event and publishes the outcome.
func (p *IncidentProcessor) ProcessEvent(ctx context.Context, event core.EventPayload, serviceID, integrationID string) (core.ProcessResult, error) {
	result, err := p.apply(ctx, event, serviceID)
	if err != nil {
		return core.ProcessResult{}, err
	}

	p.publish(ctx, Notification{
		ID:            NewID(),
		Action:        result.Action,
		IntegrationID: integrationID,
		ServiceID:     serviceID,
		IncidentID:    incidentID(result.Incident),
		Event:         event,
		ProcessedAt:   p.now(),
	})
	return result, nil
}

func (p *IncidentProcessor) apply(ctx context.Context, event core.EventPayload, serviceID string) (core.ProcessResult, error) {
	dedupKey := event.DedupKey
	if dedupKey == "" && event.EventAction == core.EventTrigger {
		dedupKey = NewID()
	}

	// Find and save must not interleave for the same incident.
	unlock := p.locks.lock(serviceID + "\x00" + dedupKey)
	defer unlock()

	var existing *core.Incident
	if dedupKey != "" {
		found, err := p.Incidents.FindOpenIncident(ctx, serviceID, dedupKey)
		if err != nil {
			return core.ProcessResult{}, fmt.Errorf("find open incident: %w", err)
		}
		existing = found
	}

	now := p.now()
	switch event.EventAction {
	case core.EventTrigger:
		if existing != nil {
			return core.ProcessResult{Action: ActionDeduplicated, Incident: existing}, nil
		}
		incident := &core.Incident{
			ID:        NewID(),
			DedupKey:  dedupKey,
			ServiceID: serviceID,
			Title:     event.Payload.Summary,
			Status:    core.IncidentOpen,
			Urgency:   urgencyFor(event.Payload.Severity),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := p.Incidents.SaveIncident(ctx, incident); err != nil {
			return core.ProcessResult{}, fmt.Errorf("create incident: %w", err)
		}
		return core.ProcessResult{Action: ActionTriggered, Incident: incident}, nil

	case core.EventResolve, core.EventAcknowledge:
		if existing == nil {
			return core.ProcessResult{Action: ActionIgnored}, nil
		}
		updated := *existing
		updated.UpdatedAt = now
		action := ActionResolved
		updated.Status = core.IncidentResolved
		if event.EventAction == core.EventAcknowledge {
			action = ActionAcknowledged
			updated.Status = core.IncidentAcknowledged
		}
		if err := p.Incidents.SaveIncident(ctx, &updated); err != nil {
			return core.ProcessResult{}, fmt.Errorf("update incident: %w", err)
		}
		return core.ProcessResult{Action: action, Incident: &updated}, nil

	default:
		return core.ProcessResult{Action: ActionIgnored}, nil
	}
}

// keyLocks hands out one mutex per key and drops it once nobody holds or
// waits for it.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyLocks) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// publish is best effort: the incident transition already happened.
func (p *IncidentProcessor) publish(ctx context.Context, n Notification) {
	if p.Publisher == nil {
		return
	}

	body, err := jsoncodec.Marshal(n)
	if err != nil {
		p.logger().Warn("integration.event_encode_failed", zap.Error(err))
		return
	}

	msg := message.NewMessage(n.ID, body)
	msg.Metadata.Set("action", n.Action)
	msg.Metadata.Set("integration_id", n.IntegrationID)
	msg.SetContext(ctx)

	topic := p.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	if err := p.Publisher.Publish(topic, msg); err != nil {
		p.logger().Warn("integration.event_publish_failed",
			zap.String("topic", topic),
			zap.String("integration_id", n.IntegrationID),
			zap.Error(err))
	}
}

func urgencyFor(severity core.Severity) string {
	if severity == core.SeverityCritical {
		return "HIGH"
	}
	return "LOW"
}

func incidentID(incident *core.Incident) string {
	if incident == nil {
		return ""
	}
	return incident.ID
}

func (p *IncidentProcessor) now() time.Time {
	if p.Clock != nil {
		return p.Clock()
	}
	return time.Now().UTC()
}

func (p *IncidentProcessor) logger() observability.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return observability.Server()
}

// MemoryIncidents is a process-local IncidentStore.
type MemoryIncidents struct {
	mu        sync.RWMutex
	incidents map[string]*core.Incident
}

// NewMemoryIncidents returns an empty in-memory incident store.
func NewMemoryIncidents() *MemoryIncidents {
	return &MemoryIncidents{incidents: make(map[string]*core.Incident)}
}

func (m *MemoryIncidents) FindOpenIncident(_ context.Context, serviceID, dedupKey string) (*core.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *core.Incident
	for _, inc := range m.incidents {
		if inc.ServiceID != serviceID || inc.DedupKey != dedupKey || inc.Status == core.IncidentResolved {
			continue
		}
		if latest == nil || inc.CreatedAt.After(latest.CreatedAt) {
			latest = inc
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *MemoryIncidents) SaveIncident(_ context.Context, incident *core.Incident) error {
	if incident == nil || incident.ID == "" {
		return fmt.Errorf("incident id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *incident
	m.incidents[incident.ID] = &cp
	return nil
}
