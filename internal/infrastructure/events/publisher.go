// Package events publishes station events to EventBridge.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"
)

// Source is the EventBridge source of every station event.
const Source = "wbor.station"

// batchSize is the PutEvents entry limit.
const batchSize = 10

// Event is one outbound event. Detail is marshalled to JSON.
type Event struct {
	Type    string
	Subject string // encoded key of the entity the event is about
	Time    time.Time
	Detail  any
}

// Publisher sends events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// PutEventsAPI is the subset of the EventBridge client the publisher uses.
type PutEventsAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventBridgePublisher implements Publisher on an EventBridge bus.
type EventBridgePublisher struct {
	client       PutEventsAPI
	eventBusName string
	logger       *zap.Logger
}

// NewEventBridgePublisher creates a publisher for one bus.
func NewEventBridgePublisher(client PutEventsAPI, eventBusName string, logger *zap.Logger) *EventBridgePublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBridgePublisher{client: client, eventBusName: eventBusName, logger: logger}
}

// Publish sends events in batches of ten.
func (p *EventBridgePublisher) Publish(ctx context.Context, events ...Event) error {
	for i := 0; i < len(events); i += batchSize {
		end := min(i+batchSize, len(events))
		if err := p.publishBatch(ctx, events[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *EventBridgePublisher) publishBatch(ctx context.Context, events []Event) error {
	entries := make([]types.PutEventsRequestEntry, 0, len(events))
	sent := make([]Event, 0, len(events))
	for _, event := range events {
		detail, err := json.Marshal(event.Detail)
		if err != nil {
			p.logger.Error("Failed to marshal event",
				zap.Error(err),
				zap.String("eventType", event.Type),
			)
			continue
		}
		entries = append(entries, types.PutEventsRequestEntry{
			EventBusName: aws.String(p.eventBusName),
			Source:       aws.String(Source),
			DetailType:   aws.String(event.Type),
			Detail:       aws.String(string(detail)),
			Time:         aws.Time(event.Time),
			Resources:    []string{fmt.Sprintf("wbor:%s", event.Subject)},
		})
		sent = append(sent, event)
	}
	if len(entries) == 0 {
		return nil
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
	if err != nil {
		return fmt.Errorf("failed to publish events to EventBridge: %w", err)
	}
	if result.FailedEntryCount > 0 {
		for i, entry := range result.Entries {
			if entry.ErrorCode != nil && i < len(sent) {
				p.logger.Error("Failed to publish event",
					zap.String("eventType", sent[i].Type),
					zap.String("errorCode", *entry.ErrorCode),
					zap.String("errorMessage", aws.ToString(entry.ErrorMessage)),
				)
			}
		}
		return fmt.Errorf("%d events failed to publish", result.FailedEntryCount)
	}

	p.logger.Debug("Events published to EventBridge",
		zap.Int("count", len(entries)),
		zap.String("eventBus", p.eventBusName),
	)
	return nil
}

// NoopPublisher drops every event. It backs local runs without a bus.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, ...Event) error { return nil }
