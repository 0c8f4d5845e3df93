package persistence

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hchapman/WBOR-sub000/internal/infrastructure/observability"
)

// InstrumentedStore records a span and the store metrics for every call. A
// missing entity on Get is not an error.
type InstrumentedStore struct {
	inner   Store
	metrics *observability.Collector
	tracer  trace.Tracer
}

// NewInstrumentedStore wraps inner. metrics may be nil; spans go to the global
// tracer provider.
func NewInstrumentedStore(inner Store, metrics *observability.Collector) *InstrumentedStore {
	return &InstrumentedStore{inner: inner, metrics: metrics, tracer: otel.Tracer("persistence")}
}

func (s *InstrumentedStore) start(ctx context.Context, op, kind string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	attrs = append(attrs, attribute.String("db.operation", op), attribute.String("entity.kind", kind))
	ctx, span := s.tracer.Start(ctx, "store."+op, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
	return ctx, span, time.Now()
}

func (s *InstrumentedStore) finish(span trace.Span, op, kind string, start time.Time, err error) {
	if errors.Is(err, ErrNoSuchEntity) {
		err = nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	if s.metrics != nil {
		s.metrics.ObserveStore(op, kind, start, err)
	}
}

func (s *InstrumentedStore) Get(ctx context.Context, key Key) (*Record, error) {
	ctx, span, start := s.start(ctx, "get", key.Kind, attribute.String("entity.key", key.Encode()))
	rec, err := s.inner.Get(ctx, key)
	s.finish(span, "get", key.Kind, start, err)
	return rec, err
}

func (s *InstrumentedStore) GetMulti(ctx context.Context, keys []Key) ([]*Record, error) {
	kind := ""
	if len(keys) > 0 {
		kind = keys[0].Kind
	}
	ctx, span, start := s.start(ctx, "get_multi", kind, attribute.Int("entity.count", len(keys)))
	recs, err := s.inner.GetMulti(ctx, keys)
	s.finish(span, "get_multi", kind, start, err)
	return recs, err
}

func (s *InstrumentedStore) Put(ctx context.Context, rec Record) (Key, error) {
	ctx, span, start := s.start(ctx, "put", rec.Key.Kind)
	key, err := s.inner.Put(ctx, rec)
	s.finish(span, "put", rec.Key.Kind, start, err)
	return key, err
}

func (s *InstrumentedStore) Delete(ctx context.Context, key Key) error {
	ctx, span, start := s.start(ctx, "delete", key.Kind, attribute.String("entity.key", key.Encode()))
	err := s.inner.Delete(ctx, key)
	s.finish(span, "delete", key.Kind, start, err)
	return err
}

func (s *InstrumentedStore) Query(ctx context.Context, q Query) (*Page, error) {
	ctx, span, start := s.start(ctx, "query", q.Kind,
		attribute.Int("query.filters", len(q.Filters)),
		attribute.Int("query.limit", q.Limit),
		attribute.Bool("query.cursor", q.Cursor != ""),
	)
	page, err := s.inner.Query(ctx, q)
	if err == nil && page != nil {
		span.SetAttributes(attribute.Int("query.records", len(page.Records)))
	}
	s.finish(span, "query", q.Kind, start, err)
	return page, err
}
