// Package dynamodb implements persistence.Store on a single DynamoDB table.
//
// Every entity is one item keyed by "pk", the encoded entity key. Two
// partition attributes feed the secondary indexes used for ordered queries:
//   - kind_pk holds the entity kind; index "kind-<field>" ranges over <field>
//   - scope_pk holds "<parent>|<kind>"; index "scope-<field>" does the same
//     for children of one parent
//
// Queries without an order field use the "ent_name" range attribute.
// Ancestor queries resolve only the direct parent.
package dynamodb

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	attrPK    = "pk"
	attrKind  = "kind_pk"
	attrScope = "scope_pk"
	attrName  = "ent_name"

	// batchGetLimit is the BatchGetItem ceiling per request.
	batchGetLimit = 100
)

var reserved = map[string]bool{attrPK: true, attrKind: true, attrScope: true, attrName: true}

// API is the subset of the DynamoDB client the store uses.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
}

// StoreConfig holds table settings.
type StoreConfig struct {
	TableName      string
	ConsistentRead bool
	MaxRetries     int           // retries of unprocessed batch keys
	RetryBackoff   time.Duration // base delay, doubled per retry
}

// Store implements persistence.Store for DynamoDB.
type Store struct {
	client API
	config StoreConfig
	logger *zap.Logger
	tracer trace.Tracer
}

var _ persistence.Store = (*Store)(nil)

// NewStore creates a DynamoDB backed store.
func NewStore(client API, config StoreConfig, logger *zap.Logger) *Store {
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = 100 * time.Millisecond
	}
	return &Store{
		client: client,
		config: config,
		logger: logger,
		tracer: otel.Tracer("wbor/persistence/dynamodb"),
	}
}

// IndexName returns the secondary index that serves ordering on field.
func IndexName(scoped bool, field string) string {
	if field == "" {
		field = attrName
	}
	if scoped {
		return "scope-" + field
	}
	return "kind-" + field
}

func (s *Store) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("db.system", "dynamodb"), attribute.String("db.table", s.config.TableName))
	return s.tracer.Start(ctx, "dynamodb."+op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func itemKey(key persistence.Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPK: &types.AttributeValueMemberS{Value: key.Encode()},
	}
}

// Get retrieves a single record by key.
func (s *Store) Get(ctx context.Context, key persistence.Key) (rec *persistence.Record, err error) {
	ctx, span := s.startSpan(ctx, "GetItem", attribute.String("entity.key", key.Encode()))
	defer func() { endSpan(span, err) }()

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.config.TableName),
		Key:            itemKey(key),
		ConsistentRead: aws.Bool(s.config.ConsistentRead),
	})
	if err != nil {
		return nil, fmt.Errorf("DynamoDB GetItem failed: %w", err)
	}
	if out.Item == nil {
		return nil, persistence.ErrNoSuchEntity
	}
	return itemToRecord(out.Item)
}

// GetMulti retrieves records in the order of keys, nil where missing.
func (s *Store) GetMulti(ctx context.Context, keys []persistence.Key) (recs []*persistence.Record, err error) {
	ctx, span := s.startSpan(ctx, "BatchGetItem", attribute.Int("entity.count", len(keys)))
	defer func() { endSpan(span, err) }()

	found := make(map[string]*persistence.Record, len(keys))
	pending := make([]map[string]types.AttributeValue, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		enc := key.Encode()
		if seen[enc] {
			continue
		}
		seen[enc] = true
		pending = append(pending, itemKey(key))
	}

	for i := 0; i < len(pending); i += batchGetLimit {
		end := min(i+batchGetLimit, len(pending))
		if err := s.batchGetChunk(ctx, pending[i:end], found); err != nil {
			return nil, err
		}
	}

	recs = make([]*persistence.Record, len(keys))
	for i, key := range keys {
		recs[i] = found[key.Encode()]
	}
	return recs, nil
}

func (s *Store) batchGetChunk(ctx context.Context, keys []map[string]types.AttributeValue, found map[string]*persistence.Record) error {
	input := &dynamodb.BatchGetItemInput{
		RequestItems: map[string]types.KeysAndAttributes{
			s.config.TableName: {Keys: keys, ConsistentRead: aws.Bool(s.config.ConsistentRead)},
		},
	}

	for retry := 0; ; retry++ {
		out, err := s.client.BatchGetItem(ctx, input)
		if err != nil {
			return fmt.Errorf("DynamoDB BatchGetItem failed: %w", err)
		}
		for _, item := range out.Responses[s.config.TableName] {
			rec, err := itemToRecord(item)
			if err != nil {
				s.logger.Warn("skipping unreadable item", zap.Error(err))
				continue
			}
			found[rec.Key.Encode()] = rec
		}

		unprocessed := out.UnprocessedKeys[s.config.TableName].Keys
		if len(unprocessed) == 0 {
			return nil
		}
		if retry >= s.config.MaxRetries {
			return fmt.Errorf("DynamoDB BatchGetItem left %d keys unprocessed", len(unprocessed))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.config.RetryBackoff << retry):
		}
		input.RequestItems = map[string]types.KeysAndAttributes{
			s.config.TableName: {Keys: unprocessed, ConsistentRead: aws.Bool(s.config.ConsistentRead)},
		}
	}
}

// Put stores a record, completing an incomplete key.
func (s *Store) Put(ctx context.Context, rec persistence.Record) (key persistence.Key, err error) {
	rec.Key = persistence.CompleteKey(rec.Key)
	ctx, span := s.startSpan(ctx, "PutItem", attribute.String("entity.key", rec.Key.Encode()))
	defer func() { endSpan(span, err) }()

	item, err := recordToItem(rec)
	if err != nil {
		return persistence.Key{}, err
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.config.TableName),
		Item:      item,
	}); err != nil {
		return persistence.Key{}, fmt.Errorf("DynamoDB PutItem failed: %w", err)
	}

	s.logger.Debug("stored record", zap.String("key", rec.Key.Encode()))
	return rec.Key, nil
}

// Delete removes a record by key.
func (s *Store) Delete(ctx context.Context, key persistence.Key) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteItem", attribute.String("entity.key", key.Encode()))
	defer func() { endSpan(span, err) }()

	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.config.TableName),
		Key:       itemKey(key),
	}); err != nil {
		return fmt.Errorf("DynamoDB DeleteItem failed: %w", err)
	}
	return nil
}

type cursorData struct {
	Signature string         `json:"s"`
	LastKey   map[string]any `json:"k"`
}

// Query returns one page of matching records. Pages may be shorter than the
// limit when filters drop items; More reports whether the index has more.
func (s *Store) Query(ctx context.Context, q persistence.Query) (page *persistence.Page, err error) {
	ctx, span := s.startSpan(ctx, "Query",
		attribute.String("entity.kind", q.Kind),
		attribute.String("query.order", q.Order.Field))
	defer func() { endSpan(span, err) }()

	input, err := s.buildQuery(q)
	if err != nil {
		return nil, err
	}
	if q.Cursor != "" {
		start, err := decodeCursor(q.Cursor, q.Signature())
		if err != nil {
			return nil, persistence.ErrStaleCursor
		}
		input.ExclusiveStartKey = start
	}

	out, err := s.client.Query(ctx, input)
	if err != nil {
		var ae smithy.APIError
		if q.Cursor != "" && errors.As(err, &ae) && ae.ErrorCode() == "ValidationException" {
			return nil, persistence.ErrStaleCursor
		}
		return nil, fmt.Errorf("DynamoDB Query failed: %w", err)
	}

	page = &persistence.Page{Cursor: q.Cursor, More: len(out.LastEvaluatedKey) > 0}
	for _, item := range out.Items {
		rec, err := itemToRecord(item)
		if err != nil {
			s.logger.Warn("skipping unreadable item", zap.Error(err))
			continue
		}
		// Key conditions are inclusive and list equality is a substring
		// test server side, so recheck the exact semantics.
		if !persistence.MatchesAll(*rec, q) {
			continue
		}
		page.Records = append(page.Records, *rec)
	}
	if page.More {
		if page.Cursor, err = encodeCursor(out.LastEvaluatedKey, q.Signature()); err != nil {
			return nil, err
		}
	}

	s.logger.Debug("query completed",
		zap.String("kind", q.Kind),
		zap.Int("returned", len(page.Records)),
		zap.Int32("scanned", out.ScannedCount))
	return page, nil
}

func (s *Store) buildQuery(q persistence.Query) (*dynamodb.QueryInput, error) {
	hashAttr, hashValue := attrKind, q.Kind
	if q.Ancestor != nil {
		hashAttr, hashValue = attrScope, q.Ancestor.Encode()+"|"+q.Kind
	}
	rangeAttr := q.Order.Field
	if rangeAttr == "" {
		rangeAttr = attrName
	}

	keyCond := expression.Key(hashAttr).Equal(expression.Value(hashValue))
	var eq, lower, upper *persistence.Filter
	var rest []persistence.Filter
	for i := range q.Filters {
		f := q.Filters[i]
		if f.Field == rangeAttr {
			switch {
			case f.Op == persistence.OpEqual && eq == nil:
				eq = &f
				continue
			case f.Op == persistence.OpGreaterOrEqual && lower == nil:
				lower = &f
				continue
			case f.Op == persistence.OpLess && upper == nil:
				upper = &f
				continue
			}
		}
		rest = append(rest, f)
	}
	// An equality on the sort attribute pins the key; range bounds on the
	// same attribute are then plain filters.
	if eq != nil {
		for _, f := range []*persistence.Filter{lower, upper} {
			if f != nil {
				rest = append(rest, *f)
			}
		}
		lower, upper = nil, nil
	}
	var conds []expression.ConditionBuilder
	for _, f := range rest {
		cond, err := filterCondition(f)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}

	switch {
	case eq != nil:
		keyCond = keyCond.And(expression.Key(rangeAttr).Equal(expression.Value(exprValue(eq.Value))))
	case lower != nil && upper != nil:
		keyCond = keyCond.And(expression.Key(rangeAttr).Between(
			expression.Value(exprValue(lower.Value)), expression.Value(exprValue(upper.Value))))
	case lower != nil:
		keyCond = keyCond.And(expression.Key(rangeAttr).GreaterThanEqual(expression.Value(exprValue(lower.Value))))
	case upper != nil:
		keyCond = keyCond.And(expression.Key(rangeAttr).LessThan(expression.Value(exprValue(upper.Value))))
	}

	builder := expression.NewBuilder().WithKeyCondition(keyCond)
	switch len(conds) {
	case 0:
	case 1:
		builder = builder.WithFilter(conds[0])
	default:
		builder = builder.WithFilter(expression.And(conds[0], conds[1], conds[2:]...))
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build query expression: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.TableName),
		IndexName:                 aws.String(IndexName(q.Ancestor != nil, q.Order.Field)),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(!q.Order.Descending),
	}
	if q.Limit > 0 {
		input.Limit = aws.Int32(int32(q.Limit))
	}
	return input, nil
}

func filterCondition(f persistence.Filter) (expression.ConditionBuilder, error) {
	name := expression.Name(f.Field)
	v := expression.Value(exprValue(f.Value))
	switch f.Op {
	case persistence.OpEqual:
		return expression.Or(name.Equal(v), name.Contains(persistence.SortableString(f.Value))), nil
	case persistence.OpGreaterOrEqual:
		return name.GreaterThanEqual(v), nil
	case persistence.OpLess:
		return name.LessThan(v), nil
	}
	return expression.ConditionBuilder{}, fmt.Errorf("unsupported operator %q", f.Op)
}

// exprValue maps a filter value to the Go value whose marshalled form matches
// the stored attribute.
func exprValue(v any) any {
	switch v := v.(type) {
	case persistence.Key:
		return v.Encode()
	case time.Time:
		return persistence.SortableString(v)
	case int:
		return int64(v)
	}
	return v
}

func encodeCursor(lastKey map[string]types.AttributeValue, sig string) (string, error) {
	var plain map[string]any
	if err := attributevalue.UnmarshalMap(lastKey, &plain); err != nil {
		return "", fmt.Errorf("failed to unmarshal last evaluated key: %w", err)
	}
	data, err := json.Marshal(cursorData{Signature: sig, LastKey: plain})
	if err != nil {
		return "", fmt.Errorf("failed to encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

func decodeCursor(cursor, sig string) (map[string]types.AttributeValue, error) {
	data, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, err
	}
	var c cursorData
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if c.Signature != sig || len(c.LastKey) == 0 {
		return nil, errors.New("cursor belongs to another query")
	}
	return attributevalue.MarshalMap(c.LastKey)
}

// toAttribute converts a property value to its stored form. Times and keys
// are stored as sortable strings so index order matches value order.
func toAttribute(v any) (types.AttributeValue, error) {
	switch v := v.(type) {
	case string:
		return &types.AttributeValueMemberS{Value: v}, nil
	case persistence.Key:
		return &types.AttributeValueMemberS{Value: v.Encode()}, nil
	case time.Time:
		return &types.AttributeValueMemberS{Value: persistence.SortableString(v)}, nil
	case int64:
		return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}, nil
	case int:
		return &types.AttributeValueMemberN{Value: strconv.Itoa(v)}, nil
	case bool:
		return &types.AttributeValueMemberBOOL{Value: v}, nil
	case []string:
		list := make([]types.AttributeValue, len(v))
		for i, s := range v {
			list[i] = &types.AttributeValueMemberS{Value: s}
		}
		return &types.AttributeValueMemberL{Value: list}, nil
	}
	av, err := attributevalue.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal attribute value: %w", err)
	}
	return av, nil
}

func recordToItem(rec persistence.Record) (map[string]types.AttributeValue, error) {
	item := map[string]types.AttributeValue{
		attrPK:   &types.AttributeValueMemberS{Value: rec.Key.Encode()},
		attrKind: &types.AttributeValueMemberS{Value: rec.Key.Kind},
		attrName: &types.AttributeValueMemberS{Value: rec.Key.Name},
	}
	if rec.Key.Parent != "" {
		item[attrScope] = &types.AttributeValueMemberS{Value: rec.Key.Parent + "|" + rec.Key.Kind}
	}
	for name, v := range rec.Props {
		if reserved[name] {
			return nil, fmt.Errorf("property name %q is reserved", name)
		}
		if v == nil {
			continue
		}
		av, err := toAttribute(v)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		item[name] = av
	}
	return item, nil
}

func itemToRecord(item map[string]types.AttributeValue) (*persistence.Record, error) {
	pk, ok := item[attrPK].(*types.AttributeValueMemberS)
	if !ok {
		return nil, errors.New("missing or invalid pk attribute")
	}
	key, err := persistence.ParseKey(pk.Value)
	if err != nil {
		return nil, err
	}

	props := make(persistence.Properties, len(item))
	for name, av := range item {
		if reserved[name] {
			continue
		}
		var v any
		if err := attributevalue.Unmarshal(av, &v); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %q: %w", name, err)
		}
		props[name] = v
	}
	return &persistence.Record{Key: key, Props: props}, nil
}
