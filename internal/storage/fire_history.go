// Package storage keeps the audit trail of trigger fires in DynamoDB.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ignite/stayadmin/internal/domain"
)

// DynamoAPI is the subset of the DynamoDB client used here.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// FireItem is one processed booking event.
// PK is BOOKING#<id>, SK is <RFC3339Nano time>#<trigger type>.
type FireItem struct {
	PK          string `dynamodbav:"PK"`
	SK          string `dynamodbav:"SK"`
	BookingID   string `dynamodbav:"BookingID"`
	TriggerType string `dynamodbav:"TriggerType"`
	Fired       int    `dynamodbav:"Fired"`
	Failed      int    `dynamodbav:"Failed"`
	Data        string `dynamodbav:"Data"`
	Timestamp   string `dynamodbav:"Timestamp"`
	TTL         int64  `dynamodbav:"TTL,omitempty"`
}

// FireEvent is a decoded FireItem.
type FireEvent struct {
	BookingID   string              `json:"booking_id"`
	TriggerType domain.TriggerType  `json:"trigger_type"`
	ProcessedAt time.Time           `json:"processed_at"`
	Results     []domain.FireResult `json:"results"`
}

// FireHistory implements notification.FireHistory on a DynamoDB table.
type FireHistory struct {
	client    DynamoAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

// NewFireHistory wraps a DynamoDB client. A zero ttl keeps items forever.
func NewFireHistory(client DynamoAPI, tableName string, ttl time.Duration) *FireHistory {
	return &FireHistory{client: client, tableName: tableName, ttl: ttl, now: time.Now}
}

// NewFireHistoryFromRegion loads the default AWS config for region.
func NewFireHistoryFromRegion(ctx context.Context, tableName, region string, ttl time.Duration) (*FireHistory, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewFireHistory(dynamodb.NewFromConfig(cfg), tableName, ttl), nil
}

func bookingPK(bookingID string) string { return "BOOKING#" + bookingID }

// Record stores the results of one processed event. Events where no rule
// fired are stored too so the audit trail shows the evaluation happened.
func (h *FireHistory) Record(ctx context.Context, bookingID string, t domain.TriggerType, results []domain.FireResult) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshaling fire results: %w", err)
	}

	now := h.now().UTC()
	item := FireItem{
		PK:          bookingPK(bookingID),
		SK:          now.Format(time.RFC3339Nano) + "#" + string(t),
		BookingID:   bookingID,
		TriggerType: string(t),
		Data:        string(data),
		Timestamp:   now.Format(time.RFC3339),
	}
	for _, r := range results {
		if r.Success {
			item.Fired++
		} else {
			item.Failed++
		}
	}
	if h.ttl > 0 {
		item.TTL = now.Add(h.ttl).Unix()
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshaling item: %w", err)
	}
	if _, err := h.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(h.tableName),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("putting item to DynamoDB: %w", err)
	}
	return nil
}

// List returns the most recent events for a booking, newest first.
func (h *FireHistory) List(ctx context.Context, bookingID string, limit int) ([]FireEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	out, err := h.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(h.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: bookingPK(bookingID)},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("querying DynamoDB: %w", err)
	}

	events := make([]FireEvent, 0, len(out.Items))
	for _, raw := range out.Items {
		var item FireItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, fmt.Errorf("unmarshaling item: %w", err)
		}
		ev := FireEvent{BookingID: item.BookingID, TriggerType: domain.TriggerType(item.TriggerType)}
		ev.ProcessedAt, _ = time.Parse(time.RFC3339, item.Timestamp)
		if err := json.Unmarshal([]byte(item.Data), &ev.Results); err != nil {
			return nil, fmt.Errorf("decoding fire results: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}
