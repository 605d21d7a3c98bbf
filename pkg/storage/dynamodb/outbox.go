package dynamodb

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chris/debt-ledger-bot/pkg/models"
	"github.com/chris/debt-ledger-bot/pkg/storage"
)

const outboxUpdateCondition = "attribute_exists(id) AND #status <> :sent"

func outboxKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"id": stringAV(id)}
}

// GetOutboxItem retrieves an outbox item by id.
func (s *Store) GetOutboxItem(ctx context.Context, id string) (*models.OutboxItem, error) {
	result, err := s.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      tableName(s.Tables.Outbox),
		Key:            outboxKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox item from DynamoDB: %w", err)
	}
	if result.Item == nil {
		return nil, storage.ErrNotFound
	}

	var item models.OutboxItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outbox item: %w", err)
	}
	return &item, nil
}

// InsertOutboxItem writes a new item. Returns ErrAlreadyExists.
func (s *Store) InsertOutboxItem(ctx context.Context, item *models.OutboxItem) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox item: %w", err)
	}
	_, err = s.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           tableName(s.Tables.Outbox),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert outbox item: %w", err)
	}
	return nil
}

// MarkOutboxSent moves the item to sent. An item that is already sent is
// left alone.
func (s *Store) MarkOutboxSent(ctx context.Context, id string, now time.Time) error {
	ts := stringAV(now.UTC().Format(time.RFC3339Nano))
	_, err := s.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           tableName(s.Tables.Outbox),
		Key:                 outboxKey(id),
		UpdateExpression:    aws.String("SET #status = :sent, updated_at = :now, sent_at = :now"),
		ConditionExpression: aws.String(outboxUpdateCondition),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sent": stringAV(string(models.OutboxSent)),
			":now":  ts,
		},
	})
	if err == nil {
		return nil
	}
	if !isConditionFailed(err) {
		return fmt.Errorf("failed to mark outbox item sent: %w", err)
	}
	// Either missing or already sent.
	if _, err := s.GetOutboxItem(ctx, id); err != nil {
		return err
	}
	return nil
}

// MarkOutboxFailed records a failed attempt and bumps retry_count.
func (s *Store) MarkOutboxFailed(ctx context.Context, id string, lastError string, now time.Time) (*models.OutboxItem, error) {
	result, err := s.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           tableName(s.Tables.Outbox),
		Key:                 outboxKey(id),
		UpdateExpression:    aws.String("SET #status = :failed, last_error = :err, updated_at = :now ADD retry_count :one"),
		ConditionExpression: aws.String(outboxUpdateCondition),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed": stringAV(string(models.OutboxFailed)),
			":sent":   stringAV(string(models.OutboxSent)),
			":err":    stringAV(lastError),
			":now":    stringAV(now.UTC().Format(time.RFC3339Nano)),
			":one":    numberAV(1),
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		if !isConditionFailed(err) {
			return nil, fmt.Errorf("failed to mark outbox item failed: %w", err)
		}
		if _, getErr := s.GetOutboxItem(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, storage.ErrOutboxItemSent
	}

	var item models.OutboxItem
	if err := attributevalue.UnmarshalMap(result.Attributes, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outbox item: %w", err)
	}
	return &item, nil
}

// ListOutboxCandidates queries the status index once per retryable status.
func (s *Store) ListOutboxCandidates(ctx context.Context, maxRetries, limit int) ([]models.OutboxItem, error) {
	var out []models.OutboxItem
	for _, status := range []models.OutboxStatus{models.OutboxPending, models.OutboxFailed} {
		items, err := s.outboxByStatus(ctx, status, maxRetries, limit)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	return out, nil
}

func (s *Store) outboxByStatus(ctx context.Context, status models.OutboxStatus, maxRetries, limit int) ([]models.OutboxItem, error) {
	input := &dynamodb.QueryInput{
		TableName:              tableName(s.Tables.Outbox),
		IndexName:              aws.String(statusCreatedIndex),
		KeyConditionExpression: aws.String("#status = :status"),
		FilterExpression:       aws.String("retry_count < :max"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": stringAV(string(status)),
			":max":    numberAV(int64(maxRetries)),
		},
		ScanIndexForward: aws.Bool(true),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	var items []models.OutboxItem
	err := s.queryAll(ctx, input, func(page []map[string]types.AttributeValue) (bool, error) {
		var batch []models.OutboxItem
		if err := attributevalue.UnmarshalListOfMaps(page, &batch); err != nil {
			return false, fmt.Errorf("failed to unmarshal outbox items: %w", err)
		}
		items = append(items, batch...)
		return limit <= 0 || len(items) < limit, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query %s outbox items: %w", status, err)
	}

	// Items created in the same instant come back in index order; make the
	// tie-break match the other stores.
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
