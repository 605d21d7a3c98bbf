package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chris/debt-ledger-bot/pkg/models"
	"github.com/chris/debt-ledger-bot/pkg/storage"
)

// AppendEntry writes the entry and, when customer is given, creates the
// customer record if it is missing. Both happen in one transaction; the
// customer upsert only fills attributes that are not already set.
func (s *Store) AppendEntry(ctx context.Context, entry *models.LedgerEntry, customer *models.Customer) error {
	entryAV, err := attributevalue.MarshalMap(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger entry: %w", err)
	}

	items := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:           tableName(s.Tables.Ledger),
			Item:                entryAV,
			ConditionExpression: aws.String("attribute_not_exists(entry_id)"),
		},
	}}
	if customer != nil {
		items = append(items, types.TransactWriteItem{
			Update: &types.Update{
				TableName:        tableName(s.Tables.Customers),
				Key:              customerKey(entry.Phone),
				UpdateExpression: aws.String("SET origin = if_not_exists(origin, :origin), created_by = if_not_exists(created_by, :by), created_at = if_not_exists(created_at, :now)"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":origin": stringAV(string(customer.Origin)),
					":by":     numberAV(customer.CreatedBy),
					":now":    stringAV(customer.CreatedAt.UTC().Format(time.RFC3339Nano)),
				},
			},
		})
	}

	_, err = s.Client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		if cancelledAt(err, 0) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

func (s *Store) entriesQuery(phone string, currency models.Currency, newestFirst bool) *dynamodb.QueryInput {
	input := &dynamodb.QueryInput{
		TableName:              tableName(s.Tables.Ledger),
		KeyConditionExpression: aws.String("phone = :phone"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":phone": stringAV(phone),
		},
		ScanIndexForward: aws.Bool(!newestFirst),
		ConsistentRead:   aws.Bool(true),
	}
	if currency != "" {
		input.FilterExpression = aws.String("currency = :currency")
		input.ExpressionAttributeValues[":currency"] = stringAV(string(currency))
	}
	return input
}

// ListEntries returns entries newest first. The currency filter runs after
// the page limit in DynamoDB, so pages are read until limit items match.
func (s *Store) ListEntries(ctx context.Context, phone string, currency models.Currency, limit int) ([]models.LedgerEntry, error) {
	input := s.entriesQuery(phone, currency, true)
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	var entries []models.LedgerEntry
	err := s.queryAll(ctx, input, func(items []map[string]types.AttributeValue) (bool, error) {
		var page []models.LedgerEntry
		if err := attributevalue.UnmarshalListOfMaps(items, &page); err != nil {
			return false, fmt.Errorf("failed to unmarshal ledger entries: %w", err)
		}
		entries = append(entries, page...)
		return limit <= 0 || len(entries) < limit, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// SumEntries folds every entry for (phone, currency) into a balance.
func (s *Store) SumEntries(ctx context.Context, phone string, currency models.Currency) (*models.Balance, error) {
	b := &models.Balance{Phone: phone, Currency: currency}
	err := s.queryAll(ctx, s.entriesQuery(phone, currency, false), func(items []map[string]types.AttributeValue) (bool, error) {
		var page []models.LedgerEntry
		if err := attributevalue.UnmarshalListOfMaps(items, &page); err != nil {
			return false, fmt.Errorf("failed to unmarshal ledger entries: %w", err)
		}
		for _, e := range page {
			b.Apply(e)
		}
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sum ledger entries: %w", err)
	}
	return b, nil
}

// EntryMark walks the (phone, currency) entries newest first, reading only
// entry_id. The sort key is the entry id, so the first matching item is the
// largest one.
func (s *Store) EntryMark(ctx context.Context, phone string, currency models.Currency) (models.EntryMark, error) {
	input := s.entriesQuery(phone, currency, true)
	input.ProjectionExpression = aws.String("entry_id")

	var mark models.EntryMark
	err := s.queryAll(ctx, input, func(items []map[string]types.AttributeValue) (bool, error) {
		if mark.Count == 0 && len(items) > 0 {
			var e models.LedgerEntry
			if err := attributevalue.UnmarshalMap(items[0], &e); err != nil {
				return false, fmt.Errorf("failed to unmarshal ledger entry: %w", err)
			}
			mark.LastEntryID = e.EntryID
		}
		mark.Count += len(items)
		return true, nil
	})
	if err != nil {
		return models.EntryMark{}, fmt.Errorf("failed to query ledger entry mark: %w", err)
	}
	return mark, nil
}
