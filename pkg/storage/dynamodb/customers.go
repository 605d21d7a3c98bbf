package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chris/debt-ledger-bot/pkg/models"
	"github.com/chris/debt-ledger-bot/pkg/storage"
)

func customerKey(phone string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"phone": stringAV(phone)}
}

// GetCustomer retrieves a customer by phone.
func (s *Store) GetCustomer(ctx context.Context, phone string) (*models.Customer, error) {
	result, err := s.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      tableName(s.Tables.Customers),
		Key:            customerKey(phone),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get customer from DynamoDB: %w", err)
	}
	if result.Item == nil {
		return nil, storage.ErrNotFound
	}

	var c models.Customer
	if err := attributevalue.UnmarshalMap(result.Item, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal customer: %w", err)
	}
	return &c, nil
}

// CreateCustomer inserts a new customer. Returns ErrAlreadyExists.
func (s *Store) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	item, err := attributevalue.MarshalMap(customer)
	if err != nil {
		return fmt.Errorf("failed to marshal customer: %w", err)
	}
	_, err = s.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           tableName(s.Tables.Customers),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(phone)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create customer in DynamoDB: %w", err)
	}
	return nil
}

// UpdateCustomerProfile overwrites name and note with non-empty values.
func (s *Store) UpdateCustomerProfile(ctx context.Context, phone, displayName, note string) (*models.Customer, error) {
	if displayName == "" && note == "" {
		return s.GetCustomer(ctx, phone)
	}

	var sets []string
	values := map[string]types.AttributeValue{}
	if displayName != "" {
		sets = append(sets, "display_name = :name")
		values[":name"] = stringAV(displayName)
	}
	if note != "" {
		sets = append(sets, "note = :note")
		values[":note"] = stringAV(note)
	}
	expr := "SET " + sets[0]
	if len(sets) > 1 {
		expr += ", " + sets[1]
	}

	result, err := s.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 tableName(s.Tables.Customers),
		Key:                       customerKey(phone),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(phone)"),
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update customer in DynamoDB: %w", err)
	}

	var c models.Customer
	if err := attributevalue.UnmarshalMap(result.Attributes, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal customer: %w", err)
	}
	return &c, nil
}

// DeleteCustomer removes every ledger entry for the phone in batches, then
// deletes the customer and unlinks its identity in one transaction. The
// entry batches are not atomic with the final transaction; a retry after a
// partial failure finishes the job.
func (s *Store) DeleteCustomer(ctx context.Context, phone string) (int, error) {
	customer, err := s.GetCustomer(ctx, phone)
	if err != nil {
		return 0, err
	}

	keys, err := s.entryKeys(ctx, phone)
	if err != nil {
		return 0, err
	}
	for start := 0; start < len(keys); start += batchWriteLimit {
		end := start + batchWriteLimit
		if end > len(keys) {
			end = len(keys)
		}
		if err := s.deleteBatch(ctx, keys[start:end]); err != nil {
			return 0, err
		}
	}

	items := []types.TransactWriteItem{{
		Delete: &types.Delete{
			TableName:           tableName(s.Tables.Customers),
			Key:                 customerKey(phone),
			ConditionExpression: aws.String("attribute_exists(phone)"),
		},
	}}
	if customer.LinkedIdentity != 0 {
		linked, err := s.GetIdentity(ctx, customer.LinkedIdentity)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return 0, err
		}
		if linked != nil && linked.Phone == phone {
			items = append(items, types.TransactWriteItem{Update: s.unlinkIdentityUpdate(linked, phone, time.Now())})
		}
	}

	_, err = s.Client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		if cancelledAt(err, 0) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("failed to delete customer: %w", err)
	}
	return len(keys), nil
}

func (s *Store) entryKeys(ctx context.Context, phone string) ([]map[string]types.AttributeValue, error) {
	input := &dynamodb.QueryInput{
		TableName:              tableName(s.Tables.Ledger),
		KeyConditionExpression: aws.String("phone = :phone"),
		ProjectionExpression:   aws.String("phone, entry_id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":phone": stringAV(phone),
		},
	}
	var keys []map[string]types.AttributeValue
	err := s.queryAll(ctx, input, func(items []map[string]types.AttributeValue) (bool, error) {
		keys = append(keys, items...)
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries for deletion: %w", err)
	}
	return keys, nil
}

func (s *Store) deleteBatch(ctx context.Context, keys []map[string]types.AttributeValue) error {
	requests := make([]types.WriteRequest, 0, len(keys))
	for _, key := range keys {
		requests = append(requests, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: key}})
	}
	pending := map[string][]types.WriteRequest{s.Tables.Ledger: requests}

	for attempt := 0; len(pending) > 0; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt*50) * time.Millisecond):
			}
		}
		if attempt == 5 {
			return fmt.Errorf("failed to delete ledger entries: unprocessed items remain")
		}
		out, err := s.Client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("failed to delete ledger entries: %w", err)
		}
		pending = out.UnprocessedItems
	}
	return nil
}
