package dynamodb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/chris/debt-ledger-bot/pkg/models"
	"github.com/chris/debt-ledger-bot/pkg/storage"
)

// InsertProcessedUpdate writes the marker with a conditional put, so the
// check and the write are one request. Expiry is left to the table's TTL on
// the ttl attribute.
func (s *Store) InsertProcessedUpdate(ctx context.Context, marker *models.ProcessedUpdate) error {
	item, err := attributevalue.MarshalMap(marker)
	if err != nil {
		return fmt.Errorf("failed to marshal processed update: %w", err)
	}
	_, err = s.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           tableName(s.Tables.Updates),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(update_id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert processed update: %w", err)
	}
	return nil
}

// WriteAudit appends an audit record.
func (s *Store) WriteAudit(ctx context.Context, record *models.AuditRecord) error {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}
	if _, err := s.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: tableName(s.Tables.Audit),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	return nil
}
