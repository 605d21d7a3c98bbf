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

func identityKey(externalID int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"external_id": numberAV(externalID)}
}

// GetIdentity retrieves an identity by its external id.
func (s *Store) GetIdentity(ctx context.Context, externalID int64) (*models.Identity, error) {
	result, err := s.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      tableName(s.Tables.Identities),
		Key:            identityKey(externalID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get identity from DynamoDB: %w", err)
	}
	if result.Item == nil {
		return nil, storage.ErrNotFound
	}

	var id models.Identity
	if err := attributevalue.UnmarshalMap(result.Item, &id); err != nil {
		return nil, fmt.Errorf("failed to unmarshal identity: %w", err)
	}
	return &id, nil
}

// ListIdentitiesByRole queries the role index.
func (s *Store) ListIdentitiesByRole(ctx context.Context, role models.Role) ([]models.Identity, error) {
	input := &dynamodb.QueryInput{
		TableName:              tableName(s.Tables.Identities),
		IndexName:              aws.String(roleIndex),
		KeyConditionExpression: aws.String("#role = :role"),
		ExpressionAttributeNames: map[string]string{
			"#role": "role",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":role": stringAV(string(role)),
		},
	}

	var identities []models.Identity
	err := s.queryAll(ctx, input, func(items []map[string]types.AttributeValue) (bool, error) {
		var page []models.Identity
		if err := attributevalue.UnmarshalListOfMaps(items, &page); err != nil {
			return false, fmt.Errorf("failed to unmarshal identities: %w", err)
		}
		identities = append(identities, page...)
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query identities by role: %w", err)
	}
	return identities, nil
}

// CreateIdentity inserts a new identity. Returns ErrAlreadyExists.
func (s *Store) CreateIdentity(ctx context.Context, identity *models.Identity) error {
	item, err := attributevalue.MarshalMap(identity)
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}
	_, err = s.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           tableName(s.Tables.Identities),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(external_id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create identity in DynamoDB: %w", err)
	}
	return nil
}

func (s *Store) updateIdentity(ctx context.Context, externalID int64, expr string, names map[string]string, values map[string]types.AttributeValue) (*models.Identity, error) {
	input := &dynamodb.UpdateItemInput{
		TableName:                 tableName(s.Tables.Identities),
		Key:                       identityKey(externalID),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(external_id)"),
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	}
	if len(names) > 0 {
		input.ExpressionAttributeNames = names
	}

	result, err := s.Client.UpdateItem(ctx, input)
	if err != nil {
		if isConditionFailed(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update identity in DynamoDB: %w", err)
	}

	var id models.Identity
	if err := attributevalue.UnmarshalMap(result.Attributes, &id); err != nil {
		return nil, fmt.Errorf("failed to unmarshal identity: %w", err)
	}
	return &id, nil
}

// UpdateIdentityProfile overwrites chat_id and sets display name and
// username only when the incoming values are non-empty.
func (s *Store) UpdateIdentityProfile(ctx context.Context, externalID int64, profile models.Profile) (*models.Identity, error) {
	expr := "SET chat_id = :chat, updated_at = :now"
	values := map[string]types.AttributeValue{
		":chat": numberAV(profile.ChatID),
		":now":  stringAV(time.Now().UTC().Format(time.RFC3339Nano)),
	}
	if profile.DisplayName != "" {
		expr += ", display_name = :name"
		values[":name"] = stringAV(profile.DisplayName)
	}
	if profile.Username != "" {
		expr += ", username = :username"
		values[":username"] = stringAV(profile.Username)
	}
	return s.updateIdentity(ctx, externalID, expr, nil, values)
}

// UpdateIdentityAccess sets role and status.
func (s *Store) UpdateIdentityAccess(ctx context.Context, externalID int64, role models.Role, status models.IdentityStatus) (*models.Identity, error) {
	return s.updateIdentity(ctx, externalID,
		"SET #role = :role, #status = :status, updated_at = :now",
		map[string]string{"#role": "role", "#status": "status"},
		map[string]types.AttributeValue{
			":role":   stringAV(string(role)),
			":status": stringAV(string(status)),
			":now":    stringAV(time.Now().UTC().Format(time.RFC3339Nano)),
		},
	)
}

// unlinkIdentityUpdate clears the phone binding of id; a customer falls
// back to unaffiliated. The condition guards against a concurrent rebind.
func (s *Store) unlinkIdentityUpdate(id *models.Identity, phone string, now time.Time) *types.Update {
	role := id.Role
	if role == models.RoleCustomer {
		role = models.RoleUnaffiliated
	}
	return &types.Update{
		TableName:           tableName(s.Tables.Identities),
		Key:                 identityKey(id.ExternalID),
		UpdateExpression:    aws.String("SET #role = :role, updated_at = :now REMOVE phone"),
		ConditionExpression: aws.String("phone = :phone"),
		ExpressionAttributeNames: map[string]string{
			"#role": "role",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":role":  stringAV(string(role)),
			":now":   stringAV(now.UTC().Format(time.RFC3339Nano)),
			":phone": stringAV(phone),
		},
	}
}
