package dynamodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chris/debt-ledger-bot/pkg/models"
	"github.com/chris/debt-ledger-bot/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestGetIdentity(t *testing.T) {
	identity := &models.Identity{ExternalID: 42, ChatID: 42, Role: models.RoleStaff, Status: models.StatusActive}

	t.Run("Success", func(t *testing.T) {
		store, mockClient := newTestStore()
		av, _ := attributevalue.MarshalMap(identity)
		mockClient.On("GetItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.GetItemInput) bool {
			n, ok := in.Key["external_id"].(*types.AttributeValueMemberN)
			return *in.TableName == "identities" && ok && n.Value == "42" && aws.ToBool(in.ConsistentRead)
		})).Once().Return(&dynamodb.GetItemOutput{Item: av}, nil)

		got, err := store.GetIdentity(context.Background(), 42)

		require.NoError(t, err)
		assert.Equal(t, models.RoleStaff, got.Role)
		mockClient.AssertExpectations(t)
	})

	t.Run("Not Found", func(t *testing.T) {
		store, mockClient := newTestStore()
		mockClient.On("GetItem", mock.Anything, mock.Anything).Once().Return(&dynamodb.GetItemOutput{}, nil)

		_, err := store.GetIdentity(context.Background(), 42)

		assert.ErrorIs(t, err, storage.ErrNotFound)
		mockClient.AssertExpectations(t)
	})

	t.Run("Storage Error", func(t *testing.T) {
		store, mockClient := newTestStore()
		mockClient.On("GetItem", mock.Anything, mock.Anything).Once().Return(nil, errors.New("boom"))

		_, err := store.GetIdentity(context.Background(), 42)

		assert.ErrorContains(t, err, "failed to get identity from DynamoDB")
		mockClient.AssertExpectations(t)
	})
}

func TestListIdentitiesByRole(t *testing.T) {
	store, mockClient := newTestStore()
	first, _ := attributevalue.MarshalMap(models.Identity{ExternalID: 1, Role: models.RoleAdmin})
	second, _ := attributevalue.MarshalMap(models.Identity{ExternalID: 2, Role: models.RoleAdmin})
	lastKey := map[string]types.AttributeValue{"external_id": numberAV(1)}

	mockClient.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return aws.ToString(in.IndexName) == roleIndex && in.ExclusiveStartKey == nil
	})).Once().Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{first}, LastEvaluatedKey: lastKey}, nil)
	mockClient.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return in.ExclusiveStartKey != nil
	})).Once().Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{second}}, nil)

	got, err := store.ListIdentitiesByRole(context.Background(), models.RoleAdmin)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[1].ExternalID)
	mockClient.AssertExpectations(t)
}

func TestCreateIdentity(t *testing.T) {
	identity := &models.Identity{ExternalID: 7, Role: models.RoleUnaffiliated, Status: models.StatusActive, CreatedAt: time.Now()}

	t.Run("Success", func(t *testing.T) {
		store, mockClient := newTestStore()
		mockClient.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
			return aws.ToString(in.ConditionExpression) == "attribute_not_exists(external_id)"
		})).Once().Return(&dynamodb.PutItemOutput{}, nil)

		assert.NoError(t, store.CreateIdentity(context.Background(), identity))
		mockClient.AssertExpectations(t)
	})

	t.Run("Already Exists", func(t *testing.T) {
		store, mockClient := newTestStore()
		mockClient.On("PutItem", mock.Anything, mock.Anything).Once().Return(nil, conditionFailed())

		assert.ErrorIs(t, store.CreateIdentity(context.Background(), identity), storage.ErrAlreadyExists)
		mockClient.AssertExpectations(t)
	})
}

func TestUpdateIdentityProfile(t *testing.T) {
	t.Run("Empty Values Are Not Written", func(t *testing.T) {
		store, mockClient := newTestStore()
		updated, _ := attributevalue.MarshalMap(models.Identity{ExternalID: 7, ChatID: 99, DisplayName: "Old"})
		mockClient.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
			_, hasName := in.ExpressionAttributeValues[":name"]
			return aws.ToString(in.UpdateExpression) == "SET chat_id = :chat, updated_at = :now" && !hasName
		})).Once().Return(&dynamodb.UpdateItemOutput{Attributes: updated}, nil)

		got, err := store.UpdateIdentityProfile(context.Background(), 7, models.Profile{ChatID: 99})

		require.NoError(t, err)
		assert.Equal(t, "Old", got.DisplayName)
		mockClient.AssertExpectations(t)
	})

	t.Run("Not Found", func(t *testing.T) {
		store, mockClient := newTestStore()
		mockClient.On("UpdateItem", mock.Anything, mock.Anything).Once().Return(nil, conditionFailed())

		_, err := store.UpdateIdentityProfile(context.Background(), 7, models.Profile{ChatID: 99, DisplayName: "New"})

		assert.ErrorIs(t, err, storage.ErrNotFound)
		mockClient.AssertExpectations(t)
	})
}

func TestUpdateIdentityAccess(t *testing.T) {
	store, mockClient := newTestStore()
	updated, _ := attributevalue.MarshalMap(models.Identity{ExternalID: 7, Role: models.RoleStaff, Status: models.StatusLocked})
	mockClient.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		role := in.ExpressionAttributeValues[":role"].(*types.AttributeValueMemberS)
		return in.ExpressionAttributeNames["#role"] == "role" && role.Value == "staff"
	})).Once().Return(&dynamodb.UpdateItemOutput{Attributes: updated}, nil)

	got, err := store.UpdateIdentityAccess(context.Background(), 7, models.RoleStaff, models.StatusLocked)

	require.NoError(t, err)
	assert.Equal(t, models.StatusLocked, got.Status)
	mockClient.AssertExpectations(t)
}
