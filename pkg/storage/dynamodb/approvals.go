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

// pendingGuard lives in the approvals table next to the requests and holds
// the id of the single pending request for a (requester, phone) pair. It has
// no status attribute, so it never shows up in the status index.
type pendingGuard struct {
	ID        string `dynamodbav:"id"`
	RequestID string `dynamodbav:"request_id"`
}

func guardID(requesterID int64, phone string) string {
	return fmt.Sprintf("pending#%d#%s", requesterID, phone)
}

func approvalKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"id": stringAV(id)}
}

// CreateApprovalRequest writes the request and its pending guard together.
// If the guard already exists the pending request it points to is returned.
func (s *Store) CreateApprovalRequest(ctx context.Context, req *models.ApprovalRequest) (*models.ApprovalRequest, bool, error) {
	reqAV, err := attributevalue.MarshalMap(req)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal approval request: %w", err)
	}
	guardAV, err := attributevalue.MarshalMap(pendingGuard{ID: guardID(req.RequesterID, req.Phone), RequestID: req.ID})
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal pending guard: %w", err)
	}

	_, err = s.Client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           tableName(s.Tables.Approvals),
				Item:                guardAV,
				ConditionExpression: aws.String("attribute_not_exists(id)"),
			}},
			{Put: &types.Put{
				TableName:           tableName(s.Tables.Approvals),
				Item:                reqAV,
				ConditionExpression: aws.String("attribute_not_exists(id)"),
			}},
		},
	})
	if err == nil {
		return req, true, nil
	}
	if cancelledAt(err, 1) {
		return nil, false, storage.ErrAlreadyExists
	}
	if !cancelledAt(err, 0) {
		return nil, false, fmt.Errorf("failed to create approval request: %w", err)
	}

	result, err := s.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      tableName(s.Tables.Approvals),
		Key:            approvalKey(guardID(req.RequesterID, req.Phone)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to get pending guard: %w", err)
	}
	if result.Item == nil {
		return nil, false, fmt.Errorf("pending guard for %s vanished, retry", req.Phone)
	}
	var guard pendingGuard
	if err := attributevalue.UnmarshalMap(result.Item, &guard); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal pending guard: %w", err)
	}
	existing, err := s.GetApprovalRequest(ctx, guard.RequestID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetApprovalRequest retrieves a request by id.
func (s *Store) GetApprovalRequest(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	result, err := s.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      tableName(s.Tables.Approvals),
		Key:            approvalKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get approval request from DynamoDB: %w", err)
	}
	if result.Item == nil {
		return nil, storage.ErrNotFound
	}

	var req models.ApprovalRequest
	if err := attributevalue.UnmarshalMap(result.Item, &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal approval request: %w", err)
	}
	return &req, nil
}

func (s *Store) pendingRequest(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	req, err := s.GetApprovalRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != models.ApprovalPending {
		return nil, storage.ErrAlreadyResolved
	}
	return req, nil
}

func (s *Store) resolveItems(req *models.ApprovalRequest, status models.ApprovalStatus, adminID int64, now time.Time) []types.TransactWriteItem {
	return []types.TransactWriteItem{
		{Update: &types.Update{
			TableName:           tableName(s.Tables.Approvals),
			Key:                 approvalKey(req.ID),
			UpdateExpression:    aws.String("SET #status = :status, decided_by = :admin, decided_at = :now"),
			ConditionExpression: aws.String("#status = :pending"),
			ExpressionAttributeNames: map[string]string{
				"#status": "status",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":status":  stringAV(string(status)),
				":pending": stringAV(string(models.ApprovalPending)),
				":admin":   numberAV(adminID),
				":now":     stringAV(now.UTC().Format(time.RFC3339Nano)),
			},
		}},
		{Delete: &types.Delete{
			TableName: tableName(s.Tables.Approvals),
			Key:       approvalKey(guardID(req.RequesterID, req.Phone)),
		}},
	}
}

func resolved(req *models.ApprovalRequest, status models.ApprovalStatus, adminID int64, now time.Time) models.ApprovalRequest {
	out := *req
	out.Status = status
	out.DecidedBy = adminID
	decided := now
	out.DecidedAt = &decided
	return out
}

// ApproveRequest resolves the request and rebinds the phone in a single
// transaction. The reads before it decide which unlink operations to add;
// the conditions on the customer and identity items catch concurrent changes
// and surface as ErrConflict with the request still pending.
func (s *Store) ApproveRequest(ctx context.Context, id string, adminID int64, now time.Time) (*models.ApprovalOutcome, error) {
	req, err := s.pendingRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	requester, err := s.GetIdentity(ctx, req.RequesterID)
	if err != nil {
		return nil, err
	}
	customer, err := s.GetCustomer(ctx, req.Phone)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	outcome := &models.ApprovalOutcome{}
	items := s.resolveItems(req, models.ApprovalApproved, adminID, now)

	customerCond := "attribute_not_exists(phone)"
	customerValues := map[string]types.AttributeValue{
		":req":    numberAV(req.RequesterID),
		":name":   stringAV(req.DisplayName),
		":origin": stringAV(string(models.OriginApproval)),
		":admin":  numberAV(adminID),
		":now":    stringAV(now.UTC().Format(time.RFC3339Nano)),
	}
	if customer != nil {
		if customer.LinkedIdentity != 0 {
			customerCond = "linked_identity = :owner"
			customerValues[":owner"] = numberAV(customer.LinkedIdentity)
		} else {
			customerCond = "attribute_exists(phone) AND attribute_not_exists(linked_identity)"
		}
	}
	items = append(items, types.TransactWriteItem{Update: &types.Update{
		TableName:                 tableName(s.Tables.Customers),
		Key:                       customerKey(req.Phone),
		UpdateExpression:          aws.String("SET linked_identity = :req, display_name = if_not_exists(display_name, :name), origin = if_not_exists(origin, :origin), created_by = if_not_exists(created_by, :admin), created_at = if_not_exists(created_at, :now)"),
		ConditionExpression:       aws.String(customerCond),
		ExpressionAttributeValues: customerValues,
	}})

	// The requester keeps one phone: the update only applies if the binding
	// read above is still the one in the table.
	role := models.LinkedRole(requester.Role)
	requesterCond := "attribute_exists(external_id) AND attribute_not_exists(phone)"
	requesterValues := map[string]types.AttributeValue{
		":phone":  stringAV(req.Phone),
		":role":   stringAV(string(role)),
		":active": stringAV(string(models.StatusActive)),
		":now":    stringAV(now.UTC().Format(time.RFC3339Nano)),
	}
	if requester.Phone != "" {
		requesterCond = "phone = :oldPhone"
		requesterValues[":oldPhone"] = stringAV(requester.Phone)
	}
	items = append(items, types.TransactWriteItem{Update: &types.Update{
		TableName:           tableName(s.Tables.Identities),
		Key:                 identityKey(requester.ExternalID),
		UpdateExpression:    aws.String("SET phone = :phone, #role = :role, #status = :active, updated_at = :now"),
		ConditionExpression: aws.String(requesterCond),
		ExpressionAttributeNames: map[string]string{
			"#role":   "role",
			"#status": "status",
		},
		ExpressionAttributeValues: requesterValues,
	}})

	if customer != nil && customer.LinkedIdentity != 0 && customer.LinkedIdentity != req.RequesterID {
		outcome.PreviousOwner = customer.LinkedIdentity
		prev, err := s.GetIdentity(ctx, customer.LinkedIdentity)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		if prev != nil && prev.Phone == req.Phone {
			items = append(items, types.TransactWriteItem{Update: s.unlinkIdentityUpdate(prev, req.Phone, now)})
		}
	}

	if requester.Phone != "" && requester.Phone != req.Phone {
		outcome.PreviousPhone = requester.Phone
		old, err := s.GetCustomer(ctx, requester.Phone)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		if old != nil && old.LinkedIdentity == requester.ExternalID {
			items = append(items, types.TransactWriteItem{Update: &types.Update{
				TableName:           tableName(s.Tables.Customers),
				Key:                 customerKey(old.Phone),
				UpdateExpression:    aws.String("REMOVE linked_identity"),
				ConditionExpression: aws.String("linked_identity = :req"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":req": numberAV(requester.ExternalID),
				},
			}})
		}
	}

	_, err = s.Client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		if cancelledAt(err, 0) {
			return nil, storage.ErrAlreadyResolved
		}
		if anyConditionFailed(err) {
			return nil, fmt.Errorf("failed to approve request %s: %w", id, storage.ErrConflict)
		}
		return nil, fmt.Errorf("failed to approve request: %w", err)
	}

	if customer == nil {
		customer = &models.Customer{
			Phone:       req.Phone,
			DisplayName: req.DisplayName,
			Origin:      models.OriginApproval,
			CreatedBy:   adminID,
			CreatedAt:   now,
		}
	} else if customer.DisplayName == "" {
		customer.DisplayName = req.DisplayName
	}
	customer.LinkedIdentity = req.RequesterID

	outcome.Request = resolved(req, models.ApprovalApproved, adminID, now)
	outcome.Customer = *customer
	return outcome, nil
}

// RejectRequest resolves the request as rejected and drops its guard.
func (s *Store) RejectRequest(ctx context.Context, id string, adminID int64, now time.Time) (*models.ApprovalRequest, error) {
	req, err := s.pendingRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	_, err = s.Client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: s.resolveItems(req, models.ApprovalRejected, adminID, now),
	})
	if err != nil {
		if cancelledAt(err, 0) {
			return nil, storage.ErrAlreadyResolved
		}
		return nil, fmt.Errorf("failed to reject request: %w", err)
	}
	out := resolved(req, models.ApprovalRejected, adminID, now)
	return &out, nil
}

// ListPendingRequests queries the status index, oldest first.
func (s *Store) ListPendingRequests(ctx context.Context, limit int) ([]models.ApprovalRequest, error) {
	input := &dynamodb.QueryInput{
		TableName:              tableName(s.Tables.Approvals),
		IndexName:              aws.String(statusCreatedIndex),
		KeyConditionExpression: aws.String("#status = :pending"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pending": stringAV(string(models.ApprovalPending)),
		},
		ScanIndexForward: aws.Bool(true),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	var requests []models.ApprovalRequest
	err := s.queryAll(ctx, input, func(items []map[string]types.AttributeValue) (bool, error) {
		var page []models.ApprovalRequest
		if err := attributevalue.UnmarshalListOfMaps(items, &page); err != nil {
			return false, fmt.Errorf("failed to unmarshal approval requests: %w", err)
		}
		requests = append(requests, page...)
		return limit <= 0 || len(requests) < limit, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query pending approval requests: %w", err)
	}
	if limit > 0 && len(requests) > limit {
		requests = requests[:limit]
	}
	return requests, nil
}
