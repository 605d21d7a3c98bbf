package storage

import (
	"context"
	"time"

	"github.com/chris/debt-ledger-bot/pkg/models"
)

// ApprovalStore defines the interface for the link-request state machine.
type ApprovalStore interface {
	// CreateApprovalRequest inserts a pending request. When a pending request
	// for the same (requester, phone) already exists it is returned instead
	// and created is false.
	CreateApprovalRequest(ctx context.Context, req *models.ApprovalRequest) (existing *models.ApprovalRequest, created bool, err error)

	// GetApprovalRequest retrieves a request by id. Returns ErrNotFound.
	GetApprovalRequest(ctx context.Context, id string) (*models.ApprovalRequest, error)

	// ApproveRequest atomically upserts the customer record, binds the
	// requester to the phone as an active customer, unlinks any previous
	// owner of the phone and the requester's previous customer record, and
	// marks the request approved. Returns ErrNotFound or ErrAlreadyResolved.
	ApproveRequest(ctx context.Context, id string, adminID int64, now time.Time) (*models.ApprovalOutcome, error)

	// RejectRequest marks the request rejected. Returns ErrNotFound or ErrAlreadyResolved.
	RejectRequest(ctx context.Context, id string, adminID int64, now time.Time) (*models.ApprovalRequest, error)

	// ListPendingRequests returns pending requests, oldest first.
	ListPendingRequests(ctx context.Context, limit int) ([]models.ApprovalRequest, error)
}
