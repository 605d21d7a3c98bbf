package dynamodb

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chris/debt-ledger-bot/pkg/storage/dynamodb/mocks"
)

var testTables = Tables{
	Identities: "identities",
	Customers:  "customers",
	Ledger:     "ledger",
	Approvals:  "approvals",
	Outbox:     "outbox",
	Updates:    "updates",
	Audit:      "audit",
}

func newTestStore() (*Store, *mocks.DynamoDBAPI) {
	mockClient := new(mocks.DynamoDBAPI)
	return &Store{Client: mockClient, Tables: testTables}, mockClient
}

// cancelled builds a TransactionCanceledException with one reason per
// transaction item; an empty code means that item was fine.
func cancelled(codes ...string) error {
	reasons := make([]types.CancellationReason, len(codes))
	for i, code := range codes {
		if code == "" {
			reasons[i] = types.CancellationReason{Code: aws.String("None")}
			continue
		}
		reasons[i] = types.CancellationReason{Code: aws.String(code)}
	}
	return &types.TransactionCanceledException{CancellationReasons: reasons}
}

func conditionFailed() error {
	return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
}
