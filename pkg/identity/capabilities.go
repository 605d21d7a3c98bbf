package identity

import "github.com/chris/debt-ledger-bot/pkg/models"

// Capability is a permission checked before an operation runs.
type Capability string

const (
	ReadOwn         Capability = "read-own"
	ReadAny         Capability = "read-any"
	WriteLedger     Capability = "write-ledger"
	ManageStaff     Capability = "manage-staff"
	ManageApprovals Capability = "manage-approvals"
	LockUsers       Capability = "lock-users"
	RequestLink     Capability = "request-link"
	DeleteCustomers Capability = "delete-customers"
)

var roleCapabilities = map[models.Role][]Capability{
	models.RoleUnaffiliated: {RequestLink},
	models.RoleCustomer:     {ReadOwn, RequestLink},
	models.RoleStaff:        {ReadAny, WriteLedger},
	models.RoleAdmin: {
		ReadOwn, ReadAny, WriteLedger, ManageStaff, ManageApprovals,
		LockUsers, RequestLink, DeleteCustomers,
	},
}

// Authorize reports whether the identity holds the capability.
// A locked identity holds nothing.
func Authorize(id *models.Identity, c Capability) bool {
	if id == nil || id.Status != models.StatusActive {
		return false
	}
	for _, have := range roleCapabilities[id.Role] {
		if have == c {
			return true
		}
	}
	return false
}

func describe(c Capability) string {
	switch c {
	case ReadOwn:
		return "view your balance"
	case ReadAny:
		return "view customer balances"
	case WriteLedger:
		return "record debts or payments"
	case ManageStaff:
		return "manage staff"
	case ManageApprovals:
		return "decide link requests"
	case LockUsers:
		return "lock or unlock users"
	case RequestLink:
		return "request a phone link"
	case DeleteCustomers:
		return "delete customers"
	}
	return string(c)
}
