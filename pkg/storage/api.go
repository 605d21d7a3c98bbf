package storage

// ApiStore defines the read-mostly set of operations needed by the admin API.
// It composes other interfaces to provide a clear boundary for the API's data access.
type ApiStore interface {
	CustomerReader
	LedgerReader
	OutboxReader
}
