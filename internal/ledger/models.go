package ledger

import "time"

// Owner is the party that owns one or more recorded items. Name and Handle
// are optional.
type Owner struct {
	ID     string
	Name   string
	Handle string
}

// OwnerHandle references an owner row after an upsert.
type OwnerHandle struct {
	ID      string
	Created bool
}

// Record is one pushed item. Records are written once and never updated.
type Record struct {
	LocalID    string
	RemoteID   string
	Title      string
	OwnerID    string
	URL        string
	Tags       []string
	RecordedAt time.Time
}

// Entry is a Record joined with its owner.
type Entry struct {
	Record
	Owner Owner
}

// Stats summarizes ledger contents.
type Stats struct {
	Records        int
	Owners         int
	LastRecordedAt time.Time
	SchemaVersion  string
}
