package factor

import "github.com/xraph/factor/id"

// ID identifies events, transfer receipts and audit records.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
