package escrow

import "github.com/xraph/escrow/id"

// ID identifies transfers and operations.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
