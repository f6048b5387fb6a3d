package store

import "fmt"

// ErrStateNotInitialized is returned by callers that require a persisted
// BlockchainState to already exist, e.g. a handler processing chain events
// before the event loop has seeded the initial cursor.
var ErrStateNotInitialized = fmt.Errorf("blockchain state has not been initialized")
