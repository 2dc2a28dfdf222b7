package id

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node    *snowflake.Node
	initErr error
	once    sync.Once
)

// Init initializes the Snowflake node with the given node ID. Each process
// sharing a database must use a distinct node ID (0-1023).
func Init(nodeID int64) error {
	once.Do(func() {
		node, initErr = snowflake.NewNode(nodeID)
		if initErr != nil {
			initErr = fmt.Errorf("creating snowflake node %d: %w", nodeID, initErr)
		}
	})
	return initErr
}

// New generates a new globally unique int64 ID using the Snowflake algorithm.
// IDs are time-ordered, so change events sort by creation without a clock column.
// Panics if Init has not succeeded.
func New() int64 {
	if node == nil {
		panic("id: New called before Init")
	}
	return node.Generate().Int64()
}

// NewString returns a new ID in its base36 form, used for short log-friendly
// identifiers such as poll cycle IDs.
func NewString() string {
	if node == nil {
		panic("id: NewString called before Init")
	}
	return node.Generate().Base36()
}
