package utilities

import (
	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// NewRequestID generates a KSUID string used to correlate the log lines of one request.
func NewRequestID() string {
	return ksuid.New().String()
}

// NewEntityID returns a random UUID string for user and card identities.
func NewEntityID() string {
	return uuid.NewString()
}

// IsEntityID reports whether s parses as a UUID.
func IsEntityID(s string) bool {
	return uuid.Validate(s) == nil
}

// NewIDNode returns a snowflake node for time-ordered ids. An out of range
// node id falls back to node 1 so ids are still produced.
func NewIDNode(nodeID int64) *snowflake.Node {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		node, _ = snowflake.NewNode(1)
	}
	return node
}
