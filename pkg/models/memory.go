// Package models defines the core data types for chatagent.
package models

import (
	"time"
)

// MemoryEntry is one key/value fact remembered for a session.
type MemoryEntry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MCPTokenKeyPrefix prefixes memory keys that hold bearer tokens for MCP servers.
const MCPTokenKeyPrefix = "mcp_token_"

// MCPTokenKey returns the memory key holding the bearer token for serverID.
func MCPTokenKey(serverID string) string {
	return MCPTokenKeyPrefix + serverID
}
