package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestMCPTokenKey(t *testing.T) {
	key := MCPTokenKey("srv-1")
	if key != "mcp_token_srv-1" {
		t.Fatalf("MCPTokenKey() = %q", key)
	}
	if !strings.HasPrefix(key, MCPTokenKeyPrefix) {
		t.Fatalf("key %q lacks prefix %q", key, MCPTokenKeyPrefix)
	}
}

func TestMemoryEntry_JSONFieldNames(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	data, err := json.Marshal(MemoryEntry{Key: "name", Value: "Ada", CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	for _, field := range []string{`"key":"name"`, `"value":"Ada"`, `"created_at":`, `"updated_at":`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("JSON %s missing %s", data, field)
		}
	}
}
