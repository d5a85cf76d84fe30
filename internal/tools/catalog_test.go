package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/chatagent/internal/agent"
	croncore "github.com/haasonsaas/chatagent/internal/cron"
	"github.com/haasonsaas/chatagent/internal/mcp"
	"github.com/haasonsaas/chatagent/internal/memory"
	"github.com/haasonsaas/chatagent/internal/storage"
	"github.com/haasonsaas/chatagent/pkg/models"
)

func testRegistry(t *testing.T) *agent.Registry {
	t.Helper()
	mem := memory.NewManager(storage.NewMemoryMemoryStore())
	reg, err := BuildRegistry(Deps{
		Memory:    mem,
		Scheduler: croncore.NewScheduler(nil),
		MCP:       mcp.NewHub(mcp.Config{}, mem),
	})
	require.NoError(t, err)
	return reg
}

func TestBuildRegistryCatalogue(t *testing.T) {
	reg := testRegistry(t)

	want := map[string]agent.ToolMode{
		"getWeatherInformation": agent.ToolModeConfirm,
		"getLocalTime":          agent.ToolModeAuto,
		"scheduleTask":          agent.ToolModeAuto,
		"getScheduledTasks":     agent.ToolModeAuto,
		"cancelScheduledTask":   agent.ToolModeAuto,
		"storeMemory":           agent.ToolModeAuto,
		"retrieveMemory":        agent.ToolModeAuto,
		"listMemories":          agent.ToolModeAuto,
		"forgetMemory":          agent.ToolModeAuto,
		"sendEmail":             agent.ToolModeConfirm,
		"mcpServerTool":         agent.ToolModeAuto,
		"listMcpTools":          agent.ToolModeAuto,
		"callMcpTool":           agent.ToolModeConfirm,
		"getNumberFact":         agent.ToolModeAuto,
	}
	descs := reg.Describe()
	require.Len(t, descs, len(want))
	assert.Equal(t, "getWeatherInformation", descs[0].Name)
	for _, d := range descs {
		assert.Equal(t, want[d.Name], d.Mode, d.Name)
		assert.NotEmpty(t, d.Description, d.Name)
		assert.Contains(t, KnownDisplayNames(), d.Name)
	}
}

func TestRegistryValidatesToolArguments(t *testing.T) {
	reg := testRegistry(t)
	ctx := agent.WithSession(context.Background(), &models.Session{ID: "s1"})

	_, err := reg.Invoke(ctx, "storeMemory", json.RawMessage(`{"key":"k"}`))
	assert.Error(t, err, "value is required")

	res, err := reg.Invoke(ctx, "storeMemory", json.RawMessage(`{"key":"k","value":"v"}`))
	require.NoError(t, err)
	assert.Equal(t, "Remembered: k = v", res.Content)

	res, err = reg.Invoke(ctx, "getWeatherInformation", json.RawMessage(`{"city":"Oslo"}`))
	require.NoError(t, err)
	assert.Equal(t, "The weather in Oslo is sunny", res.Content)
}
