// Package tools assembles the agent's tool catalogue.
package tools

import (
	"log/slog"

	"github.com/haasonsaas/chatagent/internal/agent"
	croncore "github.com/haasonsaas/chatagent/internal/cron"
	"github.com/haasonsaas/chatagent/internal/mcp"
	"github.com/haasonsaas/chatagent/internal/memory"
	crontools "github.com/haasonsaas/chatagent/internal/tools/cron"
	"github.com/haasonsaas/chatagent/internal/tools/email"
	"github.com/haasonsaas/chatagent/internal/tools/mcpserver"
	memorytools "github.com/haasonsaas/chatagent/internal/tools/memory"
	"github.com/haasonsaas/chatagent/internal/tools/numberfact"
	"github.com/haasonsaas/chatagent/internal/tools/weather"
)

// Deps are the collaborators the catalogue's tools need.
type Deps struct {
	Memory     *memory.Manager
	Scheduler  *croncore.Scheduler
	MCP        *mcp.Hub
	Email      email.Config
	NumberFact numberfact.Config
	Logger     *slog.Logger
}

// BuildRegistry declares every tool. getWeatherInformation, sendEmail and
// callMcpTool wait for approval; everything else runs as soon as it is called.
func BuildRegistry(deps Deps) (*agent.Registry, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Email.Logger == nil {
		deps.Email.Logger = logger
	}

	return agent.NewRegistryBuilder().
		ConfirmTool(weather.NewWeatherTool(logger)).
		Auto(weather.NewLocalTimeTool(logger)).
		Auto(crontools.NewScheduleTool(deps.Scheduler)).
		Auto(crontools.NewListTool(deps.Scheduler)).
		Auto(crontools.NewCancelTool(deps.Scheduler)).
		Auto(memorytools.NewStoreTool(deps.Memory)).
		Auto(memorytools.NewRetrieveTool(deps.Memory)).
		Auto(memorytools.NewListTool(deps.Memory)).
		Auto(memorytools.NewForgetTool(deps.Memory)).
		ConfirmTool(email.New(deps.Email)).
		Auto(mcpserver.NewRegisterTool(deps.MCP)).
		Auto(mcpserver.NewListToolsTool(deps.MCP)).
		ConfirmTool(mcpserver.NewCallTool(deps.MCP)).
		Auto(numberfact.New(deps.NumberFact)).
		Build()
}
