// Package weather holds the demo location tools: a confirmation-required
// weather lookup and an auto-run local time lookup.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/haasonsaas/chatagent/internal/agent"
)

// CityInput is the input for getWeatherInformation.
type CityInput struct {
	City string `json:"city"`
}

// LocationInput is the input for getLocalTime.
type LocationInput struct {
	Location string `json:"location"`
}

// WeatherTool reports the weather. It must be approved before it runs.
type WeatherTool struct {
	logger *slog.Logger
}

// NewWeatherTool creates the getWeatherInformation tool.
func NewWeatherTool(logger *slog.Logger) *WeatherTool {
	if logger == nil {
		logger = slog.Default()
	}
	return &WeatherTool{logger: logger.With("tool", "getWeatherInformation")}
}

func (t *WeatherTool) Name() string { return "getWeatherInformation" }

func (t *WeatherTool) Description() string { return "show the weather in a given city to the user" }

func (t *WeatherTool) Schema() json.RawMessage { return agent.SchemaFor[CityInput]() }

func (t *WeatherTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input CityInput
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	t.logger.InfoContext(ctx, "getting weather information", "city", input.City)
	return &agent.ToolResult{Content: fmt.Sprintf("The weather in %s is sunny", input.City)}, nil
}

// LocalTimeTool reports the local time of a location.
type LocalTimeTool struct {
	logger *slog.Logger
}

// NewLocalTimeTool creates the getLocalTime tool.
func NewLocalTimeTool(logger *slog.Logger) *LocalTimeTool {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalTimeTool{logger: logger.With("tool", "getLocalTime")}
}

func (t *LocalTimeTool) Name() string { return "getLocalTime" }

func (t *LocalTimeTool) Description() string { return "get the local time for a specified location" }

func (t *LocalTimeTool) Schema() json.RawMessage { return agent.SchemaFor[LocationInput]() }

func (t *LocalTimeTool) Independent() bool { return true }

func (t *LocalTimeTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input LocationInput
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	t.logger.InfoContext(ctx, "getting local time", "location", input.Location)
	return &agent.ToolResult{Content: "10am"}, nil
}
