package tools

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ToolDisplay contains formatted display info for a tool call.
type ToolDisplay struct {
	Name   string `json:"name"`
	Emoji  string `json:"emoji"`
	Title  string `json:"title"`
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
}

// ToolDisplaySpec defines display configuration for a tool.
type ToolDisplaySpec struct {
	Emoji      string
	Title      string
	Label      string
	DetailKeys []string
}

// MaxDetailEntries limits the number of detail items shown.
const MaxDetailEntries = 4

const maxDetailLen = 80

var fallbackSpec = ToolDisplaySpec{Emoji: "🧩"}

var displaySpecs = map[string]ToolDisplaySpec{
	"getWeatherInformation": {Emoji: "🌤️", Title: "Weather", Label: "Checking weather", DetailKeys: []string{"city"}},
	"getLocalTime":          {Emoji: "🕙", Title: "Local time", Label: "Checking time", DetailKeys: []string{"location"}},
	"scheduleTask":          {Emoji: "📅", Title: "Schedule", Label: "Scheduling", DetailKeys: []string{"description", "when.type"}},
	"getScheduledTasks":     {Emoji: "📅", Title: "Schedules", Label: "Listing schedules"},
	"cancelScheduledTask":   {Emoji: "🗑️", Title: "Cancel schedule", Label: "Canceling", DetailKeys: []string{"taskId"}},
	"storeMemory":           {Emoji: "🧠", Title: "Remember", Label: "Remembering", DetailKeys: []string{"key"}},
	"retrieveMemory":        {Emoji: "🧠", Title: "Recall", Label: "Recalling", DetailKeys: []string{"key"}},
	"listMemories":          {Emoji: "🧠", Title: "Memories", Label: "Listing memories"},
	"forgetMemory":          {Emoji: "🧠", Title: "Forget", Label: "Forgetting", DetailKeys: []string{"key"}},
	"sendEmail":             {Emoji: "📤", Title: "Email", Label: "Sending email", DetailKeys: []string{"to", "subject"}},
	"mcpServerTool":         {Emoji: "🔌", Title: "MCP server", Label: "Connecting", DetailKeys: []string{"url"}},
	"listMcpTools":          {Emoji: "🔌", Title: "MCP tools", Label: "Listing MCP tools", DetailKeys: []string{"serverId"}},
	"callMcpTool":           {Emoji: "🔌", Title: "MCP call", Label: "Calling", DetailKeys: []string{"tool", "serverId"}},
	"getNumberFact":         {Emoji: "🔢", Title: "Number fact", Label: "Looking up", DetailKeys: []string{"number"}},
}

// ResolveToolDisplay resolves display info for a call with raw JSON arguments.
func ResolveToolDisplay(name string, args json.RawMessage) *ToolDisplay {
	spec, ok := displaySpecs[name]
	if !ok {
		spec = fallbackSpec
	}
	display := &ToolDisplay{
		Name:  name,
		Emoji: spec.Emoji,
		Title: spec.Title,
		Label: spec.Label,
	}
	if display.Title == "" {
		display.Title = name
	}

	var decoded any
	if len(args) > 0 && json.Unmarshal(args, &decoded) == nil {
		display.Detail = resolveDetailFromKeys(decoded, spec.DetailKeys)
	}
	return display
}

// FormatToolSummary formats a complete tool summary line.
func FormatToolSummary(display *ToolDisplay) string {
	label := display.Label
	if label == "" {
		label = display.Title
	}
	summary := strings.TrimSpace(display.Emoji + " " + label)
	if display.Detail != "" {
		summary += ": " + display.Detail
	}
	return summary
}

// KnownDisplayNames lists tools with a display spec, sorted.
func KnownDisplayNames() []string {
	names := make([]string, 0, len(displaySpecs))
	for name := range displaySpecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// lookupValueByPath follows a dotted path through decoded JSON objects.
func lookupValueByPath(args any, path string) any {
	current := args
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}

func coerceDisplayValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return fmt.Sprintf("%g", v)
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

func resolveDetailFromKeys(args any, keys []string) string {
	var details []string
	for _, key := range keys {
		if len(details) >= MaxDetailEntries {
			break
		}
		s := coerceDisplayValue(lookupValueByPath(args, key))
		if s == "" {
			continue
		}
		if len(s) > maxDetailLen {
			s = s[:maxDetailLen-1] + "…"
		}
		details = append(details, s)
	}
	return strings.Join(details, " · ")
}
