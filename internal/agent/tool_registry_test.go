package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type cityParams struct {
	City string `json:"city" jsonschema:"required,description=City to look up"`
}

func TestRegistryBuilder_RequiresExecutionForConfirmTools(t *testing.T) {
	_, err := NewRegistryBuilder().
		Confirm(Declaration{Name: "getWeatherInformation", Schema: SchemaFor[cityParams]()}).
		Build()
	if err == nil || !strings.Contains(err.Error(), "has no execution") {
		t.Fatalf("expected missing execution error, got %v", err)
	}
}

func TestRegistryBuilder_RejectsDuplicatesAndBadNames(t *testing.T) {
	_, err := NewRegistryBuilder().
		Auto(constTool("a", "1")).
		Auto(constTool("a", "2")).
		Auto(constTool("", "3")).
		Auto(constTool(strings.Repeat("x", MaxToolNameLength+1), "4")).
		Build()
	if err == nil {
		t.Fatal("expected build error")
	}
	for _, want := range []string{"declared twice", "name is required", "exceeds"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestRegistryBuilder_RejectsInvalidSchema(t *testing.T) {
	tool := constTool("bad", "x")
	tool.schema = json.RawMessage(`{"type": 12}`)
	if _, err := NewRegistryBuilder().Auto(tool).Build(); err == nil {
		t.Fatal("expected schema compile error")
	}
}

func TestRegistry_DescribePreservesOrderAndModes(t *testing.T) {
	reg := mustBuild(t, NewRegistryBuilder().
		Confirm(Declaration{Name: "getWeatherInformation", Description: "weather", Schema: SchemaFor[cityParams]()}).
		Execution("getWeatherInformation", func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			return &ToolResult{Content: "sunny"}, nil
		}).
		Auto(constTool("getLocalTime", "10am")))

	descs := reg.Describe()
	if len(descs) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(descs))
	}
	if descs[0].Name != "getWeatherInformation" || descs[0].Mode != ToolModeConfirm || descs[0].Handler != nil {
		t.Fatalf("unexpected first descriptor: %+v", descs[0])
	}
	if descs[1].Name != "getLocalTime" || descs[1].Mode != ToolModeAuto {
		t.Fatalf("unexpected second descriptor: %+v", descs[1])
	}

	tools := reg.AsLLMTools()
	if len(tools) != 2 || tools[0].Name() != "getWeatherInformation" {
		t.Fatalf("AsLLMTools = %v", tools)
	}
	if _, err := tools[0].Execute(context.Background(), nil); err == nil {
		t.Fatal("declared confirm tool must not execute directly")
	}
}

func TestRegistry_ExecutionTable(t *testing.T) {
	reg := mustBuild(t, NewRegistryBuilder().
		Confirm(Declaration{Name: "getWeatherInformation", Schema: SchemaFor[cityParams]()}).
		Execution("getWeatherInformation", func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			return &ToolResult{Content: "sunny"}, nil
		}).
		Execution("orphan", func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			return &ToolResult{Content: "never"}, nil
		}).
		Auto(constTool("getLocalTime", "10am")))

	fn, ok := reg.Execution("getWeatherInformation")
	if !ok {
		t.Fatal("expected execution entry for getWeatherInformation")
	}
	res, err := fn(context.Background(), json.RawMessage(`{"city":"Oslo"}`))
	if err != nil || res.Content != "sunny" {
		t.Fatalf("execution = %+v, %v", res, err)
	}
	if _, ok := reg.Execution("orphan"); ok {
		t.Fatal("entry without a declaration must be inert")
	}
	if _, ok := reg.Execution("getLocalTime"); ok {
		t.Fatal("auto tools have no execution entry")
	}
	if _, ok := reg.Resolve("orphan"); ok {
		t.Fatal("inert entry must not be resolvable")
	}
}

func TestRegistry_IndependentMarker(t *testing.T) {
	reg := mustBuild(t, NewRegistryBuilder().
		Auto(independentTool{constTool("getNumberFact", "42")}).
		Auto(constTool("storeMemory", "ok")))

	fact, _ := reg.Resolve("getNumberFact")
	if !fact.Independent {
		t.Fatal("getNumberFact should be marked independent")
	}
	store, _ := reg.Resolve("storeMemory")
	if store.Independent {
		t.Fatal("tools are not independent unless they say so")
	}
}

func TestRegistry_InvokeValidatesParams(t *testing.T) {
	var got string
	reg := mustBuild(t, NewRegistryBuilder().
		Confirm(Declaration{Name: "getWeatherInformation", Schema: SchemaFor[cityParams]()}).
		Execution("getWeatherInformation", func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			var p cityParams
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, err
			}
			got = p.City
			return &ToolResult{Content: "The weather in " + p.City + " is sunny"}, nil
		}))

	if _, err := reg.Invoke(context.Background(), "getWeatherInformation", json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected validation error for missing city")
	}
	if got != "" {
		t.Fatal("execution ran despite invalid params")
	}

	res, err := reg.Invoke(context.Background(), "getWeatherInformation", json.RawMessage(`{"city":"Paris"}`))
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if res.Content != "The weather in Paris is sunny" {
		t.Fatalf("content = %q", res.Content)
	}
}

func TestRegistry_InvokeUnknownTool(t *testing.T) {
	reg := mustBuild(t, NewRegistryBuilder())
	_, err := reg.Invoke(context.Background(), "nope", nil)
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
}

func TestRegistry_InvokeRejectsOversizedParams(t *testing.T) {
	reg := mustBuild(t, NewRegistryBuilder().Auto(constTool("t", "ok")))
	big := make([]byte, MaxToolParamsSize+1)
	if _, err := reg.Invoke(context.Background(), "t", big); err == nil {
		t.Fatal("expected size error")
	}
}

func TestSchemaFor(t *testing.T) {
	var schema map[string]any
	if err := json.Unmarshal(SchemaFor[cityParams](), &schema); err != nil {
		t.Fatalf("unmarshal schema: %v", err)
	}
	if schema["type"] != "object" {
		t.Fatalf("type = %v", schema["type"])
	}
	props, _ := schema["properties"].(map[string]any)
	if _, ok := props["city"]; !ok {
		t.Fatalf("missing city property: %v", schema)
	}
	if _, ok := schema["$schema"]; ok {
		t.Fatal("$schema should be cleared")
	}
}
