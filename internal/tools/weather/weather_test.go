package weather

import (
	"context"
	"encoding/json"
	"testing"
)

func TestWeatherTool(t *testing.T) {
	res, err := NewWeatherTool(nil).Execute(context.Background(), json.RawMessage(`{"city":"Lisbon"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Content != "The weather in Lisbon is sunny" {
		t.Fatalf("Content = %q", res.Content)
	}
}

func TestLocalTimeTool(t *testing.T) {
	res, err := NewLocalTimeTool(nil).Execute(context.Background(), json.RawMessage(`{"location":"Tokyo"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Content != "10am" {
		t.Fatalf("Content = %q", res.Content)
	}
}

func TestBadParams(t *testing.T) {
	if _, err := NewWeatherTool(nil).Execute(context.Background(), json.RawMessage(`{"city":`)); err == nil {
		t.Fatal("expected parse error")
	}
}
