package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	validator "github.com/santhosh-tekuri/jsonschema/v5"
)

// ToolMode selects how the runtime handles a call to a tool.
type ToolMode string

const (
	// ToolModeAuto tools run as soon as the model calls them.
	ToolModeAuto ToolMode = "auto"
	// ToolModeConfirm tools run only after a human approves the call.
	ToolModeConfirm ToolMode = "confirm"
)

// IndependentTool is implemented by auto tools whose handler touches no
// session state, so adjacent calls to them may run in parallel without
// changing any observable result.
type IndependentTool interface {
	Independent() bool
}

// ExecutionFunc runs the effect of a confirmation-required tool.
type ExecutionFunc func(ctx context.Context, params json.RawMessage) (*ToolResult, error)

// Declaration describes a confirmation-required tool to the model.
type Declaration struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// DeclarationOf derives a declaration from a Tool.
func DeclarationOf(t Tool) Declaration {
	return Declaration{Name: t.Name(), Description: t.Description(), Schema: t.Schema()}
}

// ToolDescriptor is the registry's view of one tool.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"parameters"`
	Mode        ToolMode        `json:"mode"`
	// Independent auto tools may run alongside adjacent independent calls.
	Independent bool `json:"independent,omitempty"`
	// Handler is set for auto tools only.
	Handler Tool `json:"-"`
}

// Tool parameter limits to prevent resource exhaustion
const (
	// MaxToolNameLength is the maximum length of a tool name.
	MaxToolNameLength = 256

	// MaxToolParamsSize is the maximum size of tool parameters JSON (10MB).
	MaxToolParamsSize = 10 << 20
)

// RegistryBuilder collects tool declarations. It is not safe for concurrent use.
type RegistryBuilder struct {
	order      []string
	tools      map[string]ToolDescriptor
	executions map[string]ExecutionFunc
	errs       []error
}

// NewRegistryBuilder returns an empty builder.
func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{
		tools:      make(map[string]ToolDescriptor),
		executions: make(map[string]ExecutionFunc),
	}
}

func (b *RegistryBuilder) add(desc ToolDescriptor) {
	name := strings.TrimSpace(desc.Name)
	switch {
	case name == "":
		b.errs = append(b.errs, errors.New("tool name is required"))
		return
	case len(name) > MaxToolNameLength:
		b.errs = append(b.errs, fmt.Errorf("tool name %q exceeds %d characters", name, MaxToolNameLength))
		return
	}
	if _, exists := b.tools[name]; exists {
		b.errs = append(b.errs, fmt.Errorf("tool %q declared twice", name))
		return
	}
	if len(desc.Schema) == 0 {
		desc.Schema = json.RawMessage(`{"type":"object"}`)
	}
	b.order = append(b.order, name)
	b.tools[name] = desc
}

// Auto registers a tool that executes immediately.
func (b *RegistryBuilder) Auto(tool Tool) *RegistryBuilder {
	if tool == nil {
		b.errs = append(b.errs, errors.New("auto tool is nil"))
		return b
	}
	independent := false
	if it, ok := tool.(IndependentTool); ok {
		independent = it.Independent()
	}
	b.add(ToolDescriptor{
		Name:        tool.Name(),
		Description: tool.Description(),
		Schema:      tool.Schema(),
		Mode:        ToolModeAuto,
		Independent: independent,
		Handler:     tool,
	})
	return b
}

// Confirm registers a confirmation-required declaration. Its effect must be
// supplied through Execution under the same name.
func (b *RegistryBuilder) Confirm(decl Declaration) *RegistryBuilder {
	b.add(ToolDescriptor{
		Name:        decl.Name,
		Description: decl.Description,
		Schema:      decl.Schema,
		Mode:        ToolModeConfirm,
	})
	return b
}

// Execution sets the execution-table entry for name. Entries without a matching
// confirmation-required declaration are inert.
func (b *RegistryBuilder) Execution(name string, fn ExecutionFunc) *RegistryBuilder {
	if fn == nil {
		b.errs = append(b.errs, fmt.Errorf("execution for %q is nil", name))
		return b
	}
	b.executions[name] = fn
	return b
}

// ConfirmTool declares tool as confirmation-required and uses its Execute as the
// execution-table entry.
func (b *RegistryBuilder) ConfirmTool(tool Tool) *RegistryBuilder {
	if tool == nil {
		b.errs = append(b.errs, errors.New("confirm tool is nil"))
		return b
	}
	return b.Confirm(DeclarationOf(tool)).Execution(tool.Name(), tool.Execute)
}

// Build validates the declarations and returns the immutable registry.
func (b *RegistryBuilder) Build() (*Registry, error) {
	errs := append([]error(nil), b.errs...)
	schemas := make(map[string]*validator.Schema, len(b.tools))

	for _, name := range b.order {
		desc := b.tools[name]
		if desc.Mode == ToolModeConfirm {
			if _, ok := b.executions[name]; !ok {
				errs = append(errs, fmt.Errorf("confirmation-required tool %q has no execution", name))
			}
		}
		compiled, err := compileSchema(name, desc.Schema)
		if err != nil {
			errs = append(errs, fmt.Errorf("tool %q schema: %w", name, err))
			continue
		}
		schemas[name] = compiled
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	reg := &Registry{
		order:      append([]string(nil), b.order...),
		tools:      make(map[string]ToolDescriptor, len(b.tools)),
		executions: make(map[string]ExecutionFunc, len(b.executions)),
		schemas:    schemas,
	}
	for name, desc := range b.tools {
		reg.tools[name] = desc
	}
	for name, fn := range b.executions {
		reg.executions[name] = fn
	}
	return reg, nil
}

// Registry is the immutable tool catalogue. It is safe for concurrent use.
type Registry struct {
	order      []string
	tools      map[string]ToolDescriptor
	executions map[string]ExecutionFunc
	schemas    map[string]*validator.Schema
}

// Describe returns every descriptor in declaration order.
func (r *Registry) Describe() []ToolDescriptor {
	out := make([]ToolDescriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Resolve looks a tool up by name.
func (r *Registry) Resolve(name string) (ToolDescriptor, bool) {
	desc, ok := r.tools[name]
	return desc, ok
}

// Execution returns the execution-table entry for name. Inert entries, those
// without a confirmation-required declaration, are reported as absent.
func (r *Registry) Execution(name string) (ExecutionFunc, bool) {
	desc, ok := r.tools[name]
	if !ok || desc.Mode != ToolModeConfirm {
		return nil, false
	}
	fn, ok := r.executions[name]
	return fn, ok
}

// Invoke validates params and runs the tool's effect: the handler for auto tools,
// the execution-table entry for confirmation-required ones. Callers decide
// whether a confirmation-required tool may run.
func (r *Registry) Invoke(ctx context.Context, name string, params json.RawMessage) (*ToolResult, error) {
	if len(params) > MaxToolParamsSize {
		return nil, fmt.Errorf("invalid parameters: exceed maximum size of %d bytes", MaxToolParamsSize)
	}
	desc, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if err := validateParams(r.schemas[name], params); err != nil {
		return nil, err
	}
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}

	switch desc.Mode {
	case ToolModeAuto:
		return desc.Handler.Execute(ctx, params)
	default:
		return r.executions[name](ctx, params)
	}
}

// AsLLMTools returns the catalogue in the form offered to providers.
func (r *Registry) AsLLMTools() []Tool {
	tools := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		desc := r.tools[name]
		if desc.Mode == ToolModeAuto {
			tools = append(tools, desc.Handler)
			continue
		}
		tools = append(tools, declaredTool{desc: desc})
	}
	return tools
}

// declaredTool exposes a confirmation-required declaration to providers. It is
// never executed directly.
type declaredTool struct {
	desc ToolDescriptor
}

func (t declaredTool) Name() string            { return t.desc.Name }
func (t declaredTool) Description() string     { return t.desc.Description }
func (t declaredTool) Schema() json.RawMessage { return t.desc.Schema }

func (t declaredTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	return nil, fmt.Errorf("tool %s requires confirmation", t.desc.Name)
}
