package tools

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/better-wallet/wallet-agent/internal/logger"
	apperrors "github.com/better-wallet/wallet-agent/pkg/errors"
)

// Spec is the description of a tool offered to the agent.
type Spec struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
}

// Registry holds tools by name.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates a registry holding tools. It panics on duplicate names,
// which is a programming error.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds t.
func (r *Registry) Register(t Tool) error {
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// Get returns the tool called name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Specs lists every tool sorted by name.
func (r *Registry) Specs() []Spec {
	specs := make([]Spec, 0, len(r.tools))
	for _, t := range r.tools {
		specs = append(specs, Spec{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Invoke runs the named tool. The context gets a request id (unless it
// already has one) and the tool name as its operation. Unknown tools and
// panics become error results.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]string) (result Result) {
	if logger.GetRequestID(ctx) == "" {
		ctx = logger.WithRequestID(ctx, uuid.NewString())
	}
	ctx = logger.WithOperation(ctx, name)

	t, ok := r.tools[name]
	if !ok {
		err := apperrors.NewWithDetail(apperrors.ErrCodeInvalidArgument, "Unknown tool", name)
		logger.Warn(ctx, "unknown tool requested", "tool", name)
		return Failure(err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error(ctx, "tool panicked", "panic", fmt.Sprint(rec))
			result = Failure(apperrors.New(apperrors.ErrCodeInternalError, "Tool failed unexpectedly"))
		}
	}()

	logger.Info(ctx, "tool invoked")
	result = t.Invoke(ctx, args)
	if result.OK {
		logger.Info(ctx, "tool succeeded")
	}
	return result
}
