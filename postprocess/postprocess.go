// Package postprocess provides ordered transforms applied to a final answer
// before it is returned to the caller. Registration order is execution order
// and must be preserved.
package postprocess

import (
	"context"
	"fmt"
)

// Postprocessor transforms final answer text. Implementations must be safe
// for reuse across turns.
type Postprocessor interface {
	// Name returns the transform's identifier for logs and errors.
	Name() string

	// Apply returns the transformed text.
	Apply(ctx context.Context, text string) (string, error)
}

// Func adapts a plain function to the Postprocessor interface.
type Func struct {
	FuncName string
	Fn       func(ctx context.Context, text string) (string, error)
}

// Name implements Postprocessor.
func (f Func) Name() string { return f.FuncName }

// Apply implements Postprocessor.
func (f Func) Apply(ctx context.Context, text string) (string, error) {
	return f.Fn(ctx, text)
}

// Registry applies registered transforms in deterministic registration order.
type Registry struct {
	processors []Postprocessor
}

// NewRegistry constructs an empty postprocessor registry.
func NewRegistry() *Registry { return &Registry{} }

// Register appends a transform; order of registration defines execution order.
func (r *Registry) Register(p Postprocessor) {
	r.processors = append(r.processors, p)
}

// Len returns the number of registered transforms.
func (r *Registry) Len() int { return len(r.processors) }

// Apply runs every transform in order over text. The first failing transform
// aborts the chain with a wrapped error; the input text up to that point is
// discarded in favor of the error.
func (r *Registry) Apply(ctx context.Context, text string) (string, error) {
	out := text
	for _, p := range r.processors {
		var err error
		out, err = p.Apply(ctx, out)
		if err != nil {
			return "", fmt.Errorf("postprocessor %s failed: %w", p.Name(), err)
		}
	}
	return out, nil
}
