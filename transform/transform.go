// Package transform implements the two-phase sample transform pipeline.
//
// Pre-cache ops are deterministic and safe to memoize; their output is
// what cache backends store. Post-cache ops may be stochastic
// (augmentation) and are re-applied on every access, cache hit or not.
//
// A pipeline's identity is a content hash over its pre-cache ops, so two
// pipelines share cached samples only when their pre-cache stages are
// textually identical. This replaces trusting a caller-supplied composer
// id, where a collision would silently serve stale samples.
package transform

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/imageds/sample"
)

// Stage is the contract cache backends and datasets see.
type Stage interface {
	// PreCache applies the deterministic phase. Safe to memoize.
	PreCache(s *sample.Sample) (*sample.Sample, error)
	// PostCache applies the per-access phase. Never memoized.
	PostCache(s *sample.Sample) (*sample.Sample, error)
	// ID returns a stable identity for the deterministic phase.
	ID() string
}

// Op is a single named transform step.
type Op interface {
	// Name identifies the op kind.
	Name() string
	// Params returns a stable textual rendering of the op parameters.
	Params() string
	// Apply transforms the sample in place or returns a replacement.
	Apply(s *sample.Sample) (*sample.Sample, error)
}

type funcOp struct {
	name   string
	params string
	fn     func(*sample.Sample) (*sample.Sample, error)
}

func (o funcOp) Name() string   { return o.name }
func (o funcOp) Params() string { return o.params }
func (o funcOp) Apply(s *sample.Sample) (*sample.Sample, error) {
	return o.fn(s)
}

// NewOp wraps a function as an Op. params must render every parameter
// that changes the op's output; it feeds the pipeline identity hash.
func NewOp(name, params string, fn func(*sample.Sample) (*sample.Sample, error)) Op {
	return funcOp{name: name, params: params, fn: fn}
}

// Pipeline composes pre-cache and post-cache op chains.
// The zero value is an empty pipeline; both phases pass samples through.
type Pipeline struct {
	pre  []Op
	post []Op
}

// NewPipeline creates an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// AddPre appends deterministic ops to the pre-cache phase.
func (p *Pipeline) AddPre(ops ...Op) *Pipeline {
	p.pre = append(p.pre, ops...)
	return p
}

// AddPost appends ops to the post-cache phase.
func (p *Pipeline) AddPost(ops ...Op) *Pipeline {
	p.post = append(p.post, ops...)
	return p
}

// PreCache implements Stage.
func (p *Pipeline) PreCache(s *sample.Sample) (*sample.Sample, error) {
	return applyOps(p.pre, s)
}

// PostCache implements Stage.
func (p *Pipeline) PostCache(s *sample.Sample) (*sample.Sample, error) {
	return applyOps(p.post, s)
}

func applyOps(ops []Op, s *sample.Sample) (*sample.Sample, error) {
	var err error
	for _, op := range ops {
		s, err = op.Apply(s)
		if err != nil {
			return nil, fmt.Errorf("transform: op %s: %w", op.Name(), err)
		}
	}
	return s, nil
}

// ID implements Stage. The hash covers only the pre-cache phase: the
// post-cache phase never touches stored bytes, so it must not invalidate
// caches.
func (p *Pipeline) ID() string {
	if p == nil || len(p.pre) == 0 {
		return "identity"
	}
	h := xxhash.New()
	for _, op := range p.pre {
		_, _ = h.WriteString(op.Name())
		_, _ = h.WriteString("(")
		_, _ = h.WriteString(op.Params())
		_, _ = h.WriteString(");")
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
