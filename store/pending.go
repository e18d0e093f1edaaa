package store

import "sync"

// Op is a staged write. A Delete op carries no value.
type Op struct {
	Value  []byte
	Delete bool
}

// Pending holds writes that have been staged but not yet saved. Remote backends embed
// it so Get observes staged values before they are flushed.
type Pending struct {
	mu  sync.Mutex
	ops map[string]Op
}

func (p *Pending) Stage(key string, value []byte) {
	p.put(key, Op{Value: value})
}

func (p *Pending) StageDelete(key string) {
	p.put(key, Op{Delete: true})
}

func (p *Pending) put(key string, op Op) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ops == nil {
		p.ops = make(map[string]Op)
	}
	p.ops[key] = op
}

// Lookup returns the staged op for key, if any.
func (p *Pending) Lookup(key string) (Op, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	op, ok := p.ops[key]
	return op, ok
}

// Drain removes and returns every staged op.
func (p *Pending) Drain() map[string]Op {
	p.mu.Lock()
	defer p.mu.Unlock()
	ops := p.ops
	p.ops = nil
	return ops
}

// Restore puts back ops whose flush failed. Keys staged again since Drain keep the newer op.
func (p *Pending) Restore(ops map[string]Op) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ops == nil {
		p.ops = make(map[string]Op, len(ops))
	}
	for k, op := range ops {
		if _, newer := p.ops[k]; !newer {
			p.ops[k] = op
		}
	}
}

// Len is the number of staged ops.
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ops)
}
