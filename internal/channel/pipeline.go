package channel

import (
	"context"
	"sync"
)

// pipeline runs jobs one at a time in submission order, off the read loop.
// The queue is unbounded so submit never blocks.
type pipeline struct {
	mu     sync.Mutex
	jobs   []func(context.Context)
	notify chan struct{}
}

func newPipeline() *pipeline {
	return &pipeline{notify: make(chan struct{}, 1)}
}

func (p *pipeline) submit(job func(context.Context)) {
	p.mu.Lock()
	p.jobs = append(p.jobs, job)
	p.mu.Unlock()
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *pipeline) pop() (func(context.Context), bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.jobs) == 0 {
		return nil, false
	}
	job := p.jobs[0]
	p.jobs[0] = nil
	p.jobs = p.jobs[1:]
	return job, true
}

// run drains jobs until ctx is done. Jobs left over stay queued.
func (p *pipeline) run(ctx context.Context) {
	for {
		for {
			if ctx.Err() != nil {
				return
			}
			job, ok := p.pop()
			if !ok {
				break
			}
			job(ctx)
		}
		select {
		case <-ctx.Done():
			return
		case <-p.notify:
		}
	}
}
