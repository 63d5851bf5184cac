// Package sqlagent runs the SQL agent on a bounded worker pool so a burst of
// database questions cannot pile up unbounded goroutines, and callers can
// stop waiting when their context expires.
package sqlagent

import (
	"context"
	"sync"

	"github.com/merchantry/askdb/common/logger"
	"github.com/merchantry/askdb/nlsql"
)

type outcome struct {
	result *nlsql.Result
	err    error
}

type task struct {
	ctx      context.Context
	question string
	reply    chan outcome
}

// Pool dispatches questions to a fixed set of SQL agent workers.
type Pool struct {
	agent *nlsql.Agent
	tasks chan task

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewPool starts workers goroutines serving agent.
func NewPool(agent *nlsql.Agent, workers int) *Pool {
	if workers <= 0 {
		workers = 4
	}
	p := &Pool{
		agent: agent,
		tasks: make(chan task),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Answer submits question and waits for the worker's result or ctx expiry.
func (p *Pool) Answer(ctx context.Context, question string) (*nlsql.Result, error) {
	t := task{ctx: ctx, question: question, reply: make(chan outcome, 1)}

	select {
	case p.tasks <- t:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case out := <-t.reply:
		return out.result, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting work and waits for in-flight questions to finish.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.tasks)
	})
	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		if err := t.ctx.Err(); err != nil {
			t.reply <- outcome{err: err}
			continue
		}
		res, err := p.agent.Answer(t.ctx, t.question)
		if err != nil {
			logger.Debugf("sql agent answer failed: %v", err)
		}
		t.reply <- outcome{result: res, err: err}
	}
}
