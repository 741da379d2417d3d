package scanner

import (
	"context"
	"errors"
	"runtime"
	"sync"
)

// ErrPoolClosed 在 Close 之后提交任务时返回
var ErrPoolClosed = errors.New("worker pool closed")

type poolJob struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

// Pool 是固定大小的阻塞任务工作池，用于承载哈希、解码和编码等耗 CPU/IO 的调用。
type Pool struct {
	tasks  chan poolJob
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewPool 创建工作池，size <= 0 时使用 CPU 核数
func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	p := &Pool{tasks: make(chan poolJob)}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.tasks {
		if err := job.ctx.Err(); err != nil {
			job.done <- err
			continue
		}
		job.done <- job.fn(job.ctx)
	}
}

// Do 把 fn 交给工作池执行并阻塞等待其结果。
// 在等待空闲工人期间 ctx 被取消则直接返回 ctx.Err()。
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	job := poolJob{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case p.tasks <- job:
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-job.done
}

// Close 停止接收新任务，并等待所有工人退出
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}
