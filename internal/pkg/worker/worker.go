package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"cashier/internal/domain/payment/model"
	"cashier/pkg/logger"
)

// JournalWriter 流水落库
type JournalWriter interface {
	Create(ctx context.Context, entry *model.JournalEntry) error
}

// Metrics 写入指标，可为空
type Metrics interface {
	RecordJournalWrite(success bool)
	SetJournalQueueDepth(n int)
}

type JournalTask struct {
	Entry *model.JournalEntry
	Retry int // 重试次数
}

// Options 工作池配置
type Options struct {
	WorkerNum    int
	BufferSize   int
	MaxRetry     int
	RetryBackoff time.Duration
	WriteTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.WorkerNum <= 0 {
		o.WorkerNum = 2
	}
	if o.BufferSize <= 0 {
		o.BufferSize = 256
	}
	if o.MaxRetry < 0 {
		o.MaxRetry = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
}

// WorkerPool 异步写支付流水，失败进入重试队列，超过重试次数记录死信日志
type WorkerPool struct {
	TaskQueue  chan JournalTask
	RetryQueue chan JournalTask // 重试队列
	Writer     JournalWriter
	WorkerNum  int
	MaxRetry   int // 最大重试次数

	backoff      time.Duration
	writeTimeout time.Duration
	metrics      Metrics
	log          logger.Logger

	quit     chan struct{}
	stopOnce sync.Once
	stopped  atomic.Bool
	wg       sync.WaitGroup
}

func NewWorkerPool(writer JournalWriter, opts Options, metrics Metrics, log logger.Logger) *WorkerPool {
	opts.applyDefaults()
	if log == nil {
		log = logger.NewNop()
	}
	return &WorkerPool{
		TaskQueue:    make(chan JournalTask, opts.BufferSize),
		RetryQueue:   make(chan JournalTask, max(opts.BufferSize/2, 1)),
		Writer:       writer,
		WorkerNum:    opts.WorkerNum,
		MaxRetry:     opts.MaxRetry,
		backoff:      opts.RetryBackoff,
		writeTimeout: opts.WriteTimeout,
		metrics:      metrics,
		log:          log,
		quit:         make(chan struct{}),
	}
}

func (p *WorkerPool) Start() {
	for i := 0; i < p.WorkerNum; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	// 启动重试处理协程
	p.wg.Add(1)
	go p.retryWorker()
	p.log.Info("journal worker pool started", "workers", p.WorkerNum)
}

// Stop 停止工作池，队列中剩余的流水会尝试写入一次
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		close(p.quit)
	})
	p.wg.Wait()
}

// Submit 非阻塞入队，队列已满或工作池已停止时返回 false
func (p *WorkerPool) Submit(entry *model.JournalEntry) bool {
	if p.stopped.Load() {
		return false
	}
	select {
	case p.TaskQueue <- JournalTask{Entry: entry}:
		p.reportDepth()
		return true
	default:
		p.logFailedTask(JournalTask{Entry: entry}, errQueueFull)
		return false
	}
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case task := <-p.TaskQueue:
			p.reportDepth()
			p.handle(id, task)
		case <-p.quit:
			p.drain(id)
			return
		}
	}
}

func (p *WorkerPool) handle(id int, task JournalTask) {
	err := p.write(task)
	if err == nil {
		return
	}
	p.log.Warn("journal write failed", "worker", id, "order_id", task.Entry.OrderID, "retry", task.Retry, "error", err)

	// 如果未达到最大重试次数，加入重试队列
	if task.Retry >= p.MaxRetry {
		p.logFailedTask(task, err)
		return
	}
	task.Retry++
	select {
	case p.RetryQueue <- task:
	default:
		p.logFailedTask(task, err)
	}
}

func (p *WorkerPool) drain(id int) {
	for {
		select {
		case task := <-p.TaskQueue:
			if err := p.write(task); err != nil {
				p.logFailedTask(task, err)
			}
		default:
			p.reportDepth()
			return
		}
	}
}

func (p *WorkerPool) retryWorker() {
	defer p.wg.Done()
	for {
		select {
		case task := <-p.RetryQueue:
			// 延迟重试，避免立即重试
			select {
			case <-time.After(time.Duration(task.Retry) * p.backoff):
			case <-p.quit:
				p.logFailedTask(task, errStopped)
				continue
			}
			select {
			case p.TaskQueue <- task:
			default:
				p.logFailedTask(task, errQueueFull)
			}
		case <-p.quit:
			for {
				select {
				case task := <-p.RetryQueue:
					p.logFailedTask(task, errStopped)
				default:
					return
				}
			}
		}
	}
}

func (p *WorkerPool) write(task JournalTask) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
	defer cancel()

	err := p.Writer.Create(ctx, task.Entry)
	if p.metrics != nil {
		p.metrics.RecordJournalWrite(err == nil)
	}
	return err
}

func (p *WorkerPool) reportDepth() {
	if p.metrics != nil {
		p.metrics.SetJournalQueueDepth(len(p.TaskQueue))
	}
}

// logFailedTask 死信只记录日志
func (p *WorkerPool) logFailedTask(task JournalTask, err error) {
	p.log.Error("journal entry dropped",
		"attempt_id", task.Entry.AttemptID,
		"order_id", task.Entry.OrderID,
		"status", task.Entry.Status,
		"retry", task.Retry,
		"error", err,
	)
}
