package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/village/internal/repository"
	"github.com/d60-Lab/village/pkg/logger"
)

type purgeJob struct {
	batchID string
	enqAt   time.Time
}

// ContactPurger 异步清理已完成匹配的通讯录批次；
// 另有定时扫描兜底删除超过保留期的批次（队列满丢弃时生效）。
type ContactPurger struct {
	contactRepo   repository.ContactRepository
	ch            chan purgeJob
	retention     time.Duration
	sweepInterval time.Duration
	metricsCh     chan time.Duration
}

func NewContactPurger(contactRepo repository.ContactRepository, queueSize int, retention, sweepInterval time.Duration) *ContactPurger {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if retention <= 0 {
		retention = 10 * time.Minute
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	return &ContactPurger{
		contactRepo:   contactRepo,
		ch:            make(chan purgeJob, queueSize),
		retention:     retention,
		sweepInterval: sweepInterval,
		metricsCh:     make(chan time.Duration, 4096),
	}
}

// Start 启动若干 worker 与一个扫描协程；返回停止函数。
// 停止函数等待进行中的清理结束，再同步排空队列；超时后可再次调用
func (p *ContactPurger) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = 2
	}
	stopCh := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case job := <-p.ch:
					p.purge(job)
				case <-stopCh:
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.sweepLoop(stopCh)
	}()

	var once sync.Once
	done := make(chan struct{})
	return func(ctx context.Context) error {
		once.Do(func() {
			close(stopCh)
			go func() {
				wg.Wait()
				close(done)
			}()
		})
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		// 保证摘要不残留
		for {
			select {
			case job := <-p.ch:
				p.purge(job)
			case <-ctx.Done():
				return ctx.Err()
			default:
				return nil
			}
		}
	}
}

func (p *ContactPurger) purge(job purgeJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n, err := p.contactRepo.DeleteBatch(ctx, job.batchID)
	if err != nil {
		logger.Warn("purge contact batch failed", zap.String("batch", job.batchID), zap.Error(err))
		return
	}
	logger.Debug("contact batch purged", zap.String("batch", job.batchID), zap.Int64("rows", n))
	select {
	case p.metricsCh <- time.Since(job.enqAt):
	default:
	}
}

func (p *ContactPurger) sweepLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(p.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_, _ = p.Sweep(context.Background())
		}
	}
}

// Sweep 删除超过保留期的批次
func (p *ContactPurger) Sweep(ctx context.Context) (int64, error) {
	n, err := p.contactRepo.DeleteOlderThan(ctx, time.Now().UTC().Add(-p.retention))
	if err != nil {
		logger.Warn("sweep hashed contacts failed", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		logger.Info("swept stale hashed contacts", zap.Int64("rows", n))
	}
	return n, nil
}

// Enqueue 投递清理任务；队列满时交给定时扫描处理
func (p *ContactPurger) Enqueue(batchID string) {
	select {
	case p.ch <- purgeJob{batchID: batchID, enqAt: time.Now()}:
	default:
		logger.Warn("purge queue full, leaving batch to sweep", zap.String("batch", batchID))
	}
}

// Metrics 返回清理落地耗时的只读通道
func (p *ContactPurger) Metrics() <-chan time.Duration { return p.metricsCh }

// QueueLen 返回当前队列长度（采样值）
func (p *ContactPurger) QueueLen() int { return len(p.ch) }
