package backend

import (
	"context"
	"log"
	"sync"
	"time"
)

// HealthPoller 按固定间隔探测后端可达性。
// 探测在超时内既未成功也未失败时按离线处理。
type HealthPoller struct {
	client   *Client
	interval time.Duration

	mu       sync.RWMutex
	online   bool
	lastSeen time.Time

	onChange func(online bool)
}

func NewHealthPoller(client *Client, interval time.Duration, onChange func(online bool)) *HealthPoller {
	return &HealthPoller{
		client:   client,
		interval: interval,
		onChange: onChange,
	}
}

// Online 最近一次探测的结论
func (p *HealthPoller) Online() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.online
}

// LastSeen 最近一次探测成功的时间，从未成功时为零值
func (p *HealthPoller) LastSeen() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSeen
}

// Run 阻塞轮询直到 ctx 取消。启动时立即探测一次。
func (p *HealthPoller) Run(ctx context.Context) {
	p.probe(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probe(ctx)
		}
	}
}

func (p *HealthPoller) probe(ctx context.Context) {
	err := p.client.Health(ctx)
	online := err == nil

	p.mu.Lock()
	changed := online != p.online
	p.online = online
	if online {
		p.lastSeen = time.Now()
	}
	p.mu.Unlock()

	if changed {
		if online {
			log.Printf("Backend online")
		} else {
			log.Printf("Backend offline: %v", err)
		}
		if p.onChange != nil {
			p.onChange(online)
		}
	}
}
