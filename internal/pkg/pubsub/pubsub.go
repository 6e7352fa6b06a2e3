// Package pubsub 可选的进度中继：配置了 redis 时，每条已应用的流事件
// 会重新发布出去，供同机的其它仪表盘进程镜像实时进度。
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/qs3c/edna_go_client/internal/stream"
)

const ChannelProgress = "edna_progress"

// ProgressEvent 中继消息：任务标识加原始流事件
type ProgressEvent struct {
	FileID string         `json:"file_id"`
	Event  stream.Message `json:"event"`
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// Publish 发布一条进度事件。Publisher 为 nil 时静默跳过（中继可选）。
func (p *Publisher) Publish(ctx context.Context, fileID string, msg stream.Message) error {
	if p == nil || p.client == nil {
		return nil
	}

	data, err := json.Marshal(&ProgressEvent{FileID: fileID, Event: msg})
	if err != nil {
		return fmt.Errorf("failed to marshal progress event: %w", err)
	}
	return p.client.Publish(ctx, ChannelProgress, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅进度事件直到 ctx 取消。解析失败的 payload 忽略。
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*ProgressEvent)) error {
	pubsub := s.client.Subscribe(ctx, ChannelProgress)
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var event ProgressEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue // 忽略解析错误
			}

			handler(&event)
		}
	}
}
