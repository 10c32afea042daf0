// Package events 发布排课与代课领域事件
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kebiao/kebiao/pkg/logger"
)

// 事件类型，同时作为路由键
const (
	ScheduleGenerated         = "schedule.generated"
	ExamsGenerated            = "exams.generated"
	AbsenceReported           = "absence.reported"
	AbsenceCancelled          = "absence.cancelled"
	SubstitutionApproved      = "substitution.approved"
	SubstitutionStatusChanged = "substitution.status_changed"
)

// Event 领域事件
type Event struct {
	ID         uuid.UUID   `json:"id"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Actor      string      `json:"actor,omitempty"`
	Payload    interface{} `json:"payload"`
}

// New 创建事件
func New(typ, actor string, payload interface{}) Event {
	return Event{
		ID:         uuid.New(),
		Type:       typ,
		OccurredAt: time.Now().UTC(),
		Actor:      actor,
		Payload:    payload,
	}
}

// Publisher 事件发布接口
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// AMQP 发布到 RabbitMQ 的 topic 交换机
type AMQP struct {
	conn     *amqp.Connection
	mu       sync.Mutex // amqp.Channel 不能并发使用
	ch       *amqp.Channel
	exchange string
	timeout  time.Duration
}

// NewAMQP 连接 RabbitMQ 并声明交换机
func NewAMQP(url, exchange string, timeout time.Duration) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AMQP{conn: conn, ch: ch, exchange: exchange, timeout: timeout}, nil
}

// Publish 以持久化消息发布事件
func (p *AMQP) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx, p.exchange, e.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID.String(),
		Timestamp:    e.OccurredAt,
		Type:         e.Type,
		Body:         body,
	})
}

// Close 关闭通道和连接
func (p *AMQP) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

// Noop 只记录日志的发布器
type Noop struct{}

// Publish 记录事件
func (Noop) Publish(ctx context.Context, e Event) error {
	logger.WithContext(ctx).Debug().
		Str("event", e.Type).
		Str("event_id", e.ID.String()).
		Msg("领域事件")
	return nil
}

// Close 无操作
func (Noop) Close() error { return nil }

// Recorder 把事件保存在内存中
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish 记录事件
func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Close 无操作
func (r *Recorder) Close() error { return nil }

// Events 返回已记录事件的副本
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types 返回已记录事件的类型
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
