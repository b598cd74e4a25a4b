// Package notify hands conversation events to the notification collaborator.
package notify

import (
	"context"
	"sync"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/trato/internal/config"
	"github.com/mbeoliero/trato/internal/entity"
	"github.com/mbeoliero/trato/pkg/metrics"
)

// Sink publishes notification events to the notification collaborator
type Sink interface {
	Publish(ctx context.Context, evt *entity.NotificationEvent) error
	Close() error
}

// AsyncDispatcher queues events and publishes them from a worker pool.
// Dispatch never blocks the caller; a full queue drops the event.
type AsyncDispatcher struct {
	sink      Sink
	queue     chan *entity.NotificationEvent
	workerNum int
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
}

// NewAsyncDispatcher creates a dispatcher over sink
func NewAsyncDispatcher(sink Sink, cfg config.NotifyConfig) *AsyncDispatcher {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}
	workerNum := cfg.WorkerNum
	if workerNum <= 0 {
		workerNum = 1
	}
	return &AsyncDispatcher{
		sink:      sink,
		queue:     make(chan *entity.NotificationEvent, queueSize),
		workerNum: workerNum,
	}
}

// Run starts the publish workers
func (d *AsyncDispatcher) Run(ctx context.Context) {
	for i := 0; i < d.workerNum; i++ {
		d.wg.Add(1)
		go d.publishLoop(ctx)
	}
	log.Info("started %d notification workers", d.workerNum)
}

func (d *AsyncDispatcher) publishLoop(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-d.queue:
			if !ok {
				return
			}
			d.publish(ctx, evt)
		}
	}
}

func (d *AsyncDispatcher) publish(ctx context.Context, evt *entity.NotificationEvent) {
	if err := d.sink.Publish(ctx, evt); err != nil {
		metrics.Notifications.WithLabelValues(evt.EventType, metrics.OutcomeFailed).Inc()
		log.CtxWarn(ctx, "publish notification failed: event_type=%s, conversation_id=%s, recipient_id=%s, error=%v",
			evt.EventType, evt.ConversationId, evt.RecipientId, err)
		return
	}
	metrics.Notifications.WithLabelValues(evt.EventType, metrics.OutcomeSent).Inc()
}

// Dispatch queues evt for publishing
func (d *AsyncDispatcher) Dispatch(ctx context.Context, evt *entity.NotificationEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		metrics.Notifications.WithLabelValues(evt.EventType, metrics.OutcomeDropped).Inc()
		return
	}

	select {
	case d.queue <- evt:
	default:
		metrics.Notifications.WithLabelValues(evt.EventType, metrics.OutcomeDropped).Inc()
		log.CtxWarn(ctx, "notification queue full, event dropped: event_type=%s, conversation_id=%s",
			evt.EventType, evt.ConversationId)
	}
}

// Close stops accepting events, drains the queue and closes the sink
func (d *AsyncDispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	return d.sink.Close()
}

// LogSink writes events to the service log. It is used when no broker is configured.
type LogSink struct{}

// Publish logs evt
func (LogSink) Publish(ctx context.Context, evt *entity.NotificationEvent) error {
	log.CtxInfo(ctx, "notification: event_type=%s, conversation_id=%s, actor_id=%s, recipient_id=%s, summary=%q",
		evt.EventType, evt.ConversationId, evt.ActorId, evt.RecipientId, evt.SummaryText)
	return nil
}

// Close is a no-op
func (LogSink) Close() error { return nil }

// NewSink returns a Kafka sink when Kafka is enabled and a LogSink otherwise
func NewSink(cfg *config.KafkaConfig) (Sink, error) {
	if !cfg.Enabled {
		return LogSink{}, nil
	}
	return NewKafkaSink(cfg)
}
