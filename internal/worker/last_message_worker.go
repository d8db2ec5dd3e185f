package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"gopherchat/internal/logger"
	"gopherchat/internal/model"
	"gopherchat/internal/platform/rabbitmq"
)

// EventHandler applies one message-created event.
type EventHandler func(ctx context.Context, event model.MessageCreated) error

type EventObserver interface {
	ObserveMessageEvent(result string)
}

// LastMessageWorker consumes message-created events and keeps Chat.lastMessage current.
type LastMessageWorker struct {
	conn      *amqp.Connection
	queueName string
	handle    EventHandler
	observer  EventObserver
	log       *zap.SugaredLogger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewLastMessageWorker(
	conn *amqp.Connection,
	queueName string,
	handle EventHandler,
	observer EventObserver,
	log *zap.SugaredLogger,
) *LastMessageWorker {
	if log == nil {
		log = logger.Nop()
	}
	return &LastMessageWorker{
		conn:      conn,
		queueName: queueName,
		handle:    handle,
		observer:  observer,
		log:       log.With("component", "last_message_worker"),
	}
}

func (w *LastMessageWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if _, err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					w.log.Warnw("delivery channel closed")
					return
				}
				if err := w.process(workerCtx, d.Body); err != nil {
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	w.log.Infow("worker started", "queue", w.queueName)
	return nil
}

// process decodes and applies one delivery body. A non-nil error means the delivery is dropped.
func (w *LastMessageWorker) process(ctx context.Context, body []byte) error {
	var event model.MessageCreated
	if err := json.Unmarshal(body, &event); err != nil || event.ChatID == "" || event.MessageID == "" {
		w.log.Errorw("decode message event failed", "error", err)
		w.observe("invalid")
		return fmt.Errorf("decode message event failed: %v", err)
	}
	if err := w.handle(ctx, event); err != nil {
		w.log.Errorw("apply message event failed", "chat_id", event.ChatID, "message_id", event.MessageID, "error", err)
		w.observe("error")
		return err
	}
	w.observe("ok")
	return nil
}

func (w *LastMessageWorker) observe(result string) {
	if w.observer != nil {
		w.observer.ObserveMessageEvent(result)
	}
}

func (w *LastMessageWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
