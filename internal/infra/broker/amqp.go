package broker

import (
	"context"
	"fmt"
	"sync"

	"inventory/internal/broker"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RabbitMQへの接続1本とチャネル1本を持つTransport実装。
// チャネルは共有リソースなので全操作をmutexで直列化する。
type AMQPTransport struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	mu     sync.Mutex
	logger *zap.Logger
}

// Connect は接続とデフォルトチャネルを確立する。
// 失敗は起動時の致命的エラーとして呼び出し側に返す（ここではリトライしない）。
func Connect(url string, logger *zap.Logger) (*AMQPTransport, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("broker connect: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("broker channel: %w", err)
	}

	logger.Info("broker connected")
	return &AMQPTransport{conn: conn, ch: ch, logger: logger}, nil
}

func (t *AMQPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ch != nil {
		t.ch.Close()
	}
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}

// DeclareExchange は冪等。起動時に何度呼んでも安全。
func (t *AMQPTransport) DeclareExchange(name string, kind string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ch == nil {
		return broker.ErrNotConnected
	}
	return t.ch.ExchangeDeclare(name, kind, true, false, false, false, nil)
}

// DeclareQueue はdurableなキューを作る。dlxを指定すると
// x-dead-letter-exchangeが設定され、rejectされたメッセージがそこへ落ちる。
func (t *AMQPTransport) DeclareQueue(name string, dlx string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ch == nil {
		return broker.ErrNotConnected
	}

	var args amqp.Table
	if dlx != "" {
		args = amqp.Table{"x-dead-letter-exchange": dlx}
	}

	_, err := t.ch.QueueDeclare(name, true, false, false, false, args)
	return err
}

func (t *AMQPTransport) Bind(queue string, exchange string, routingKey string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ch == nil {
		return broker.ErrNotConnected
	}
	return t.ch.QueueBind(queue, routingKey, exchange, false, nil)
}

func (t *AMQPTransport) Publish(ctx context.Context, exchange string, routingKey string, body []byte, opts broker.PublishOptions) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ch == nil {
		return broker.ErrNotConnected
	}

	var headers amqp.Table
	if opts.ReplyRoutingKey != "" {
		headers = amqp.Table{"customRoutingKey": opts.ReplyRoutingKey}
	}

	return t.ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: opts.CorrelationID,
		ReplyTo:       opts.ReplyTo,
		Headers:       headers,
		Body:          body,
	})
}

func (t *AMQPTransport) Consume(queue string, handler func(broker.Delivery)) (func() error, error) {
	t.mu.Lock()
	if t.ch == nil {
		t.mu.Unlock()
		return nil, broker.ErrNotConnected
	}

	//stopで解除できるようconsumerTagはこちらで採番する
	tag := uuid.NewString()
	deliveries, err := t.ch.ConsumeWithContext(context.Background(), queue, tag, false, false, false, false, nil)
	t.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}

	go func() {
		for d := range deliveries {
			handler(t.wrap(d))
		}
	}()

	stop := func() error {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.ch == nil {
			return nil
		}
		//Cancelでdeliveriesが閉じてgoroutineも抜ける
		return t.ch.Cancel(tag, false)
	}
	return stop, nil
}

// Get は1件だけ取りに行く。メッセージが無ければfalse。
func (t *AMQPTransport) Get(queue string) (broker.Delivery, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ch == nil {
		return broker.Delivery{}, false, broker.ErrNotConnected
	}

	d, ok, err := t.ch.Get(queue, false)
	if err != nil || !ok {
		return broker.Delivery{}, false, err
	}
	return t.wrap(d), true, nil
}

func (t *AMQPTransport) wrap(d amqp.Delivery) broker.Delivery {
	replyKey := ""
	if d.Headers != nil {
		if v, ok := d.Headers["customRoutingKey"].(string); ok {
			replyKey = v
		}
	}

	return broker.Delivery{
		Body:            d.Body,
		CorrelationID:   d.CorrelationId,
		ReplyTo:         d.ReplyTo,
		ReplyRoutingKey: replyKey,
		Ack: func() error {
			return d.Ack(false)
		},
		Nack: func(requeue bool) error {
			return d.Nack(false, requeue)
		},
	}
}
