package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"inventory/internal/broker"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 期限内に一致する応答が来なかった
var ErrTimeout = errors.New("rpc: no matching reply before deadline")

// 応答の待ち方。pushが基本で、pollは旧実装互換のポーリング待ち。
type WaitMode string

const (
	ModePush WaitMode = "push"
	ModePoll WaitMode = "poll"
)

// ポーリング待ちの取得間隔
const pollInterval = 100 * time.Millisecond

// 非同期なpublish/consumeを、相関IDで突き合わせた同期呼び出しに変えるクライアント。
// 1回のCallにつき応答はちょうど1回だけ解決される。
type Client struct {
	transport broker.Transport
	timeout   time.Duration
	mode      WaitMode
	logger    *zap.Logger

	mu      sync.Mutex
	pending map[string]chan json.RawMessage
	stop    func() error
	started bool
}

func NewClient(transport broker.Transport, timeout time.Duration, mode WaitMode, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if mode == "" {
		mode = ModePush
	}
	return &Client{
		transport: transport,
		timeout:   timeout,
		mode:      mode,
		logger:    logger,
		pending:   make(map[string]chan json.RawMessage),
	}
}

// Call はpayloadをリクエストexchangeへpublishし、相関IDが一致する応答を待つ。
// タイムアウトかctxキャンセルが先に来たらそこで終端し、遅れて届いた応答が
// この呼び出しを解決することはない。
func (c *Client) Call(ctx context.Context, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	correlationID := uuid.NewString()
	opts := broker.PublishOptions{
		CorrelationID:   correlationID,
		ReplyTo:         broker.ResponseExchange,
		ReplyRoutingKey: broker.ResponseRoutingKey,
	}

	if c.mode == ModePoll {
		if err := c.transport.Publish(ctx, broker.RequestExchange, "", body, opts); err != nil {
			return nil, err
		}
		return c.waitPolling(ctx, correlationID)
	}

	//応答がpublishより先に届いても取りこぼさないよう、先に登録する
	ch, err := c.register(correlationID)
	if err != nil {
		return nil, err
	}

	if err := c.transport.Publish(ctx, broker.RequestExchange, "", body, opts); err != nil {
		c.unregister(correlationID)
		return nil, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case reply := <-ch:
		return reply, nil
	case <-timer.C:
		if c.unregister(correlationID) {
			return nil, ErrTimeout
		}
		//dispatcherが先に解決していた。応答はもうchに入っている。
		return <-ch, nil
	case <-ctx.Done():
		if c.unregister(correlationID) {
			return nil, ctx.Err()
		}
		return <-ch, nil
	}
}

// register はPendingCallを作り、応答キューのdispatcherを必要なら起動する。
func (c *Client) register(correlationID string) (chan json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		stop, err := c.transport.Consume(broker.ResponseQueue, c.dispatch)
		if err != nil {
			return nil, fmt.Errorf("rpc: response consumer: %w", err)
		}
		c.stop = stop
		c.started = true
	}

	ch := make(chan json.RawMessage, 1)
	c.pending[correlationID] = ch
	return ch, nil
}

// unregister は未解決のPendingCallを取り除く。
// 既にdispatcherが解決済みならfalseを返す（先に書いた方が勝ち）。
func (c *Client) unregister(correlationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[correlationID]; !ok {
		return false
	}
	delete(c.pending, correlationID)
	return true
}

// dispatch は応答キューの全配信を受け、相関IDで待ち手に振り分ける。
func (c *Client) dispatch(d broker.Delivery) {
	//相関IDなしは突き合わせ不能。requeueせず破棄（DLX行き）。
	if d.CorrelationID == "" {
		c.logger.Warn("reply without correlation id, discarding")
		_ = d.Nack(false)
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[d.CorrelationID]
	if ok {
		delete(c.pending, d.CorrelationID)
		//chはバッファ1なのでロック中に送っても詰まらない
		ch <- append(json.RawMessage(nil), d.Body...)
	}
	c.mu.Unlock()

	if ok {
		_ = d.Ack()
		return
	}

	//待ち手のいない応答＝タイムアウト後の遅延応答。解決先が無いので破棄。
	c.logger.Warn("late reply discarded", zap.String("correlation_id", d.CorrelationID))
	_ = d.Nack(false)
}

// waitPolling は応答キューを一定間隔でGetし続ける旧実装互換の待ち方。
func (c *Client) waitPolling(ctx context.Context, correlationID string) (json.RawMessage, error) {
	deadline := time.NewTimer(c.timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		d, ok, err := c.transport.Get(broker.ResponseQueue)
		if err != nil {
			return nil, err
		}
		if ok {
			switch d.CorrelationID {
			case "":
				//相関IDなしは破棄
				_ = d.Nack(false)
			case correlationID:
				_ = d.Ack()
				return append(json.RawMessage(nil), d.Body...), nil
			default:
				//他の呼び出し宛てなのでキューに戻す
				_ = d.Nack(true)
			}
		}

		select {
		case <-deadline.C:
			return nil, ErrTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close はdispatcherのconsumer登録を解除する。
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop == nil {
		return nil
	}
	err := c.stop()
	c.stop = nil
	c.started = false
	return err
}
