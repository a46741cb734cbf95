package rpc_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"inventory/internal/broker"
	"inventory/internal/rpc"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =====================
// Fakes
// =====================

type publishedMsg struct {
	Exchange   string
	RoutingKey string
	Body       []byte
	Opts       broker.PublishOptions
}

// スクリプト可能なTransportフェイク。Consumeで登録されたhandlerに
// deliverで応答を流し込み、GetはqueueからFIFOで返す。
type fakeTransport struct {
	mu        sync.Mutex
	published []publishedMsg
	handler   func(broker.Delivery)
	stopped   bool
	queue     []broker.Delivery
}

func (f *fakeTransport) Publish(ctx context.Context, exchange string, routingKey string, body []byte, opts broker.PublishOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMsg{Exchange: exchange, RoutingKey: routingKey, Body: body, Opts: opts})
	return nil
}

func (f *fakeTransport) Consume(queue string, handler func(broker.Delivery)) (func() error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
	return func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.stopped = true
		return nil
	}, nil
}

func (f *fakeTransport) Get(queue string) (broker.Delivery, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return broker.Delivery{}, false, nil
	}
	d := f.queue[0]
	f.queue = f.queue[1:]
	return d, true, nil
}

func (f *fakeTransport) lastPublished(t *testing.T) publishedMsg {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.published)
	return f.published[len(f.published)-1]
}

func (f *fakeTransport) waitPublished(t *testing.T) publishedMsg {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		n := len(f.published)
		f.mu.Unlock()
		if n > 0 {
			return f.lastPublished(t)
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("nothing published")
	return publishedMsg{}
}

// ackRecorder はDeliveryのAck/Nack呼び出しを記録する。
type ackRecorder struct {
	mu      sync.Mutex
	acked   bool
	nacked  bool
	requeue bool
}

func (a *ackRecorder) delivery(correlationID string, body []byte) broker.Delivery {
	return broker.Delivery{
		Body:          body,
		CorrelationID: correlationID,
		Ack: func() error {
			a.mu.Lock()
			defer a.mu.Unlock()
			a.acked = true
			return nil
		},
		Nack: func(requeue bool) error {
			a.mu.Lock()
			defer a.mu.Unlock()
			a.nacked = true
			a.requeue = requeue
			return nil
		},
	}
}

func (a *ackRecorder) state() (acked bool, nacked bool, requeue bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acked, a.nacked, a.requeue
}

func newClient(ft *fakeTransport, timeout time.Duration, mode rpc.WaitMode) *rpc.Client {
	return rpc.NewClient(ft, timeout, mode, zap.NewNop())
}

// =====================
// Push mode
// =====================

func TestClient_Call_ResolvesMatchingReply(t *testing.T) {
	ft := &fakeTransport{}
	c := newClient(ft, time.Second, rpc.ModePush)

	type result struct {
		raw json.RawMessage
		err error
	}
	done := make(chan result, 1)
	go func() {
		raw, err := c.Call(context.Background(), map[string]string{"token": "abc"})
		done <- result{raw, err}
	}()

	pub := ft.waitPublished(t)
	assert.Equal(t, broker.RequestExchange, pub.Exchange)
	assert.Equal(t, broker.ResponseExchange, pub.Opts.ReplyTo)
	assert.Equal(t, broker.ResponseRoutingKey, pub.Opts.ReplyRoutingKey)
	require.NotEmpty(t, pub.Opts.CorrelationID)

	rec := &ackRecorder{}
	ft.handler(rec.delivery(pub.Opts.CorrelationID, []byte(`{"valid":true}`)))

	res := <-done
	require.NoError(t, res.err)
	assert.JSONEq(t, `{"valid":true}`, string(res.raw))

	acked, nacked, _ := rec.state()
	assert.True(t, acked)
	assert.False(t, nacked)
}

func TestClient_Call_Timeout(t *testing.T) {
	ft := &fakeTransport{}
	c := newClient(ft, 30*time.Millisecond, rpc.ModePush)

	_, err := c.Call(context.Background(), map[string]string{"token": "abc"})
	assert.ErrorIs(t, err, rpc.ErrTimeout)
}

func TestClient_Call_LateReplyDiscarded(t *testing.T) {
	ft := &fakeTransport{}
	c := newClient(ft, 30*time.Millisecond, rpc.ModePush)

	_, err := c.Call(context.Background(), map[string]string{"token": "abc"})
	require.ErrorIs(t, err, rpc.ErrTimeout)

	//タイムアウト後に届いた応答は解決先が無いので破棄される
	pub := ft.lastPublished(t)
	rec := &ackRecorder{}
	ft.handler(rec.delivery(pub.Opts.CorrelationID, []byte(`{"valid":true}`)))

	acked, nacked, requeue := rec.state()
	assert.False(t, acked)
	assert.True(t, nacked)
	assert.False(t, requeue)
}

func TestClient_Call_ReplyWithoutCorrelationIDDiscarded(t *testing.T) {
	ft := &fakeTransport{}
	c := newClient(ft, time.Second, rpc.ModePush)

	done := make(chan error, 1)
	go func() {
		_, err := c.Call(context.Background(), map[string]string{"token": "abc"})
		done <- err
	}()

	pub := ft.waitPublished(t)

	//相関IDなしの応答はrequeueせず破棄
	noID := &ackRecorder{}
	ft.handler(noID.delivery("", []byte(`{"valid":true}`)))

	acked, nacked, requeue := noID.state()
	assert.False(t, acked)
	assert.True(t, nacked)
	assert.False(t, requeue)

	//本来の応答はその後でも解決できる
	rec := &ackRecorder{}
	ft.handler(rec.delivery(pub.Opts.CorrelationID, []byte(`{"valid":false}`)))
	require.NoError(t, <-done)
}

func TestClient_Call_ConcurrentCallsDoNotCrossResolve(t *testing.T) {
	ft := &fakeTransport{}
	c := newClient(ft, time.Second, rpc.ModePush)

	type result struct {
		raw json.RawMessage
		err error
	}
	doneA := make(chan result, 1)
	doneB := make(chan result, 1)

	go func() {
		raw, err := c.Call(context.Background(), map[string]string{"call": "A"})
		doneA <- result{raw, err}
	}()

	//Aのpublishを待ってからBを起動して、publish順を固定する
	pubA := ft.waitPublished(t)

	go func() {
		raw, err := c.Call(context.Background(), map[string]string{"call": "B"})
		doneB <- result{raw, err}
	}()

	var pubB publishedMsg
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		ft.mu.Lock()
		n := len(ft.published)
		if n >= 2 {
			pubB = ft.published[1]
		}
		ft.mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	require.NotEmpty(t, pubB.Opts.CorrelationID)
	require.NotEqual(t, pubA.Opts.CorrelationID, pubB.Opts.CorrelationID)

	//Bの応答を先に流してもAはBの応答を受け取らない
	recB := &ackRecorder{}
	ft.handler(recB.delivery(pubB.Opts.CorrelationID, []byte(`{"for":"B"}`)))
	recA := &ackRecorder{}
	ft.handler(recA.delivery(pubA.Opts.CorrelationID, []byte(`{"for":"A"}`)))

	resA := <-doneA
	resB := <-doneB
	require.NoError(t, resA.err)
	require.NoError(t, resB.err)
	assert.JSONEq(t, `{"for":"A"}`, string(resA.raw))
	assert.JSONEq(t, `{"for":"B"}`, string(resB.raw))
}

func TestClient_Close_StopsConsumer(t *testing.T) {
	ft := &fakeTransport{}
	c := newClient(ft, 30*time.Millisecond, rpc.ModePush)

	_, err := c.Call(context.Background(), map[string]string{"token": "abc"})
	require.ErrorIs(t, err, rpc.ErrTimeout)

	require.NoError(t, c.Close())
	ft.mu.Lock()
	defer ft.mu.Unlock()
	assert.True(t, ft.stopped)
}

// =====================
// Poll mode
// =====================

func TestClient_Poll_SkipsMismatchedAndResolves(t *testing.T) {
	ft := &fakeTransport{}
	c := newClient(ft, time.Second, rpc.ModePoll)

	otherRec := &ackRecorder{}
	noIDRec := &ackRecorder{}

	done := make(chan json.RawMessage, 1)
	errCh := make(chan error, 1)
	go func() {
		raw, err := c.Call(context.Background(), map[string]string{"token": "abc"})
		if err != nil {
			errCh <- err
			return
		}
		done <- raw
	}()

	pub := ft.waitPublished(t)

	//相関IDなし → 破棄、他呼び出し宛て → requeue、一致 → 解決
	matchRec := &ackRecorder{}
	ft.mu.Lock()
	ft.queue = []broker.Delivery{
		noIDRec.delivery("", []byte(`{}`)),
		otherRec.delivery("someone-else", []byte(`{}`)),
		matchRec.delivery(pub.Opts.CorrelationID, []byte(`{"valid":true}`)),
	}
	ft.mu.Unlock()

	select {
	case raw := <-done:
		assert.JSONEq(t, `{"valid":true}`, string(raw))
	case err := <-errCh:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("poll call did not resolve")
	}

	_, nacked, requeue := noIDRec.state()
	assert.True(t, nacked)
	assert.False(t, requeue)

	_, nacked, requeue = otherRec.state()
	assert.True(t, nacked)
	assert.True(t, requeue)

	acked, _, _ := matchRec.state()
	assert.True(t, acked)
}

func TestClient_Poll_Timeout(t *testing.T) {
	ft := &fakeTransport{}
	c := newClient(ft, 50*time.Millisecond, rpc.ModePoll)

	_, err := c.Call(context.Background(), map[string]string{"token": "abc"})
	assert.ErrorIs(t, err, rpc.ErrTimeout)
}
