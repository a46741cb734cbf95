package broker

import (
	"context"
	"errors"
)

// チャネル未初期化。接続前に操作した場合の前提条件エラー。
var ErrNotConnected = errors.New("broker channel not initialized")

// 1配信分のメッセージ。受け取った側はAckかNackを必ず呼ぶ。
type Delivery struct {
	Body          []byte
	CorrelationID string

	//応答の宛先（exchange名）
	ReplyTo string

	//customRoutingKeyヘッダ。replyToだけではルーティングできない
	//トポロジーがあるため、応答用のrouting keyを別で運ぶ。
	ReplyRoutingKey string

	Ack  func() error
	Nack func(requeue bool) error
}

type PublishOptions struct {
	CorrelationID   string
	ReplyTo         string
	ReplyRoutingKey string
}

// ブローカーへの低レベル操作。実装はinternal/infra/broker。
type Transport interface {
	// fire-and-forget。メッセージはpersistentでpublishする。
	Publish(ctx context.Context, exchange string, routingKey string, body []byte, opts PublishOptions) error

	// queueに継続的なconsumerを登録する。handlerは配信1件ごとに呼ばれ、
	// Ack/Nackを自分で呼ぶ（manual ack）。stopでconsumer登録を解除する。
	Consume(queue string, handler func(Delivery)) (stop func() error, err error)

	// 非ブロッキングで1件だけ取得する（legacyなポーリング待ち用）。
	Get(queue string) (Delivery, bool, error)
}
