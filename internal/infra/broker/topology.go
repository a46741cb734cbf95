package broker

import (
	"inventory/internal/broker"

	"go.uber.org/zap"
)

// SetupTopology はexchange・queue・bindingを宣言する。
// 全て冪等なので起動のたびに呼んでよい。
func SetupTopology(t *AMQPTransport, logger *zap.Logger) error {
	exchanges := []string{
		broker.ResponseDLX,
		broker.RequestExchange,
		broker.ResponseExchange,
	}
	for _, name := range exchanges {
		if err := t.DeclareExchange(name, "direct"); err != nil {
			return err
		}
	}

	//応答キューにはDLXを付ける。rejectされたpoisonメッセージはDLQへ。
	if err := t.DeclareQueue(broker.ResponseQueue, broker.ResponseDLX); err != nil {
		return err
	}
	if err := t.DeclareQueue(broker.ResponseDLQ, ""); err != nil {
		return err
	}
	if err := t.DeclareQueue(broker.ServiceOrderQueue, ""); err != nil {
		return err
	}

	if err := t.Bind(broker.ResponseQueue, broker.ResponseExchange, broker.ResponseRoutingKey); err != nil {
		return err
	}
	//dead letter時もrouting keyは元のまま運ばれるので同じキーでbindする
	if err := t.Bind(broker.ResponseDLQ, broker.ResponseDLX, broker.ResponseRoutingKey); err != nil {
		return err
	}

	logger.Info("broker topology ready")
	return nil
}
