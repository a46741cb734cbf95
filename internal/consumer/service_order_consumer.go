package consumer

import (
	"context"
	"encoding/json"

	"inventory/internal/broker"
	"inventory/internal/usecase"

	"go.uber.org/zap"
)

// sagaへの依存はこの形だけ
type SagaExecutor interface {
	Execute(ctx context.Context, req usecase.ServiceOrderRequest) ([]int64, error)
}

// 成功応答
type successReply struct {
	Message        string  `json:"message"`
	TransactionIDs []int64 `json:"transaction_ids"`
	CorrelationID  string  `json:"correlation_id"`
}

// 失敗応答。内部の詳細は漏らさず相関IDだけで突き合わせてもらう。
type failureReply struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id"`
}

// サービスオーダーのワークキューを待ち受けるconsumer。
// RPCクライアントの鏡像で、相関付きリクエストを受けてreplyToへ必ず1回応答する。
// タイムアウトは持たない。
type ServiceOrderConsumer struct {
	transport broker.Transport
	saga      SagaExecutor
	logger    *zap.Logger
}

func NewServiceOrderConsumer(transport broker.Transport, saga SagaExecutor, logger *zap.Logger) *ServiceOrderConsumer {
	return &ServiceOrderConsumer{transport: transport, saga: saga, logger: logger}
}

func (c *ServiceOrderConsumer) Start() (func() error, error) {
	return c.transport.Consume(broker.ServiceOrderQueue, c.handle)
}

// handle は配信1件をsagaで処理して応答をpublishし、結果に関わらずackする。
// 業務メッセージの再実行は冪等ではないため、再配信にリトライを任せない。
func (c *ServiceOrderConsumer) handle(d broker.Delivery) {
	ctx := context.Background()

	var req usecase.ServiceOrderRequest
	if err := json.Unmarshal(d.Body, &req); err != nil {
		if d.CorrelationID == "" {
			//応答も返せないpoisonメッセージ。requeueせず隔離する。
			c.logger.Warn("malformed service order without correlation id, discarding")
			_ = d.Nack(false)
			return
		}
		c.logger.Warn("malformed service order", zap.String("correlation_id", d.CorrelationID), zap.Error(err))
		c.replyFailure(ctx, d)
		_ = d.Ack()
		return
	}

	ids, err := c.saga.Execute(ctx, req)
	if err != nil {
		if ve, ok := usecase.AsValidationError(err); ok {
			c.logger.Info("service order rejected",
				zap.String("correlation_id", d.CorrelationID),
				zap.String("reason", ve.Reason))
		} else {
			c.logger.Error("service order failed",
				zap.String("correlation_id", d.CorrelationID),
				zap.Error(err))
		}
		c.replyFailure(ctx, d)
		_ = d.Ack()
		return
	}

	c.replySuccess(ctx, d, ids)
	_ = d.Ack()
}

func (c *ServiceOrderConsumer) replySuccess(ctx context.Context, d broker.Delivery, ids []int64) {
	c.reply(ctx, d, successReply{
		Message:        "service order processed",
		TransactionIDs: ids,
		CorrelationID:  d.CorrelationID,
	})
}

func (c *ServiceOrderConsumer) replyFailure(ctx context.Context, d broker.Delivery) {
	c.reply(ctx, d, failureReply{
		Error:         "internal error processing service order",
		CorrelationID: d.CorrelationID,
	})
}

func (c *ServiceOrderConsumer) reply(ctx context.Context, d broker.Delivery, payload any) {
	if d.ReplyTo == "" {
		c.logger.Warn("service order without reply_to, no reply published",
			zap.String("correlation_id", d.CorrelationID))
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("marshal reply", zap.Error(err))
		return
	}

	err = c.transport.Publish(ctx, d.ReplyTo, d.ReplyRoutingKey, body, broker.PublishOptions{
		CorrelationID: d.CorrelationID,
	})
	if err != nil {
		c.logger.Error("publish reply",
			zap.String("correlation_id", d.CorrelationID),
			zap.Error(err))
	}
}
