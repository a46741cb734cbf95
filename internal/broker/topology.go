package broker

// ブローカー上の名前は契約。identityサービス側と合わせてある。
const (
	//認可リクエストを投げるexchange
	RequestExchange = "authorization.ex"

	//identityサービスが応答をpublishするexchange
	ResponseExchange = "authorization.response_ex"

	//応答キュー。poisonメッセージはDLXへ落ちる。
	ResponseQueue      = "authorization.response_stock"
	ResponseRoutingKey = "authorization.stock"

	ResponseDLX = "authorization.response_stock_dlx"
	ResponseDLQ = "authorization.response_stock_dlq"

	//サービスオーダーのワークキュー
	ServiceOrderQueue = "stock.service_orders"
)
