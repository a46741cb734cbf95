package main

import (
	"inventory/internal/authz"
	"inventory/internal/config"
	"inventory/internal/consumer"
	"inventory/internal/domain/model"
	"inventory/internal/handler"
	infraBroker "inventory/internal/infra/broker"
	"inventory/internal/infra/db"
	infraRepo "inventory/internal/infra/repository"
	"inventory/internal/rpc"
	"inventory/internal/server"
	"inventory/internal/usecase"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	//.envは無ければ無いでよい
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := newLogger(cfg.GoEnv)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	//DB接続
	gormDB, err := db.Connect()
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	if err := gormDB.AutoMigrate(
		&model.Item{},
		&model.StockTransaction{},
	); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}

	//ブローカー接続。失敗は起動時の致命的エラー（リトライはプロセス再起動に任せる）。
	transport, err := infraBroker.Connect(cfg.RabbitURL, logger)
	if err != nil {
		logger.Fatal("broker connect", zap.Error(err))
	}
	defer transport.Close()

	if err := infraBroker.SetupTopology(transport, logger); err != nil {
		logger.Fatal("broker topology", zap.Error(err))
	}

	//認可まわり
	rpcClient := rpc.NewClient(transport, cfg.AuthTimeout, rpc.WaitMode(cfg.AuthReplyMode), logger)
	defer rpcClient.Close()
	gate := authz.NewGate(rpcClient)

	//Repository（GORM実装）生成
	txm := infraRepo.NewTxManagerGorm(gormDB)

	//Usecase生成
	stockUC := usecase.NewStockUsecase(txm, gate, cfg.AuthRequiredRole)
	sagaUC := usecase.NewServiceOrderUsecase(txm)

	//サービスオーダーconsumer起動
	soc := consumer.NewServiceOrderConsumer(transport, sagaUC, logger)
	stopConsumer, err := soc.Start()
	if err != nil {
		logger.Fatal("service order consumer", zap.Error(err))
	}
	defer stopConsumer()

	//Handler生成
	stockH := handler.NewStockHandler(stockUC)

	//Server起動
	addr := cfg.Port
	if addr[0] != ':' {
		addr = ":" + addr
	}

	logger.Info("server starting", zap.String("addr", addr))
	if err := server.Start(addr, stockH); err != nil {
		logger.Fatal("server", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
