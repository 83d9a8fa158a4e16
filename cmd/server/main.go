package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"sup/internal/alert"
	"sup/internal/commons"
	"sup/internal/domain"
	"sup/internal/infrastructure/logger"
	"sup/internal/infrastructure/mysql"
	"sup/internal/infrastructure/redis"
	"sup/internal/product"
	"sup/internal/sale"
	"sup/internal/server"
)

type alertFeed interface {
	Publish(ctx context.Context, alert domain.StockAlert) error
	Recent(ctx context.Context, ownerID int, limit int) ([]domain.StockAlert, error)
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("loading .env: %v", err)
	}

	cfg, err := commons.LoadConfig("internal/config/config.yaml")
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	zapLogger, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("creating logger: %v", err)
	}
	defer zapLogger.Sync()

	if cfg.Auth.JWTSecret == "" {
		zapLogger.Fatal("auth.jwt_secret is required")
	}

	if cfg.Database.Migrate {
		if err := mysql.Migrate(mysql.DSN(cfg.Database)); err != nil {
			zapLogger.Fatal("running migrations", zap.Error(err))
		}
		zapLogger.Info("migrations applied")
	}

	db, err := mysql.NewConnection(cfg.Database)
	if err != nil {
		zapLogger.Fatal("connecting to database", zap.Error(err))
	}
	defer db.Close()
	zapLogger.Info("database connected")

	var feed alertFeed = alert.NopFeed{}
	if cfg.Redis.Enabled {
		rdb, err := redis.NewClient(cfg.Redis)
		if err != nil {
			zapLogger.Fatal("connecting to redis", zap.Error(err))
		}
		defer rdb.Close()
		feed = alert.NewRedisFeed(rdb, cfg.Redis.AlertFeedSize)
		zapLogger.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
	}

	saleCtrl := sale.NewModule(db, cfg, feed, zapLogger)
	productCtrl := product.NewModule(db, cfg, feed, zapLogger)

	router := server.NewRouter(saleCtrl, productCtrl, cfg.Auth.JWTSecret, zapLogger)

	srv := server.New(cfg.Server, router, zapLogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		zapLogger.Error("server stopped with error", zap.Error(err))
		return
	}

	zapLogger.Info("server stopped gracefully")
}
