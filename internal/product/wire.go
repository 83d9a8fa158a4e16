package product

import (
	"database/sql"

	"sup/internal/config"
	"sup/internal/infrastructure/mysql"
	"sup/internal/product/controller"
	"sup/internal/product/repository"
	"sup/internal/product/service"
	"sup/internal/product/usecase"
	salerepo "sup/internal/sale/repository"

	"go.uber.org/zap"
)

func NewModule(db *sql.DB, cfg *config.Config, alerts service.AlertFeed, logger *zap.Logger) *controller.Controller {
	repo := repository.NewMySQLRepository(db)
	lines := salerepo.NewMySQLSaleLineRepository(db)
	svc := service.NewService(repo, lines, mysql.NewTxRunner(db, cfg.Ledger.TxTimeout), alerts, logger)
	uc := usecase.NewProductUseCase(svc, logger, cfg.Ledger.MaxRetryAttempts)
	return controller.NewController(uc, logger)
}
