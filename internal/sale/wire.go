package sale

import (
	"database/sql"

	clientrepo "sup/internal/client/repository"
	"sup/internal/config"
	"sup/internal/infrastructure/mysql"
	productrepo "sup/internal/product/repository"
	"sup/internal/sale/controller"
	salerepo "sup/internal/sale/repository"
	"sup/internal/sale/service"
	"sup/internal/sale/usecase"
	settingsrepo "sup/internal/settings/repository"

	"go.uber.org/zap"
)

func NewModule(db *sql.DB, cfg *config.Config, alerts service.AlertPublisher, logger *zap.Logger) *controller.SaleController {
	saleRepo := salerepo.NewMySQLSaleRepository(db)
	lineRepo := salerepo.NewMySQLSaleLineRepository(db)
	productRepo := productrepo.NewMySQLRepository(db)
	clientRepo := clientrepo.NewMySQLClientRepository(db)
	settingsRepo := settingsrepo.NewMySQLOwnerSettingsRepository(db)

	ledger := service.NewLedgerService(
		mysql.NewTxRunner(db, cfg.Ledger.TxTimeout),
		productRepo,
		saleRepo,
		lineRepo,
		alerts,
		logger,
	)

	uc := usecase.NewSaleUseCase(
		ledger,
		saleRepo,
		lineRepo,
		productRepo,
		clientRepo,
		settingsRepo,
		logger,
		cfg.Ledger.MaxRetryAttempts,
		cfg.Ledger.StockEnforced(),
	)

	return controller.NewSaleController(uc, logger)
}
