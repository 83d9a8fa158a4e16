package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"sup/internal/auth"
	"sup/internal/commons"
	"sup/internal/dto"
	apperrors "sup/internal/errors"
)

type ProductUseCase interface {
	SearchProducts(ctx context.Context, ownerID int, req dto.SearchProductsRequest) (*dto.SearchProductsResponse, error)
	ListLowStock(ctx context.Context, ownerID int, limit, offset int) (*dto.ProductPage, error)
	DeleteProduct(ctx context.Context, ownerID int, productID int) (*dto.DeleteProductResponse, error)
	RecentAlerts(ctx context.Context, ownerID int, limit int) (*dto.AlertsResponse, error)
}

type Controller struct {
	useCase ProductUseCase
	logger  *zap.Logger
}

func NewController(useCase ProductUseCase, logger *zap.Logger) *Controller {
	return &Controller{
		useCase: useCase,
		logger:  logger,
	}
}

func (c *Controller) Routes(r chi.Router) {
	r.Post("/search", c.HandleSearchProducts)
	r.Get("/low-stock", c.HandleLowStock)
	r.Get("/alerts", c.HandleAlerts)
	r.Delete("/{productId}", c.HandleDeleteProduct)
}

func (c *Controller) owner(w http.ResponseWriter, r *http.Request) (int, *zap.Logger, string, bool) {
	traceID := uuid.New().String()
	logger := c.logger.With(zap.String("traceId", traceID))

	ownerID, ok := auth.OwnerIDFromContext(r.Context())
	if !ok {
		commons.WriteJSON(w, http.StatusUnauthorized, map[string]string{
			"error":   "UNAUTHORIZED",
			"message": "missing owner",
		}, logger)
		return 0, nil, "", false
	}
	return ownerID, logger, traceID, true
}

func (c *Controller) HandleSearchProducts(w http.ResponseWriter, r *http.Request) {
	ownerID, logger, traceID, ok := c.owner(w, r)
	if !ok {
		return
	}

	var req dto.SearchProductsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		commons.WriteValidationError(w, logger, "invalid JSON body", apperrors.ValidationDetail{
			Field:   "body",
			Message: "request body must be valid JSON",
		})
		return
	}

	if err := c.validateSearchRequest(req); err != nil {
		ve, _ := apperrors.IsValidationError(err)
		commons.WriteValidationError(w, logger, ve.Message, ve.Details...)
		return
	}

	resp, err := c.useCase.SearchProducts(r.Context(), ownerID, req)
	if err != nil {
		commons.WriteError(w, traceID, err, logger)
		return
	}

	commons.WriteJSON(w, http.StatusOK, resp, logger)
}

func (c *Controller) validateSearchRequest(req dto.SearchProductsRequest) error {
	if len(req.ProductIDs) == 0 {
		msg := "productIds is required"
		return apperrors.NewValidationError(msg, apperrors.ValidationDetail{
			Field:   "productIds",
			Message: "productIds must not be empty",
		})
	}

	if len(req.ProductIDs) > 100 {
		msg := "productIds exceeds maximum of 100"
		return apperrors.NewValidationError(msg, apperrors.ValidationDetail{
			Field:   "productIds",
			Message: msg,
		})
	}

	for _, id := range req.ProductIDs {
		if id <= 0 {
			msg := "each productId must be a positive integer"
			return apperrors.NewValidationError(msg, apperrors.ValidationDetail{
				Field:   "productIds",
				Message: msg,
			})
		}
	}

	return nil
}

func (c *Controller) HandleLowStock(w http.ResponseWriter, r *http.Request) {
	ownerID, logger, traceID, ok := c.owner(w, r)
	if !ok {
		return
	}

	limit, lok := queryInt(r, "limit")
	offset, ook := queryInt(r, "offset")
	if !lok || !ook {
		commons.WriteValidationError(w, logger, "invalid paging", apperrors.ValidationDetail{
			Field:   "limit",
			Message: "limit and offset must be integers",
		})
		return
	}

	page, err := c.useCase.ListLowStock(r.Context(), ownerID, limit, offset)
	if err != nil {
		commons.WriteError(w, traceID, err, logger)
		return
	}

	commons.WriteJSON(w, http.StatusOK, page, logger)
}

func (c *Controller) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	ownerID, logger, traceID, ok := c.owner(w, r)
	if !ok {
		return
	}

	limit, lok := queryInt(r, "limit")
	if !lok {
		commons.WriteValidationError(w, logger, "invalid limit", apperrors.ValidationDetail{
			Field:   "limit",
			Message: "limit must be an integer",
		})
		return
	}

	resp, err := c.useCase.RecentAlerts(r.Context(), ownerID, limit)
	if err != nil {
		commons.WriteError(w, traceID, err, logger)
		return
	}

	commons.WriteJSON(w, http.StatusOK, resp, logger)
}

func (c *Controller) HandleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	ownerID, logger, traceID, ok := c.owner(w, r)
	if !ok {
		return
	}

	productID, err := strconv.Atoi(chi.URLParam(r, "productId"))
	if err != nil || productID <= 0 {
		commons.WriteValidationError(w, logger, "invalid productId", apperrors.ValidationDetail{
			Field:   "productId",
			Message: "productId must be a positive integer",
		})
		return
	}

	resp, err := c.useCase.DeleteProduct(r.Context(), ownerID, productID)
	if err != nil {
		commons.WriteError(w, traceID, err, logger)
		return
	}

	commons.WriteJSON(w, http.StatusOK, resp, logger)
}

func queryInt(r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	return v, err == nil
}
