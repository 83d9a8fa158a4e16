package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"sup/internal/auth"
	"sup/internal/commons"
	"sup/internal/domain"
	"sup/internal/dto"
	apperrors "sup/internal/errors"
)

type SaleUseCase interface {
	CreateSale(ctx context.Context, ownerID int, in dto.CreateSaleInput) (*domain.Sale, error)
	GetSale(ctx context.Context, ownerID int, saleID uint) (*domain.Sale, error)
	ListSales(ctx context.Context, ownerID int, filter dto.SaleFilter) (*dto.SalePage, error)
	UpdateSale(ctx context.Context, ownerID int, saleID uint, in dto.UpdateSaleInput) (*domain.Sale, error)
	ReconcileTotal(ctx context.Context, ownerID int, saleID uint) (*dto.ReconcileResult, error)
	AddLine(ctx context.Context, ownerID int, saleID uint, in dto.AddLineInput) (*dto.LedgerResult, error)
	EditLine(ctx context.Context, ownerID int, saleID uint, lineID uint, quantity int) (*dto.LedgerResult, error)
	RemoveLine(ctx context.Context, ownerID int, saleID uint, lineID uint) (*dto.LedgerResult, error)
	DeleteSale(ctx context.Context, ownerID int, saleID uint) ([]domain.Product, error)
}

type SaleController struct {
	useCase SaleUseCase
	logger  *zap.Logger
}

func NewSaleController(useCase SaleUseCase, logger *zap.Logger) *SaleController {
	return &SaleController{
		useCase: useCase,
		logger:  logger,
	}
}

// Routes mounts the sale endpoints on r. r must already run the owner
// middleware.
func (c *SaleController) Routes(r chi.Router) {
	r.Post("/", c.CreateSale)
	r.Get("/", c.ListSales)
	r.Route("/{saleId}", func(r chi.Router) {
		r.Get("/", c.GetSale)
		r.Patch("/", c.UpdateSale)
		r.Delete("/", c.DeleteSale)
		r.Post("/reconcile", c.ReconcileTotal)
		r.Post("/lines", c.AddLine)
		r.Patch("/lines/{lineId}", c.UpdateLine)
		r.Delete("/lines/{lineId}", c.DeleteLine)
	})
}

type request struct {
	traceID string
	ownerID int
	logger  *zap.Logger
}

func (c *SaleController) begin(w http.ResponseWriter, r *http.Request) (request, bool) {
	traceID := uuid.New().String()
	logger := c.logger.With(zap.String("traceId", traceID))

	ownerID, ok := auth.OwnerIDFromContext(r.Context())
	if !ok {
		commons.WriteJSON(w, http.StatusUnauthorized, map[string]string{
			"error":   "UNAUTHORIZED",
			"message": "missing owner",
		}, logger)
		return request{}, false
	}

	return request{traceID: traceID, ownerID: ownerID, logger: logger.With(zap.Int("ownerId", ownerID))}, true
}

func (c *SaleController) CreateSale(w http.ResponseWriter, r *http.Request) {
	req, ok := c.begin(w, r)
	if !ok {
		return
	}

	var body dto.CreateSaleRequest
	if !decodeBody(w, r, req.logger, &body) {
		return
	}

	var details []apperrors.ValidationDetail
	if body.ClientID != nil && *body.ClientID <= 0 {
		details = append(details, apperrors.ValidationDetail{Field: "clientId", Message: "clientId must be a positive integer"})
	}
	if body.Code < 0 {
		details = append(details, apperrors.ValidationDetail{Field: "code", Message: "code must not be negative"})
	}
	if len(details) > 0 {
		commons.WriteValidationError(w, req.logger, "validation failed", details...)
		return
	}

	sale, err := c.useCase.CreateSale(r.Context(), req.ownerID, dto.CreateSaleInput{
		ClientID: body.ClientID,
		Code:     body.Code,
		SoldAt:   body.SoldAt,
	})
	if err != nil {
		commons.WriteError(w, req.traceID, err, req.logger)
		return
	}

	commons.WriteJSON(w, http.StatusCreated, dto.NewSaleResponse(*sale), req.logger)
}

func (c *SaleController) ListSales(w http.ResponseWriter, r *http.Request) {
	req, ok := c.begin(w, r)
	if !ok {
		return
	}

	filter, details := parseSaleFilter(r)
	if len(details) > 0 {
		commons.WriteValidationError(w, req.logger, "validation failed", details...)
		return
	}

	page, err := c.useCase.ListSales(r.Context(), req.ownerID, filter)
	if err != nil {
		commons.WriteError(w, req.traceID, err, req.logger)
		return
	}

	resp := dto.SaleListResponse{
		Sales:  make([]dto.SaleResponse, len(page.Sales)),
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}
	for i, s := range page.Sales {
		resp.Sales[i] = dto.NewSaleResponse(s)
	}
	commons.WriteJSON(w, http.StatusOK, resp, req.logger)
}

func (c *SaleController) GetSale(w http.ResponseWriter, r *http.Request) {
	req, ok := c.begin(w, r)
	if !ok {
		return
	}
	saleID, ok := pathID(w, r, req.logger, "saleId")
	if !ok {
		return
	}

	sale, err := c.useCase.GetSale(r.Context(), req.ownerID, saleID)
	if err != nil {
		commons.WriteError(w, req.traceID, err, req.logger)
		return
	}

	commons.WriteJSON(w, http.StatusOK, dto.NewSaleResponse(*sale), req.logger)
}

func (c *SaleController) UpdateSale(w http.ResponseWriter, r *http.Request) {
	req, ok := c.begin(w, r)
	if !ok {
		return
	}
	saleID, ok := pathID(w, r, req.logger, "saleId")
	if !ok {
		return
	}

	var body dto.UpdateSaleRequest
	if !decodeBody(w, r, req.logger, &body) {
		return
	}
	if body.ClientID != nil && *body.ClientID <= 0 {
		commons.WriteValidationError(w, req.logger, "validation failed", apperrors.ValidationDetail{
			Field:   "clientId",
			Message: "clientId must be a positive integer",
		})
		return
	}

	sale, err := c.useCase.UpdateSale(r.Context(), req.ownerID, saleID, dto.UpdateSaleInput{
		ClientID: body.ClientID,
		WalkIn:   body.WalkIn,
		Code:     body.Code,
		SoldAt:   body.SoldAt,
	})
	if err != nil {
		commons.WriteError(w, req.traceID, err, req.logger)
		return
	}

	commons.WriteJSON(w, http.StatusOK, dto.NewSaleResponse(*sale), req.logger)
}

func (c *SaleController) DeleteSale(w http.ResponseWriter, r *http.Request) {
	req, ok := c.begin(w, r)
	if !ok {
		return
	}
	saleID, ok := pathID(w, r, req.logger, "saleId")
	if !ok {
		return
	}

	if _, err := c.useCase.DeleteSale(r.Context(), req.ownerID, saleID); err != nil {
		commons.WriteError(w, req.traceID, err, req.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (c *SaleController) ReconcileTotal(w http.ResponseWriter, r *http.Request) {
	req, ok := c.begin(w, r)
	if !ok {
		return
	}
	saleID, ok := pathID(w, r, req.logger, "saleId")
	if !ok {
		return
	}

	result, err := c.useCase.ReconcileTotal(r.Context(), req.ownerID, saleID)
	if err != nil {
		commons.WriteError(w, req.traceID, err, req.logger)
		return
	}

	commons.WriteJSON(w, http.StatusOK, dto.ReconcileResponse{
		TraceID:       req.traceID,
		Sale:          dto.NewSaleResponse(result.Sale),
		PreviousTotal: result.Previous.StringFixed(2),
		Drifted:       result.Drifted,
	}, req.logger)
}

func (c *SaleController) AddLine(w http.ResponseWriter, r *http.Request) {
	req, ok := c.begin(w, r)
	if !ok {
		return
	}
	saleID, ok := pathID(w, r, req.logger, "saleId")
	if !ok {
		return
	}

	var body dto.AddLineRequest
	if !decodeBody(w, r, req.logger, &body) {
		return
	}

	result, err := c.useCase.AddLine(r.Context(), req.ownerID, saleID, dto.AddLineInput{
		ProductID: body.ProductID,
		Quantity:  body.Quantity,
	})
	if err != nil {
		commons.WriteError(w, req.traceID, err, req.logger)
		return
	}

	commons.WriteJSON(w, http.StatusCreated, dto.NewLedgerResponse(req.traceID, result, time.Now().UTC()), req.logger)
}

func (c *SaleController) UpdateLine(w http.ResponseWriter, r *http.Request) {
	req, ok := c.begin(w, r)
	if !ok {
		return
	}
	saleID, ok := pathID(w, r, req.logger, "saleId")
	if !ok {
		return
	}
	lineID, ok := pathID(w, r, req.logger, "lineId")
	if !ok {
		return
	}

	var body dto.UpdateLineRequest
	if !decodeBody(w, r, req.logger, &body) {
		return
	}

	result, err := c.useCase.EditLine(r.Context(), req.ownerID, saleID, lineID, body.Quantity)
	if err != nil {
		commons.WriteError(w, req.traceID, err, req.logger)
		return
	}

	commons.WriteJSON(w, http.StatusOK, dto.NewLedgerResponse(req.traceID, result, time.Now().UTC()), req.logger)
}

func (c *SaleController) DeleteLine(w http.ResponseWriter, r *http.Request) {
	req, ok := c.begin(w, r)
	if !ok {
		return
	}
	saleID, ok := pathID(w, r, req.logger, "saleId")
	if !ok {
		return
	}
	lineID, ok := pathID(w, r, req.logger, "lineId")
	if !ok {
		return
	}

	result, err := c.useCase.RemoveLine(r.Context(), req.ownerID, saleID, lineID)
	if err != nil {
		commons.WriteError(w, req.traceID, err, req.logger)
		return
	}

	commons.WriteJSON(w, http.StatusOK, dto.NewLedgerResponse(req.traceID, result, time.Now().UTC()), req.logger)
}

func pathID(w http.ResponseWriter, r *http.Request, logger *zap.Logger, name string) (uint, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		logger.Warn("invalid path id", zap.String("param", name), zap.String("value", raw))
		commons.WriteValidationError(w, logger, "invalid "+name, apperrors.ValidationDetail{
			Field:   name,
			Message: name + " must be a positive integer",
		})
		return 0, false
	}
	return uint(id), true
}

func decodeBody(w http.ResponseWriter, r *http.Request, logger *zap.Logger, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		logger.Warn("invalid JSON body", zap.Error(err))
		commons.WriteValidationError(w, logger, "invalid JSON body", apperrors.ValidationDetail{
			Field:   "body",
			Message: "request body must be valid JSON",
		})
		return false
	}
	return true
}

const dateLayout = "2006-01-02"

// parseSaleFilter reads from/to as calendar days; to is inclusive.
func parseSaleFilter(r *http.Request) (dto.SaleFilter, []apperrors.ValidationDetail) {
	var filter dto.SaleFilter
	var details []apperrors.ValidationDetail
	q := r.URL.Query()

	if v := q.Get("from"); v != "" {
		from, err := time.Parse(dateLayout, v)
		if err != nil {
			details = append(details, apperrors.ValidationDetail{Field: "from", Message: "from must be a date as YYYY-MM-DD"})
		} else {
			filter.From = &from
		}
	}
	if v := q.Get("to"); v != "" {
		to, err := time.Parse(dateLayout, v)
		if err != nil {
			details = append(details, apperrors.ValidationDetail{Field: "to", Message: "to must be a date as YYYY-MM-DD"})
		} else {
			end := to.AddDate(0, 0, 1)
			filter.To = &end
		}
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			details = append(details, apperrors.ValidationDetail{Field: "limit", Message: "limit must be a positive integer"})
		}
		filter.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			details = append(details, apperrors.ValidationDetail{Field: "offset", Message: "offset must be a non-negative integer"})
		}
		filter.Offset = offset
	}

	return filter, details
}
