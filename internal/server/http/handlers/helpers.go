package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	domainErrors "github.com/polkiloo/bookshop/internal/domain/errors"
	"github.com/polkiloo/bookshop/internal/domain/model"
	"github.com/polkiloo/bookshop/internal/server/http/dto"
	"github.com/polkiloo/bookshop/internal/server/http/middleware"
)

// CurrentOperatorID extracts authenticated operator identifier from context.
func CurrentOperatorID(c *gin.Context) int64 {
	val, ok := c.Get(middleware.OperatorIDContextKey)
	if !ok {
		return 0
	}
	id, _ := val.(int64)
	return id
}

// writeError maps domain errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	var (
		validation *domainErrors.ValidationError
		stock      *domainErrors.OutOfStockError
	)
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: validation.Reason, Field: validation.Field})
	case errors.As(err, &stock):
		available := stock.Available
		c.JSON(http.StatusConflict, dto.ErrorResponse{Error: domainErrors.ErrOutOfStock.Error(), BookID: stock.BookID, Available: &available})
	case errors.Is(err, domainErrors.ErrValidation):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, domainErrors.ErrNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: domainErrors.ErrNotFound.Error()})
	case errors.Is(err, domainErrors.ErrGateway):
		c.JSON(http.StatusBadGateway, dto.ErrorResponse{Error: domainErrors.ErrGateway.Error()})
	case errors.Is(err, domainErrors.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: domainErrors.ErrInvalidCredentials.Error()})
	case errors.Is(err, domainErrors.ErrAlreadyExists), errors.Is(err, domainErrors.ErrInvalidTransition):
		c.JSON(http.StatusConflict, dto.ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal error"})
	}
}

func writeTransition(c *gin.Context, result *model.TransitionResult) {
	status := http.StatusOK
	if !result.Applied {
		status = http.StatusConflict
	}
	c.JSON(status, dto.TransitionResponse{Applied: result.Applied, Order: toOrderResponse(result.Order)})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid identifier", Field: name})
		return 0, false
	}
	return id, true
}

func orderFilter(c *gin.Context) (model.OrderFilter, bool) {
	filter := model.OrderFilter{
		OpenID: c.Query("openid"),
		Phone:  c.Query("phone"),
		Status: model.OrderStatus(c.Query("status")),
	}
	for name, dst := range map[string]*int{"page": &filter.Page, "size": &filter.Size} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "must be a number", Field: name})
			return filter, false
		}
		*dst = v
	}
	return filter, true
}

func toOrderResponse(order *model.Order) dto.OrderResponse {
	if order == nil {
		return dto.OrderResponse{}
	}
	resp := dto.OrderResponse{
		ID:                 order.ID,
		OutTradeNo:         order.OutTradeNo,
		OpenID:             order.OpenID,
		Name:               order.ContactName,
		Phone:              order.ContactPhone,
		Address:            order.Address,
		DeliveryMode:       string(order.DeliveryMode),
		Money:              order.Money,
		Quantity:           order.Quantity,
		Status:             string(order.Status),
		TransactionID:      order.TransactionID,
		PayTime:            order.PayTime,
		RefundTime:         order.RefundTime,
		OutRefundNo:        order.OutRefundNo,
		Remark:             order.Remark,
		InventoryShortfall: order.InventoryShortfall,
		CreatedAt:          order.CreatedAt,
	}
	for _, line := range order.Lines {
		resp.Lines = append(resp.Lines, dto.OrderLineResponse{
			BookID:   line.BookID,
			BookName: line.BookName,
			Quantity: line.Quantity,
			Price:    line.Price,
		})
	}
	return resp
}

func toOrderList(orders []model.Order) []dto.OrderResponse {
	resp := make([]dto.OrderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}
	return resp
}
