package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/polkiloo/bookshop/internal/domain/model"
	"github.com/polkiloo/bookshop/internal/server/http/dto"
)

// OrderHandler manages buyer order endpoints.
type OrderHandler struct {
	facade OrderFacade
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(facade OrderFacade) *OrderHandler {
	return &OrderHandler{facade: facade}
}

// Create handles POST /api/orders.
func (h *OrderHandler) Create(c *gin.Context) {
	var req model.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "malformed request body"})
		return
	}
	checkout, err := h.facade.CreateOrder(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.CheckoutResponse{
		Order:     toOrderResponse(checkout.Order),
		PayParams: checkout.PayParams,
	})
}

// Get handles GET /api/orders/:outTradeNo.
func (h *OrderHandler) Get(c *gin.Context) {
	order, err := h.facade.GetOrder(c.Request.Context(), c.Param("outTradeNo"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

// List handles GET /api/orders. Buyers only see their own orders, so openid is required.
func (h *OrderHandler) List(c *gin.Context) {
	filter, ok := orderFilter(c)
	if !ok {
		return
	}
	if filter.OpenID == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "openid is required", Field: "openid"})
		return
	}
	filter.Phone = ""
	orders, err := h.facade.ListOrders(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderList(orders))
}

// Close handles POST /api/orders/:outTradeNo/close.
func (h *OrderHandler) Close(c *gin.Context) {
	result, err := h.facade.CloseOrder(c.Request.Context(), c.Param("outTradeNo"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeTransition(c, result)
}
