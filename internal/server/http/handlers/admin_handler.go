package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/polkiloo/bookshop/internal/server/http/dto"
)

// AdminHandler serves operator endpoints behind authentication.
type AdminHandler struct {
	orders OrderFacade
	admin  AdminFacade
	logger *slog.Logger
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(orders OrderFacade, admin AdminFacade, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{orders: orders, admin: admin, logger: logger}
}

// Orders handles GET /api/admin/orders.
func (h *AdminHandler) Orders(c *gin.Context) {
	filter, ok := orderFilter(c)
	if !ok {
		return
	}
	orders, err := h.orders.ListOrders(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderList(orders))
}

// Refund handles POST /api/admin/orders/:id/refund. The body is optional.
func (h *AdminHandler) Refund(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "malformed request body"})
		return
	}
	result, err := h.admin.RequestRefund(c.Request.Context(), id, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	if result.Applied {
		h.logger.Info("refund requested by operator",
			slog.Int64("operator_id", CurrentOperatorID(c)),
			slog.Int64("order_id", id),
		)
	}
	writeTransition(c, result)
}

// ResubmitRefund handles POST /api/admin/orders/:id/refund/resubmit.
func (h *AdminHandler) ResubmitRefund(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	result, err := h.admin.ResubmitRefund(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeTransition(c, result)
}

// AdjustStock handles POST /api/admin/books/:id/stock.
func (h *AdminHandler) AdjustStock(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.StockAdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "malformed request body"})
		return
	}
	book, err := h.admin.AdjustStock(c.Request.Context(), id, req.Delta)
	if err != nil {
		writeError(c, err)
		return
	}
	h.logger.Info("stock adjusted",
		slog.Int64("operator_id", CurrentOperatorID(c)),
		slog.Int64("book_id", id),
		slog.Int("delta", req.Delta),
	)
	c.JSON(http.StatusOK, dto.BookResponse{ID: book.ID, Name: book.Name, Price: book.Price, Stock: book.Stock})
}
