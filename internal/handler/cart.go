package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/storehub-api/internal/dto"
	"github.com/flicky/storehub-api/internal/middleware"
	"github.com/flicky/storehub-api/internal/service"
)

type CartHandler struct {
	svc *service.CartService
	log *slog.Logger
}

func NewCartHandler(svc *service.CartService, log *slog.Logger) *CartHandler {
	return &CartHandler{svc: svc, log: log}
}

func (h *CartHandler) GetCart(c *gin.Context) {
	cart, err := h.svc.GetCart(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToCartResponse(cart))
}

func (h *CartHandler) AddItem(c *gin.Context) {
	var req dto.AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	item, err := h.svc.AddItem(c.Request.Context(), middleware.GetUserID(c), req.ProductID, req.Quantity)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, dto.ToCartItemMutationResponse(item))
}

func (h *CartHandler) UpdateItem(c *gin.Context) {
	itemID, ok := parseID(c, "cart item")
	if !ok {
		return
	}

	var req dto.UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	item, err := h.svc.UpdateItem(c.Request.Context(), middleware.GetUserID(c), itemID, req.Quantity)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToCartItemMutationResponse(item))
}

func (h *CartHandler) DeleteItem(c *gin.Context) {
	itemID, ok := parseID(c, "cart item")
	if !ok {
		return
	}

	if err := h.svc.RemoveItem(c.Request.Context(), middleware.GetUserID(c), itemID); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "item removed"})
}

func (h *CartHandler) Clear(c *gin.Context) {
	if err := h.svc.Clear(c.Request.Context(), middleware.GetUserID(c)); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "cart cleared"})
}
