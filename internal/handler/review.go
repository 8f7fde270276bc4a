package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/storehub-api/internal/dto"
	"github.com/flicky/storehub-api/internal/middleware"
	"github.com/flicky/storehub-api/internal/service"
)

type ReviewHandler struct {
	reviewService *service.ReviewService
	log           *slog.Logger
}

func NewReviewHandler(reviewService *service.ReviewService, log *slog.Logger) *ReviewHandler {
	return &ReviewHandler{reviewService: reviewService, log: log}
}

func (h *ReviewHandler) Submit(c *gin.Context) {
	var req dto.SubmitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	review, err := h.reviewService.Submit(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "review": dto.ToReviewResponse(review)})
}

func (h *ReviewHandler) ListForProduct(c *gin.Context) {
	productID, ok := parseID(c, "product")
	if !ok {
		return
	}

	reviews, err := h.reviewService.ListForProduct(c.Request.Context(), productID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviews": dto.ToReviewResponses(reviews)})
}
