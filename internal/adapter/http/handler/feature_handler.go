package handler

import (
	"secure-withdrawal-gateway/internal/core/ports"
	"secure-withdrawal-gateway/pkg/apperror"
	"secure-withdrawal-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// FeatureHandler serves the feature list.
type FeatureHandler struct {
	features ports.FeatureRepository
}

// NewFeatureHandler creates a new FeatureHandler.
func NewFeatureHandler(features ports.FeatureRepository) *FeatureHandler {
	return &FeatureHandler{features: features}
}

// List handles GET /api/v1/features.
func (h *FeatureHandler) List(c *gin.Context) {
	features, err := h.features.List(c.Request.Context())
	if err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}
	response.OK(c, features)
}
