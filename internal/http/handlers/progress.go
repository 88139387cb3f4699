package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/thesisdesk/thesisdesk-backend/internal/domain"
	"github.com/thesisdesk/thesisdesk-backend/internal/http/middleware"
	"github.com/thesisdesk/thesisdesk-backend/internal/http/response"
	"github.com/thesisdesk/thesisdesk-backend/internal/platform/apierr"
	"github.com/thesisdesk/thesisdesk-backend/internal/platform/logger"
	"github.com/thesisdesk/thesisdesk-backend/internal/services"
)

type ProgressHandler struct {
	log             *logger.Logger
	progressService services.ProgressService
}

func NewProgressHandler(log *logger.Logger, progressService services.ProgressService) *ProgressHandler {
	return &ProgressHandler{
		log:             log.With("handler", "ProgressHandler"),
		progressService: progressService,
	}
}

type updateProgressRequest struct {
	Milestone string                  `json:"milestone" binding:"required"`
	Phase     string                  `json:"phase" binding:"required"`
	Details   *types.MilestoneDetails `json:"details,omitempty"`
	Metadata  map[string]any          `json:"metadata,omitempty"`
}

func (h *ProgressHandler) Update(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, apierr.Validation(fmt.Errorf("invalid project id")))
		return
	}

	var req updateProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, apierr.Validation(err))
		return
	}

	p, err := h.progressService.UpdateProgress(c.Request.Context(), middleware.OwnerFrom(c), projectID, services.UpdateProgressInput{
		Milestone: types.Milestone(req.Milestone),
		Phase:     types.Phase(req.Phase),
		Details:   req.Details,
		Metadata:  req.Metadata,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}

	// Wire shape predates this service; clients depend on these keys.
	response.RespondOK(c, http.StatusOK, gin.H{
		"success": true,
		"project": gin.H{
			"id":                 p.ID,
			"progressPercentage": p.ProgressPercentage,
			"contentProgress":    p.ContentProgress,
			"milestones":         p.Milestones,
		},
	})
}

func (h *ProgressHandler) Get(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, apierr.Validation(fmt.Errorf("invalid project id")))
		return
	}

	snapshot, err := h.progressService.GetProgress(c.Request.Context(), middleware.OwnerFrom(c), projectID)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, http.StatusOK, gin.H{
		"success": true,
		"project": snapshot,
	})
}
