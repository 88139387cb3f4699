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

type SwitchRequestHandler struct {
	log           *logger.Logger
	switchService services.TopicSwitchService
}

func NewSwitchRequestHandler(log *logger.Logger, switchService services.TopicSwitchService) *SwitchRequestHandler {
	return &SwitchRequestHandler{
		log:           log.With("handler", "SwitchRequestHandler"),
		switchService: switchService,
	}
}

type createSwitchRequest struct {
	Reason      string   `json:"reason" binding:"required"`
	Explanation *string  `json:"explanation,omitempty"`
	ProofURL    *string  `json:"proof_url,omitempty"`
	Fee         *float64 `json:"fee,omitempty"`
}

func (h *SwitchRequestHandler) Create(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, apierr.Validation(fmt.Errorf("invalid project id")))
		return
	}

	var req createSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, apierr.Validation(err))
		return
	}

	request, err := h.switchService.CreateRequest(c.Request.Context(), middleware.OwnerFrom(c), projectID, services.CreateSwitchRequestInput{
		Reason:      req.Reason,
		Explanation: req.Explanation,
		ProofURL:    req.ProofURL,
		Fee:         req.Fee,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, http.StatusCreated, gin.H{"request": request})
}

type reviewSwitchRequest struct {
	Decision string `json:"decision" binding:"required"`
}

func (h *SwitchRequestHandler) Review(c *gin.Context) {
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, apierr.Validation(fmt.Errorf("invalid request id")))
		return
	}

	var req reviewSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, apierr.Validation(err))
		return
	}

	request, err := h.switchService.ReviewRequest(c.Request.Context(), middleware.OwnerFrom(c), requestID, types.SwitchRequestStatus(req.Decision))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, http.StatusOK, gin.H{"request": request})
}
