package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/thesisdesk/thesisdesk-backend/internal/http/middleware"
	"github.com/thesisdesk/thesisdesk-backend/internal/http/response"
	"github.com/thesisdesk/thesisdesk-backend/internal/platform/apierr"
	"github.com/thesisdesk/thesisdesk-backend/internal/platform/logger"
	"github.com/thesisdesk/thesisdesk-backend/internal/services"
)

type ProjectHandler struct {
	log            *logger.Logger
	projectService services.ProjectService
}

func NewProjectHandler(log *logger.Logger, projectService services.ProjectService) *ProjectHandler {
	return &ProjectHandler{
		log:            log.With("handler", "ProjectHandler"),
		projectService: projectService,
	}
}

type createProjectRequest struct {
	Topic string `json:"topic" binding:"required"`
	Twist string `json:"twist"`
}

func (h *ProjectHandler) Create(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, apierr.Validation(err))
		return
	}

	p, err := h.projectService.CreateProject(c.Request.Context(), middleware.OwnerFrom(c), services.CreateProjectInput{
		Topic: req.Topic,
		Twist: req.Twist,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, http.StatusCreated, gin.H{"project": p})
}

func (h *ProjectHandler) Get(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, apierr.Validation(fmt.Errorf("invalid project id")))
		return
	}

	p, err := h.projectService.GetProject(c.Request.Context(), middleware.OwnerFrom(c), projectID)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, http.StatusOK, gin.H{"project": p})
}

func (h *ProjectHandler) List(c *gin.Context) {
	projects, err := h.projectService.ListProjects(c.Request.Context(), middleware.OwnerFrom(c))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, http.StatusOK, gin.H{"projects": projects})
}

type claimProjectRequest struct {
	AnonymousID string `json:"anonymous_id" binding:"required"`
}

func (h *ProjectHandler) Claim(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, apierr.Validation(fmt.Errorf("invalid project id")))
		return
	}
	userID, ok := middleware.OwnerFrom(c).UserID()
	if !ok {
		response.RespondError(c, apierr.Unauthorized(fmt.Errorf("authentication required")))
		return
	}

	var req claimProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, apierr.Validation(err))
		return
	}

	p, err := h.projectService.ClaimProject(c.Request.Context(), userID, req.AnonymousID, projectID)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, http.StatusOK, gin.H{"project": p})
}
