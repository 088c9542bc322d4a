package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-bulletin-api/internal/dto"
	"github.com/noah-isme/sma-bulletin-api/internal/models"
	"github.com/noah-isme/sma-bulletin-api/internal/service"
	appErrors "github.com/noah-isme/sma-bulletin-api/pkg/errors"
	"github.com/noah-isme/sma-bulletin-api/pkg/response"
)

type bulletinJobService interface {
	CreateJob(ctx context.Context, req dto.BulletinJobRequest, actorID string, role models.UserRole) (*dto.BulletinJobResponse, error)
	GetStatus(ctx context.Context, id, actorID string, role models.UserRole) (*dto.BulletinJobStatusResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.BulletinDownload, error)
}

// BulletinJobHandler exposes bulk class bulletin generation.
type BulletinJobHandler struct {
	jobs bulletinJobService
}

// NewBulletinJobHandler constructs the handler.
func NewBulletinJobHandler(jobs bulletinJobService) *BulletinJobHandler {
	return &BulletinJobHandler{jobs: jobs}
}

// CreateJob godoc
// @Summary Queue class bulletins
// @Description Generates the bulletins of every active student of a class into one PDF.
// @Tags Bulletins
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.BulletinJobRequest true "Job request"
// @Success 202 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /bulletins/jobs [post]
func (h *BulletinJobHandler) CreateJob(c *gin.Context) {
	var req dto.BulletinJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid payload"))
		return
	}
	actorID, role := actorFromContext(c)
	job, err := h.jobs.CreateJob(c.Request.Context(), req, actorID, role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}

// JobStatus godoc
// @Summary Bulletin job status
// @Tags Bulletins
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /bulletins/jobs/{id} [get]
func (h *BulletinJobHandler) JobStatus(c *gin.Context) {
	actorID, role := actorFromContext(c)
	status, err := h.jobs.GetStatus(c.Request.Context(), c.Param("id"), actorID, role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Download godoc
// @Summary Download generated class bulletins
// @Tags Bulletins
// @Produce application/pdf
// @Param token path string true "Signed download token"
// @Success 200 {file} file
// @Failure 410 {object} response.Envelope
// @Router /bulletins/download/{token} [get]
func (h *BulletinJobHandler) Download(c *gin.Context) {
	download, err := h.jobs.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()
	response.Stream(c, download.Filename, download.ContentType, download.Size, download.File)
}
