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

type bulletinService interface {
	StudentBulletin(ctx context.Context, studentID string, q dto.BulletinQuery, actorID string, role models.UserRole) (*models.ReportCardDocument, error)
	RenderStudentBulletin(ctx context.Context, studentID string, req dto.RenderBulletinRequest, actorID string, role models.UserRole) (*service.RenderedFile, error)
	ClassResults(ctx context.Context, classID string, q dto.ClassResultsQuery, actorID string, role models.UserRole) (*dto.ClassResultsResponse, error)
	ClassSheet(ctx context.Context, classID string, q dto.ClassSheetQuery, actorID string, role models.UserRole) (*service.RenderedFile, error)
	InvalidateClass(ctx context.Context, classID, termID string) (int, error)
}

// BulletinHandler exposes student bulletins and class result endpoints.
type BulletinHandler struct {
	bulletins bulletinService
}

// NewBulletinHandler constructs the handler.
func NewBulletinHandler(bulletins bulletinService) *BulletinHandler {
	return &BulletinHandler{bulletins: bulletins}
}

// StudentBulletin godoc
// @Summary Student bulletin
// @Description Composes the bulletin of a student for a term with class rank and subject statistics.
// @Tags Bulletins
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Param termId query string false "Term ID (defaults to the active term)"
// @Param classId query string false "Expected class ID"
// @Param from query string false "Window start (YYYY-MM-DD)"
// @Param to query string false "Window end (YYYY-MM-DD)"
// @Param strategy query string false "Ranking strategy" Enums(sequential, competition)
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /bulletins/students/{id} [get]
func (h *BulletinHandler) StudentBulletin(c *gin.Context) {
	var q dto.BulletinQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	actorID, role := actorFromContext(c)
	doc, err := h.bulletins.StudentBulletin(c.Request.Context(), c.Param("id"), q, actorID, role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// StudentBulletinPDF godoc
// @Summary Student bulletin PDF
// @Tags Bulletins
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Param termId query string false "Term ID"
// @Param from query string false "Window start (YYYY-MM-DD)"
// @Param to query string false "Window end (YYYY-MM-DD)"
// @Success 200 {file} file
// @Router /bulletins/students/{id}/pdf [get]
func (h *BulletinHandler) StudentBulletinPDF(c *gin.Context) {
	var q dto.BulletinQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	actorID, role := actorFromContext(c)
	file, err := h.bulletins.RenderStudentBulletin(c.Request.Context(), c.Param("id"), dto.RenderBulletinRequest{
		TermID:   q.TermID,
		ClassID:  q.ClassID,
		From:     q.From,
		To:       q.To,
		Strategy: q.Strategy,
	}, actorID, role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

// RenderStudentBulletin godoc
// @Summary Render a student bulletin with council comment and remarks
// @Tags Bulletins
// @Accept json
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Param payload body dto.RenderBulletinRequest true "Render options"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /bulletins/students/{id}/render [post]
func (h *BulletinHandler) RenderStudentBulletin(c *gin.Context) {
	var req dto.RenderBulletinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid payload"))
		return
	}
	actorID, role := actorFromContext(c)
	file, err := h.bulletins.RenderStudentBulletin(c.Request.Context(), c.Param("id"), req, actorID, role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

// ClassResults godoc
// @Summary Ranked class results
// @Tags Bulletins
// @Produce json
// @Security BearerAuth
// @Param id path string true "Class ID"
// @Param termId query string false "Term ID"
// @Param strategy query string false "Ranking strategy" Enums(sequential, competition)
// @Success 200 {object} response.Envelope
// @Router /bulletins/classes/{id}/results [get]
func (h *BulletinHandler) ClassResults(c *gin.Context) {
	var q dto.ClassResultsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	actorID, role := actorFromContext(c)
	results, err := h.bulletins.ClassResults(c.Request.Context(), c.Param("id"), q, actorID, role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, nil)
}

// ClassSheet godoc
// @Summary Class results sheet export
// @Tags Bulletins
// @Produce text/csv
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Class ID"
// @Param termId query string false "Term ID"
// @Param format query string true "Sheet format" Enums(csv, xlsx, pdf)
// @Success 200 {file} file
// @Router /bulletins/classes/{id}/sheet [get]
func (h *BulletinHandler) ClassSheet(c *gin.Context) {
	var q dto.ClassSheetQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	actorID, role := actorFromContext(c)
	file, err := h.bulletins.ClassSheet(c.Request.Context(), c.Param("id"), q, actorID, role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

// InvalidateClassCache godoc
// @Summary Drop cached class computations
// @Tags Bulletins
// @Produce json
// @Security BearerAuth
// @Param id path string true "Class ID"
// @Param termId query string false "Term ID (all terms when empty)"
// @Success 200 {object} response.Envelope
// @Router /bulletins/classes/{id}/cache [delete]
func (h *BulletinHandler) InvalidateClassCache(c *gin.Context) {
	removed, err := h.bulletins.InvalidateClass(c.Request.Context(), c.Param("id"), c.Query("termId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"removed": removed}, nil)
}
