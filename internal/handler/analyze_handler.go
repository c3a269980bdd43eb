package handler

import (
	"errors"
	"net/http"

	"doc-insight-go/internal/apperr"
	"doc-insight-go/internal/model"
	"doc-insight-go/internal/service"
	"doc-insight-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AnalyzeHandler 负责处理文档分析与校验相关的 API 请求。
type AnalyzeHandler struct {
	analysisService   service.AnalysisService
	validationService service.ValidationService
	extractionService service.ExtractionService
}

// NewAnalyzeHandler 创建一个新的 AnalyzeHandler 实例。
func NewAnalyzeHandler(
	analysisService service.AnalysisService,
	validationService service.ValidationService,
	extractionService service.ExtractionService,
) *AnalyzeHandler {
	return &AnalyzeHandler{
		analysisService:   analysisService,
		validationService: validationService,
		extractionService: extractionService,
	}
}

// Analyze 处理完整防幻觉分析请求。
func (h *AnalyzeHandler) Analyze(c *gin.Context) {
	var req model.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.analysisService.Analyze(c.Request.Context(), req.Document, req.Query, req.Passes)
	if err != nil {
		if errors.Is(err, apperr.ErrInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Errorf("Analyze: failed, err: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    result,
	})
}

// Validate 处理对给定答案的批判式校验请求。
func (h *AnalyzeHandler) Validate(c *gin.Context) {
	var req model.ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	validation, err := h.validationService.AdversarialValidate(c.Request.Context(), req.Document, req.Query, req.Answer)
	if err != nil {
		log.Errorf("Validate: failed, err: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    validation,
	})
}

// Extract 处理结构化数据抽取请求。
func (h *AnalyzeHandler) Extract(c *gin.Context) {
	var req model.ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := h.extractionService.ExtractStructured(c.Request.Context(), req.Document, req.Schema)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    result,
	})
}
