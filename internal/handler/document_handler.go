// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"doc-insight-go/internal/model"
	"doc-insight-go/internal/service"
	"doc-insight-go/pkg/log"
	"doc-insight-go/pkg/tika"
	"doc-insight-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 负责处理所有与文档管理相关的 API 请求。
type DocumentHandler struct {
	docService  service.DocumentService
	userService service.UserService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(docService service.DocumentService, userService service.UserService) *DocumentHandler {
	return &DocumentHandler{
		docService:  docService,
		userService: userService,
	}
}

// Upload 处理单文件上传请求。
func (h *DocumentHandler) Upload(c *gin.Context) {
	user, err := h.getUserFromContext(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少上传文件"})
		return
	}
	domain := c.PostForm("domain")

	result, err := h.uploadOne(c, fileHeader, domain, user.ID)
	if err != nil {
		if errors.Is(err, tika.ErrUnsupportedFormat) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "不支持的文件格式"})
			return
		}
		log.Errorf("Upload: failed for user %s, file %s, err: %v", user.Username, fileHeader.Filename, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "文件上传失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "文件上传成功, 正在后台入库",
		"data":    result,
	})
}

// BatchUpload 处理多文件上传请求，单个文件失败不影响其余文件。
func (h *DocumentHandler) BatchUpload(c *gin.Context) {
	user, err := h.getUserFromContext(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "解析上传表单失败"})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少上传文件"})
		return
	}
	domain := c.PostForm("domain")

	results := make([]service.UploadResultDTO, 0, len(files))
	successful := 0
	for _, fileHeader := range files {
		result, err := h.uploadOne(c, fileHeader, domain, user.ID)
		if err != nil {
			log.Warnf("BatchUpload: %s 上传失败: %v", fileHeader.Filename, err)
			results = append(results, service.UploadResultDTO{
				FileName: fileHeader.Filename,
				Status:   "failed",
				Message:  err.Error(),
			})
			continue
		}
		successful++
		results = append(results, *result)
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "批量上传受理完成",
		"data": gin.H{
			"total":      len(files),
			"successful": successful,
			"failed":     len(files) - successful,
			"results":    results,
		},
	})
}

func (h *DocumentHandler) uploadOne(c *gin.Context, fileHeader *multipart.FileHeader, domain string, userID uint) (*service.UploadResultDTO, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	return h.docService.Upload(c.Request.Context(), fileHeader.Filename, content, domain, userID)
}

// ListMine 处理获取用户已上传文档列表的请求。
func (h *DocumentHandler) ListMine(c *gin.Context) {
	user, err := h.getUserFromContext(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}

	docs, err := h.docService.ListMine(user.ID)
	if err != nil {
		log.Error("ListMine: failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取文档列表失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "获取文档列表成功",
		"data":    docs,
	})
}

// GetDocument 处理获取单个文档详情的请求。
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	fileMD5 := c.Param("fileMd5")
	if fileMD5 == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少文件 MD5"})
		return
	}

	user, err := h.getUserFromContext(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}

	doc, err := h.docService.GetByFileMD5(fileMD5, user)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "获取文档详情成功",
		"data":    doc,
	})
}

// DeleteDocument 处理删除文档的请求。
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	fileMD5 := c.Param("fileMd5")
	if fileMD5 == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少文件 MD5"})
		return
	}

	user, err := h.getUserFromContext(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}

	if err := h.docService.DeleteDocument(c.Request.Context(), fileMD5, user); err != nil {
		log.Warnf("DeleteDocument: failed for user %s, md5 %s, err: %v", user.Username, fileMD5, err)
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "文档删除成功",
	})
}

// GenerateDownloadURL 处理生成文件下载链接的请求。
func (h *DocumentHandler) GenerateDownloadURL(c *gin.Context) {
	fileMD5 := c.Query("fileMd5")
	if fileMD5 == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少文件 MD5"})
		return
	}

	user, err := h.getUserFromContext(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}

	downloadInfo, err := h.docService.GenerateDownloadURL(c.Request.Context(), fileMD5, user)
	if err != nil {
		log.Warnf("GenerateDownloadURL: failed for user %s, md5 %s, err: %v", user.Username, fileMD5, err)
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "文件下载链接生成成功",
		"data":    downloadInfo,
	})
}

// Stats 处理获取向量库统计信息的请求。
func (h *DocumentHandler) Stats(c *gin.Context) {
	stats, err := h.docService.Stats(c.Request.Context())
	if err != nil {
		log.Error("Stats: failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取统计信息失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "获取统计信息成功",
		"data":    stats,
	})
}

// ListDomains 处理获取领域列表的请求。
func (h *DocumentHandler) ListDomains(c *gin.Context) {
	domains, err := h.docService.ListDomains()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取领域列表失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "获取领域列表成功",
		"data":    gin.H{"domains": domains},
	})
}

// getUserFromContext 是一个辅助函数，用于从 Gin 上下文中获取完整的用户模型。
func (h *DocumentHandler) getUserFromContext(c *gin.Context) (*model.User, error) {
	claimsValue, _ := c.Get("claims")
	claims := claimsValue.(*token.CustomClaims)
	return h.userService.GetProfile(claims.Username)
}
