package handler

import (
	"net/http"
	"time"

	"doc-insight-go/internal/model"
	"doc-insight-go/internal/service"
	"doc-insight-go/pkg/log"
	"doc-insight-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// QueryHandler 负责处理知识库问答相关的 API 请求。
type QueryHandler struct {
	queryService service.QueryService
	userService  service.UserService
}

// NewQueryHandler 创建一个新的 QueryHandler 实例。
func NewQueryHandler(queryService service.QueryService, userService service.UserService) *QueryHandler {
	return &QueryHandler{
		queryService: queryService,
		userService:  userService,
	}
}

// Query 处理单答案问答请求。
func (h *QueryHandler) Query(c *gin.Context) {
	var req model.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.getUserFromContext(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}

	start := time.Now()
	resp, err := h.queryService.Query(c.Request.Context(), user.ID, &req)
	if err != nil {
		log.Errorf("Query: failed for user %s, err: %v", user.Username, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "问答处理失败"})
		return
	}
	resp.ProcessingTime = time.Since(start).Seconds()

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    resp,
	})
}

// DualQuery 处理双答案问答请求：个人文档答案 + 综合知识答案。
func (h *QueryHandler) DualQuery(c *gin.Context) {
	var req model.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.getUserFromContext(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}

	start := time.Now()
	resp, err := h.queryService.DualQuery(c.Request.Context(), user.ID, &req)
	if err != nil {
		log.Errorf("DualQuery: failed for user %s, err: %v", user.Username, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "问答处理失败"})
		return
	}
	resp.ProcessingTime = time.Since(start).Seconds()

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    resp,
	})
}

func (h *QueryHandler) getUserFromContext(c *gin.Context) (*model.User, error) {
	claimsValue, _ := c.Get("claims")
	claims := claimsValue.(*token.CustomClaims)
	return h.userService.GetProfile(claims.Username)
}
