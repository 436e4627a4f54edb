package handler

import (
	"errors"
	"net/http"
	"strconv"

	"pdf-faq-go/internal/service"
	"pdf-faq-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SearchHandler 结构体定义了段落检索相关的处理器。
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

// SearchPassages 在当前用户的文档段落中做关键词检索。
func (h *SearchHandler) SearchPassages(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		log.Warnf("[SearchHandler] 搜索请求失败: query 参数为空")
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的查询参数"})
		return
	}
	size, err := strconv.Atoi(c.DefaultQuery("size", "10"))
	if err != nil {
		size = 10
	}
	user, ok := currentUser(c)
	if !ok {
		return
	}

	hits, err := h.searchService.SearchPassages(c.Request.Context(), user, query, size)
	if errors.Is(err, service.ErrSearchDisabled) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": http.StatusServiceUnavailable, "message": "段落检索未启用"})
		return
	}
	if err != nil {
		log.Errorf("[SearchHandler] 段落检索失败, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "搜索失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": hits, "message": "success"})
}
