package handler

import (
	"errors"
	"net/http"

	"pdf-faq-go/internal/service"
	"pdf-faq-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// RephraseHint 在没有找到相关内容时返回给前端。
const RephraseHint = "Keine relevanten Abschnitte gefunden. Bitte formulieren Sie die Frage anders."

// QAHandler 负责问答与问答历史相关的请求。
type QAHandler struct {
	qaService service.QAService
}

// NewQAHandler 创建一个新的 QAHandler 实例。
func NewQAHandler(qaService service.QAService) *QAHandler {
	return &QAHandler{qaService: qaService}
}

// AskRequest 是提问接口的请求体。DocumentID 为空时在全部文档中检索。
type AskRequest struct {
	Question   string `json:"question" binding:"required"`
	DocumentID *uint  `json:"documentId"`
}

// Ask 处理一次提问。
func (h *QAHandler) Ask(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "问题不能为空"})
		return
	}

	result, err := h.qaService.AskQuestion(c.Request.Context(), user, req.Question, req.DocumentID)
	switch {
	case errors.Is(err, service.ErrEmptyQuestion):
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "问题不能为空"})
		return
	case errors.Is(err, service.ErrDocumentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": err.Error()})
		return
	case err != nil:
		log.Errorf("[QAHandler] 问答失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "问答失败"})
		return
	}

	resp := gin.H{"code": http.StatusOK, "message": "success", "data": result}
	if result.RelevantChunks == 0 {
		resp["hint"] = RephraseHint
	}
	c.JSON(http.StatusOK, resp)
}

// History 返回当前用户最近的问答记录。
func (h *QAHandler) History(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	records, err := h.qaService.History(c.Request.Context(), user)
	if err != nil {
		log.Errorf("[QAHandler] 获取问答历史失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取问答历史失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": records})
}

// ClearHistory 清空当前用户的问答记录。
func (h *QAHandler) ClearHistory(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.qaService.ClearHistory(c.Request.Context(), user); err != nil {
		log.Errorf("[QAHandler] 清空问答历史失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "清空问答历史失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success"})
}
