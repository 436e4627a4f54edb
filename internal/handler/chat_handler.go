package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"pdf-faq-go/internal/service"
	"pdf-faq-go/pkg/log"
	"pdf-faq-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 通过 WebSocket 逐词推送答案。
type ChatHandler struct {
	qaService   service.QAService
	userService service.UserService
	jwtManager  *token.JWTManager
	wordDelay   time.Duration
}

// NewChatHandler 创建一个新的 ChatHandler。wordDelay 为相邻两个词之间的间隔。
func NewChatHandler(qaService service.QAService, userService service.UserService, jwtManager *token.JWTManager, wordDelay time.Duration) *ChatHandler {
	return &ChatHandler{
		qaService:   qaService,
		userService: userService,
		jwtManager:  jwtManager,
		wordDelay:   wordDelay,
	}
}

// chatMessage 是客户端发送的消息，也接受纯文本问题。
type chatMessage struct {
	Question   string `json:"question"`
	DocumentID *uint  `json:"documentId"`
}

func parseChatMessage(raw []byte) chatMessage {
	var msg chatMessage
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &msg); err == nil {
			return msg
		}
	}
	return chatMessage{Question: string(raw)}
}

// Handle 处理一个传入的 WebSocket 连接，token 通过路径参数传入。
func (h *ChatHandler) Handle(c *gin.Context) {
	claims, err := h.jwtManager.VerifyToken(c.Param("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
		return
	}
	user, err := h.userService.GetProfile(claims.Username)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "用户不存在", "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("WebSocket 连接已建立，用户: %s", user.Username)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			return
		}
		msg := parseChatMessage(raw)

		result, err := h.qaService.AskQuestion(c.Request.Context(), user, msg.Question, msg.DocumentID)
		if err != nil {
			log.Warnf("[ChatHandler] 问答失败: %v", err)
			if writeErr := conn.WriteJSON(gin.H{"error": err.Error()}); writeErr != nil {
				return
			}
			if writeErr := conn.WriteJSON(completionFrame(nil)); writeErr != nil {
				return
			}
			continue
		}

		if err := h.stream(conn, result); err != nil {
			log.Warnf("[ChatHandler] 推送答案失败: %v", err)
			return
		}
	}
}

// stream 逐词发送答案，最后发送携带来源信息的完成帧。
func (h *ChatHandler) stream(conn *websocket.Conn, result *service.QAResult) error {
	words := strings.Fields(result.Answer)
	for i, w := range words {
		if i < len(words)-1 {
			w += " "
		}
		if err := conn.WriteJSON(gin.H{"chunk": w}); err != nil {
			return err
		}
		if h.wordDelay > 0 {
			time.Sleep(h.wordDelay)
		}
	}
	return conn.WriteJSON(completionFrame(result))
}

func completionFrame(result *service.QAResult) gin.H {
	now := time.Now()
	frame := gin.H{
		"type":      "completion",
		"status":    "finished",
		"message":   "响应已完成",
		"timestamp": now.UnixMilli(),
		"date":      now.Format("2006-01-02T15:04:05"),
	}
	if result != nil {
		frame["sourceDocument"] = result.SourceDocument
		frame["sourcePage"] = result.SourcePage
		frame["relevantChunks"] = result.RelevantChunks
		if result.RelevantChunks == 0 {
			frame["hint"] = RephraseHint
		}
	}
	return frame
}
