package websocket

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/mautops/dispatch-gin/internal/auth"
	"github.com/sirupsen/logrus"
)

var upgrader = gorillaWS.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// 浏览器和移动端都通过 token 认证,不限制 Origin
		return true
	},
}

// WebSocketHandler WebSocket 处理器
// token 取自 ?token= 或 Authorization 头;连接按用户名登记,设备定位请求和进度都按用户名投递
func WebSocketHandler(hub *Hub, tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "missing token"})
			return
		}

		claims, err := tokens.Validate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "invalid token"})
			return
		}

		// 升级失败时 upgrader 已写回错误响应
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logrus.WithError(err).WithField("user_id", claims.Username()).Debug("websocket upgrade failed")
			return
		}

		client := NewClient(uuid.New().String(), claims.Username(), claims.Role, hub, conn)
		hub.Register <- client
		logrus.WithFields(logrus.Fields{
			"client_id": client.ID,
			"user_id":   client.UserID,
			"role":      client.Role,
		}).Info("websocket client connected")

		go client.ReadPump()
		go client.WritePump()
	}
}
