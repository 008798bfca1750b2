// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/WovenInk/StoryLoom/internal/utils"
	"github.com/gorilla/websocket"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 本地单用户工具，放开来源检查
		return true
	},
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 45 * time.Second
)

// WebSocketClient 表示一个 WebSocket 客户端连接
type WebSocketClient struct {
	conn      *websocket.Conn
	projectID string
	send      chan []byte
	closed    int32 // 原子操作标志，0=开启，1=关闭
}

// Close 安全关闭客户端连接
func (client *WebSocketClient) Close() {
	if atomic.CompareAndSwapInt32(&client.closed, 0, 1) {
		client.conn.Close()
	}
}

// IsClosed 检查连接是否已关闭
func (client *WebSocketClient) IsClosed() bool {
	return atomic.LoadInt32(&client.closed) == 1
}

// WebSocketManager 管理所有 WebSocket 连接，按项目ID分组
type WebSocketManager struct {
	mutex       sync.RWMutex
	connections map[string]map[*WebSocketClient]bool // projectID -> clients
}

// 全局 WebSocket 管理器
var wsManager = &WebSocketManager{
	connections: make(map[string]map[*WebSocketClient]bool),
}

// registerClient 注册新客户端
func (manager *WebSocketManager) registerClient(client *WebSocketClient) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	if manager.connections[client.projectID] == nil {
		manager.connections[client.projectID] = make(map[*WebSocketClient]bool)
	}
	manager.connections[client.projectID][client] = true
}

// unregisterClient 注销客户端并关闭发送通道
func (manager *WebSocketManager) unregisterClient(client *WebSocketClient) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	clients := manager.connections[client.projectID]
	if clients == nil {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}

	delete(clients, client)
	if len(clients) == 0 {
		delete(manager.connections, client.projectID)
	}
	close(client.send)
}

// BroadcastToProject 向指定项目的所有客户端广播消息
func (manager *WebSocketManager) BroadcastToProject(projectID string, message map[string]interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		utils.GetLogger().Warnf("WebSocket消息序列化失败: %v", err)
		return
	}

	manager.mutex.RLock()
	defer manager.mutex.RUnlock()

	for client := range manager.connections[projectID] {
		if client.IsClosed() {
			continue
		}
		select {
		case client.send <- data:
		default:
			// 队列满，丢弃消息而不阻塞广播
		}
	}
}

// GetStatus 返回连接统计（调试用）
func (manager *WebSocketManager) GetStatus() map[string]interface{} {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()

	total := 0
	perProject := make(map[string]int)
	for projectID, clients := range manager.connections {
		perProject[projectID] = len(clients)
		total += len(clients)
	}

	return map[string]interface{}{
		"total_connections": total,
		"projects":          perProject,
	}
}

// serveProjectWebSocket 升级连接并启动读写泵
func serveProjectWebSocket(w http.ResponseWriter, r *http.Request, projectID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &WebSocketClient{
		conn:      conn,
		projectID: projectID,
		send:      make(chan []byte, 64),
	}

	wsManager.registerClient(client)

	go client.writePump()
	go client.readPump()

	return nil
}

// readPump 读取循环：只消费控制帧与关闭事件，客户端不向服务端发数据
func (client *WebSocketClient) readPump() {
	defer func() {
		wsManager.unregisterClient(client)
		client.Close()
	}()

	client.conn.SetReadLimit(512)
	client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump 写入循环：推送广播消息并维持心跳
func (client *WebSocketClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		client.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
