package mirror

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iabetor/manzai-stage/internal/logger"
)

// writeTimeout 单次广播写的时限。写不进去的窗口直接断开，
// 绝不拖住渲染驱动的帧循环。
const writeTimeout = 200 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 镜像窗口运行在本机，放开跨域检查
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub 维护镜像窗口连接并向它们广播状态。
// 广播是尽力而为的：发送失败只断开对应连接，不影响播放。
type Hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}

	// sendMu 串行化广播写；h.mu 只保护连接表，写操作不持有它
	sendMu sync.Mutex
}

// NewHub 创建镜像广播中心。
func NewHub() *Hub {
	return &Hub{
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// Handler 返回接受镜像窗口连接的 HTTP 处理器。
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warnf("[mirror] WebSocket 升级失败: %v", err)
			return
		}

		h.mu.Lock()
		h.conns[conn] = struct{}{}
		count := len(h.conns)
		h.mu.Unlock()
		logger.Infof("[mirror] 镜像窗口已连接（当前 %d 个）", count)

		// 读循环只为感知断开，镜像方向是单向推送
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					h.remove(conn)
					return
				}
			}
		}()
	})
}

// SendState 向所有镜像窗口广播一次状态更新。
// Hub 为 nil 时是空操作，调用方无需判断镜像是否启用。
func (h *Hub) SendState(p StatePayload) {
	if h == nil {
		return
	}

	data, err := EncodeState(p)
	if err != nil {
		logger.Warnf("[mirror] 编码状态失败: %v", err)
		return
	}

	// 锁内只取连接快照，写在锁外进行
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logger.Debugf("[mirror] 发送失败，断开连接: %v", err)
			h.remove(conn)
		}
	}
}

// Count 返回当前连接的镜像窗口数量。
func (h *Hub) Count() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close 断开所有镜像窗口。
func (h *Hub) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.Close()
		delete(h.conns, conn)
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[conn]; ok {
		conn.Close()
		delete(h.conns, conn)
		logger.Infof("[mirror] 镜像窗口已断开（剩余 %d 个）", len(h.conns))
	}
}
