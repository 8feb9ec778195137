package services

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/qianlnk/werewolf-rooms/config"
	"github.com/qianlnk/werewolf-rooms/models"
)

var errPlayerNotConnected = errors.New("玩家未连接")

// 客户端消息类型
const (
	MsgCreateRoom     = "create_room"
	MsgJoinRoom       = "join_room"
	MsgConfigureRoles = "configure_roles"
	MsgStartGame      = "start_game"
	MsgNightAction    = "night_action"
	MsgWerewolfSelect = "werewolf_select"
	MsgVote           = "vote"
	MsgReady          = "ready"
	MsgChat           = "chat"
	MsgHunterShoot    = "hunter_shoot"
)

const writeWait = 5 * time.Second

// Message 客户端发来的 websocket 消息
type Message struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"room_id"`
	Content json.RawMessage `json:"content,omitempty"`
}

type targetContent struct {
	TargetID string `json:"target_id"`
}

type chatContent struct {
	Message string `json:"message"`
}

type joinContent struct {
	PlayerName string `json:"player_name"`
	RoomOptions
}

// wsClient 单个连接，写操作只在 writePump 中进行
type wsClient struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
}

// WebSocketManager WebSocket连接管理器
type WebSocketManager struct {
	clients     map[string]*wsClient       // playerID -> 连接
	rooms       map[string]map[string]bool // roomID -> playerIDs
	roomManager *RoomManager
	cfg         config.WSConfig
	mutex       sync.RWMutex
}

// NewWebSocketManager 创建WebSocket管理器实例
func NewWebSocketManager(cfg config.WSConfig) *WebSocketManager {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.MessagesPerSecond <= 0 || cfg.Burst <= 0 {
		cfg.MessagesPerSecond, cfg.Burst = 5, 10
	}
	return &WebSocketManager{
		clients: make(map[string]*wsClient),
		rooms:   make(map[string]map[string]bool),
		cfg:     cfg,
	}
}

// SetRoomManager 设置房间管理器实例
func (wm *WebSocketManager) SetRoomManager(rm *RoomManager) {
	wm.roomManager = rm
}

// HandleConnection 注册连接并阻塞读取消息，连接断开时玩家离开房间
func (wm *WebSocketManager) HandleConnection(conn *websocket.Conn) {
	c := &wsClient{
		id:      uuid.NewString(),
		conn:    conn,
		send:    make(chan []byte, wm.cfg.SendBuffer),
		limiter: rate.NewLimiter(rate.Limit(wm.cfg.MessagesPerSecond), wm.cfg.Burst),
	}

	wm.mutex.Lock()
	wm.clients[c.id] = c
	wm.mutex.Unlock()

	go wm.writePump(c)
	_ = wm.SendToPlayer(c.id, models.NewEvent(models.EventConnected, map[string]string{"player_id": c.id}))
	log.Debug().Str("player", c.id).Msg("新连接")

	wm.readPump(c)
	wm.RemoveConnection(c.id)
}

// RemoveConnection 移除连接并让玩家离开房间
func (wm *WebSocketManager) RemoveConnection(playerID string) {
	wm.mutex.Lock()
	c, exists := wm.clients[playerID]
	if exists {
		delete(wm.clients, playerID)
		close(c.send)
	}
	wm.mutex.Unlock()

	if !exists {
		return
	}
	if wm.roomManager != nil {
		wm.roomManager.LeaveRoom(playerID)
	}
	log.Debug().Str("player", playerID).Msg("连接已断开")
}

// JoinRoom 将玩家加入房间的广播组
func (wm *WebSocketManager) JoinRoom(roomID, playerID string) {
	wm.mutex.Lock()
	defer wm.mutex.Unlock()

	members, exists := wm.rooms[roomID]
	if !exists {
		members = make(map[string]bool)
		wm.rooms[roomID] = members
	}
	members[playerID] = true
}

// LeaveRoom 将玩家移出房间的广播组
func (wm *WebSocketManager) LeaveRoom(roomID, playerID string) {
	wm.mutex.Lock()
	defer wm.mutex.Unlock()

	members := wm.rooms[roomID]
	delete(members, playerID)
	if len(members) == 0 {
		delete(wm.rooms, roomID)
	}
}

// enqueue 调用方需持有读锁，发送缓冲区满时丢弃消息
func (wm *WebSocketManager) enqueue(c *wsClient, data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		log.Warn().Str("player", c.id).Msg("发送缓冲区已满，丢弃消息")
		return false
	}
}

// SendToPlayer 向指定玩家发送消息
func (wm *WebSocketManager) SendToPlayer(playerID string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	wm.mutex.RLock()
	defer wm.mutex.RUnlock()

	c, exists := wm.clients[playerID]
	if !exists {
		return errPlayerNotConnected
	}
	wm.enqueue(c, data)
	return nil
}

// BroadcastToRoom 向房间内所有玩家广播消息
func (wm *WebSocketManager) BroadcastToRoom(roomID string, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Warn().Err(err).Str("room", roomID).Msg("消息序列化失败")
		return
	}

	wm.mutex.RLock()
	defer wm.mutex.RUnlock()

	for playerID := range wm.rooms[roomID] {
		if c, ok := wm.clients[playerID]; ok {
			wm.enqueue(c, data)
		}
	}
}

func (wm *WebSocketManager) writePump(c *wsClient) {
	interval := time.Duration(wm.cfg.PingInterval) * time.Second
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("player", c.id).Msg("发送消息失败")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("player", c.id).Msg("心跳检测失败")
				return
			}
		}
	}
}

func (wm *WebSocketManager) readPump(c *wsClient) {
	if wm.cfg.MaxMessageBytes > 0 {
		c.conn.SetReadLimit(wm.cfg.MaxMessageBytes)
	}

	for {
		_, p, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("player", c.id).Msg("读取消息失败")
			}
			return
		}

		if !c.limiter.Allow() {
			wm.sendError(c.id, "操作过于频繁")
			continue
		}

		var msg Message
		if err := json.Unmarshal(p, &msg); err != nil {
			wm.sendError(c.id, "消息格式错误")
			continue
		}
		if err := wm.handleMessage(c.id, msg); err != nil {
			wm.sendError(c.id, err.Error())
		}
	}
}

func (wm *WebSocketManager) sendError(playerID, message string) {
	_ = wm.SendToPlayer(playerID, models.NewEvent(models.EventError, models.ErrorMessage{Message: message}))
}

func decodeContent(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.New("消息内容格式错误")
	}
	return nil
}

// handleMessage 把客户端意图转发给对应房间，返回的错误只发给发送者
func (wm *WebSocketManager) handleMessage(playerID string, msg Message) error {
	rm := wm.roomManager
	switch msg.Type {
	case MsgCreateRoom:
		var req joinContent
		if err := decodeContent(msg.Content, &req); err != nil {
			return err
		}
		_, err := rm.CreateRoom(playerID, req.PlayerName, req.RoomOptions)
		return err

	case MsgJoinRoom:
		var req joinContent
		if err := decodeContent(msg.Content, &req); err != nil {
			return err
		}
		_, err := rm.JoinRoom(msg.RoomID, playerID, req.PlayerName)
		return err

	case MsgStartGame:
		return rm.StartGame(playerID)
	}

	gc, err := rm.RoomOf(playerID)
	if err != nil {
		return err
	}

	switch msg.Type {
	case MsgConfigureRoles:
		var cfg models.RoleConfig
		if err := decodeContent(msg.Content, &cfg); err != nil {
			return err
		}
		return gc.ConfigureRoles(playerID, cfg)

	case MsgNightAction:
		var action models.GameAction
		if err := decodeContent(msg.Content, &action); err != nil {
			return err
		}
		action.PlayerID = playerID
		gc.ProcessAction(action)

	case MsgHunterShoot:
		var req targetContent
		if err := decodeContent(msg.Content, &req); err != nil {
			return err
		}
		gc.ProcessAction(models.GameAction{Type: models.ActionShoot, PlayerID: playerID, TargetID: req.TargetID})

	case MsgWerewolfSelect:
		var req targetContent
		if err := decodeContent(msg.Content, &req); err != nil {
			return err
		}
		gc.SelectTarget(playerID, req.TargetID)

	case MsgVote:
		var req targetContent
		if err := decodeContent(msg.Content, &req); err != nil {
			return err
		}
		gc.SubmitVote(playerID, req.TargetID)

	case MsgReady:
		gc.SubmitReady(playerID)

	case MsgChat:
		var req chatContent
		if err := decodeContent(msg.Content, &req); err != nil {
			return err
		}
		gc.SendChat(playerID, req.Message)

	default:
		log.Debug().Str("player", playerID).Str("type", msg.Type).Msg("未知的消息类型")
	}
	return nil
}
