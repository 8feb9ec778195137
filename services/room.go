package services

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/qianlnk/werewolf-rooms/config"
	"github.com/qianlnk/werewolf-rooms/models"
)

var (
	ErrRoomNotFound   = errors.New("房间不存在")
	ErrRoomFull       = errors.New("房间已满")
	ErrPlayerNotFound = errors.New("玩家不在任何房间中")
	ErrAlreadyInRoom  = errors.New("玩家已经在其他房间中")
)

const roomCodeLength = 6

// RoomOptions 创建房间时的参数
type RoomOptions struct {
	Name       string `json:"name"`
	MaxPlayers int    `json:"max_players"`
	Private    bool   `json:"private"`
}

// RoomManager 房间管理器，只保护房间映射本身，不持有任何房间的锁
type RoomManager struct {
	rooms        map[string]*GameController
	playerRooms  map[string]string // 玩家ID -> 房间号
	descriptions map[string]models.RoomDescription
	notifier     Notifier
	rules        config.GameConfig
	tickers      TickerCreator
	newCode      func() string
	now          func() time.Time
	mutex        sync.RWMutex
}

// NewRoomManager 创建房间管理器实例
func NewRoomManager(notifier Notifier, rules config.GameConfig, tickers TickerCreator) *RoomManager {
	return &RoomManager{
		rooms:        make(map[string]*GameController),
		playerRooms:  make(map[string]string),
		descriptions: make(map[string]models.RoomDescription),
		notifier:     notifier,
		rules:        rules,
		tickers:      tickers,
		newCode:      generateRoomCode,
		now:          time.Now,
	}
}

// generateRoomCode 取 uuid 的前6位作为房间号
func generateRoomCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:roomCodeLength])
}

// reserve 占用玩家的房间位置，保证一个玩家只属于一个房间
func (rm *RoomManager) reserve(playerID, code string) error {
	rm.mutex.Lock()
	defer rm.mutex.Unlock()
	if _, exists := rm.playerRooms[playerID]; exists {
		return ErrAlreadyInRoom
	}
	rm.playerRooms[playerID] = code
	return nil
}

func (rm *RoomManager) release(playerID, code string) {
	rm.mutex.Lock()
	defer rm.mutex.Unlock()
	if rm.playerRooms[playerID] == code {
		delete(rm.playerRooms, playerID)
	}
}

func (rm *RoomManager) clampCapacity(n int) int {
	if n <= 0 || n > rm.rules.MaxPlayers {
		return rm.rules.MaxPlayers
	}
	if n < rm.rules.MinPlayers {
		return rm.rules.MinPlayers
	}
	return n
}

// CreateRoom 创建新房间，创建者成为房主
func (rm *RoomManager) CreateRoom(playerID, playerName string, opts RoomOptions) (*GameController, error) {
	name, err := normalizeName(playerName)
	if err != nil {
		return nil, err
	}
	roomName := strings.TrimSpace(opts.Name)
	if roomName == "" {
		roomName = name + "的房间"
	}

	rm.mutex.Lock()
	if _, exists := rm.playerRooms[playerID]; exists {
		rm.mutex.Unlock()
		return nil, ErrAlreadyInRoom
	}
	code := rm.newCode()
	for rm.rooms[code] != nil {
		code = rm.newCode()
	}
	state := NewGameState(code, roomName, rm.clampCapacity(opts.MaxPlayers), opts.Private, rm.now())
	gc := NewGameController(state, rm.notifier, rm.rules, rm.tickers)
	gc.onClose = rm.removeRoom
	rm.rooms[code] = gc
	rm.playerRooms[playerID] = code
	rm.mutex.Unlock()

	if err := gc.Join(playerID, name); err != nil {
		gc.Close()
		return nil, err
	}

	log.Info().Str("room", code).Str("player", playerID).Bool("private", opts.Private).Msg("创建房间")
	rm.refreshDescription(gc)
	return gc, nil
}

// JoinRoom 加入房间，房间号为空时创建新房间
func (rm *RoomManager) JoinRoom(code, playerID, playerName string) (*GameController, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return rm.CreateRoom(playerID, playerName, RoomOptions{})
	}

	gc, err := rm.GetRoom(code)
	if err != nil {
		return nil, err
	}
	if err := rm.reserve(playerID, code); err != nil {
		return nil, err
	}
	if err := gc.Join(playerID, playerName); err != nil {
		rm.release(playerID, code)
		return nil, err
	}

	rm.refreshDescription(gc)
	return gc, nil
}

// StartGame 开始房间内的游戏
func (rm *RoomManager) StartGame(playerID string) error {
	gc, err := rm.RoomOf(playerID)
	if err != nil {
		return err
	}
	if err := gc.StartGame(playerID); err != nil {
		return err
	}
	rm.refreshDescription(gc)
	return nil
}

// LeaveRoom 玩家断开连接时离开房间，房间为空时销毁
func (rm *RoomManager) LeaveRoom(playerID string) {
	rm.mutex.Lock()
	code, exists := rm.playerRooms[playerID]
	delete(rm.playerRooms, playerID)
	gc := rm.rooms[code]
	rm.mutex.Unlock()

	if !exists || gc == nil {
		return
	}
	if empty := gc.Leave(playerID); !empty {
		rm.refreshDescription(gc)
	}
}

// removeRoom 房间销毁时的回调
func (rm *RoomManager) removeRoom(code string) {
	rm.mutex.Lock()
	defer rm.mutex.Unlock()

	delete(rm.rooms, code)
	delete(rm.descriptions, code)
	for pid, c := range rm.playerRooms {
		if c == code {
			delete(rm.playerRooms, pid)
		}
	}
	log.Info().Str("room", code).Int("rooms", len(rm.rooms)).Msg("移除房间")
}

// GetRoom 获取房间
func (rm *RoomManager) GetRoom(code string) (*GameController, error) {
	rm.mutex.RLock()
	defer rm.mutex.RUnlock()

	gc, exists := rm.rooms[strings.ToUpper(code)]
	if !exists {
		return nil, ErrRoomNotFound
	}
	return gc, nil
}

// RoomOf 获取玩家所在的房间
func (rm *RoomManager) RoomOf(playerID string) (*GameController, error) {
	rm.mutex.RLock()
	code, exists := rm.playerRooms[playerID]
	gc := rm.rooms[code]
	rm.mutex.RUnlock()

	if !exists {
		return nil, ErrPlayerNotFound
	}
	if gc == nil {
		return nil, ErrRoomNotFound
	}
	return gc, nil
}

// refreshDescription 更新公开房间列表，读取房间状态时不持有管理器的锁
func (rm *RoomManager) refreshDescription(gc *GameController) {
	desc := gc.Description()

	rm.mutex.Lock()
	defer rm.mutex.Unlock()
	if _, exists := rm.rooms[desc.Code]; !exists || desc.Private {
		delete(rm.descriptions, desc.Code)
		return
	}
	rm.descriptions[desc.Code] = desc
}

// ListRooms 公开房间列表，按创建时间排序
func (rm *RoomManager) ListRooms() []models.RoomDescription {
	rm.mutex.RLock()
	rooms := make([]models.RoomDescription, 0, len(rm.descriptions))
	for _, desc := range rm.descriptions {
		rooms = append(rooms, desc)
	}
	rm.mutex.RUnlock()

	now := rm.now()
	for i := range rooms {
		rooms[i].AgeSeconds = int64(now.Sub(rooms[i].CreatedAt) / time.Second)
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].Code < rooms[j].Code
		}
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
	return rooms
}

// Shutdown 关闭所有房间
func (rm *RoomManager) Shutdown() {
	rm.mutex.RLock()
	rooms := make([]*GameController, 0, len(rm.rooms))
	for _, gc := range rm.rooms {
		rooms = append(rooms, gc)
	}
	rm.mutex.RUnlock()

	for _, gc := range rooms {
		gc.Close()
	}
}

// RoomCount 当前房间数量
func (rm *RoomManager) RoomCount() int {
	rm.mutex.RLock()
	defer rm.mutex.RUnlock()
	return len(rm.rooms)
}
