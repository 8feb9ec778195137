package services

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/qianlnk/werewolf-rooms/config"
	"github.com/qianlnk/werewolf-rooms/models"
)

var testRules = config.GameConfig{
	NightSeconds:      60,
	DaySeconds:        120,
	VoteSeconds:       60,
	AccelerateSeconds: 10,
	MinPlayers:        4,
	MaxPlayers:        12,
	DayQuorumRatio:    0.7,
}

// recordingNotifier 记录所有投递的消息
type recordingNotifier struct {
	mu         sync.Mutex
	direct     map[string][]models.Event
	broadcasts map[string][]models.Event
	members    map[string]map[string]bool
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		direct:     make(map[string][]models.Event),
		broadcasts: make(map[string][]models.Event),
		members:    make(map[string]map[string]bool),
	}
}

func (n *recordingNotifier) SendToPlayer(playerID string, message interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.direct[playerID] = append(n.direct[playerID], message.(models.Event))
	return nil
}

func (n *recordingNotifier) BroadcastToRoom(roomID string, message interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.broadcasts[roomID] = append(n.broadcasts[roomID], message.(models.Event))
}

func (n *recordingNotifier) JoinRoom(roomID, playerID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.members[roomID] == nil {
		n.members[roomID] = make(map[string]bool)
	}
	n.members[roomID][playerID] = true
}

func (n *recordingNotifier) LeaveRoom(roomID, playerID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.members[roomID], playerID)
}

func (n *recordingNotifier) sent(playerID string, t models.EventType) []models.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []models.Event
	for _, e := range n.direct[playerID] {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (n *recordingNotifier) broadcast(roomID string, t models.EventType) []models.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []models.Event
	for _, e := range n.broadcasts[roomID] {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (n *recordingNotifier) isMember(roomID, playerID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.members[roomID][playerID]
}

// mockTickerCreator 由测试控制 tick 的 TickerCreator
type mockTickerCreator struct {
	mock.Mock
}

func (m *mockTickerCreator) Create(d time.Duration) (<-chan time.Time, func()) {
	args := m.Called(d)
	return args.Get(0).(<-chan time.Time), args.Get(1).(func())
}

func seat(i int) string {
	return fmt.Sprintf("p%d", i)
}

// newTestRoom 创建一个有 n 名玩家的大厅，p1 为房主，不启动倒计时协程
func newTestRoom(t *testing.T, n int) (*GameController, *recordingNotifier) {
	t.Helper()
	notifier := newRecordingNotifier()
	gs := NewGameState("ROOM01", "测试房间", testRules.MaxPlayers, false, time.Unix(0, 0))
	gc := NewGameController(gs, notifier, testRules, nil)
	gc.rng = rand.New(rand.NewSource(1))
	for i := 1; i <= n; i++ {
		require.NoError(t, gc.Join(seat(i), fmt.Sprintf("玩家%d", i)))
	}
	return gc, notifier
}

// startWithRoles 开始游戏并按加入顺序覆盖随机分配的角色
func startWithRoles(t *testing.T, gc *GameController, roles ...models.Role) {
	t.Helper()
	require.NoError(t, gc.StartGame(seat(1)))
	for i, role := range roles {
		gc.game.Players[seat(i+1)].Role = role
	}
}

// finishPhase 把当前阶段的倒计时走完
func finishPhase(gc *GameController) {
	gc.mutex.Lock()
	gc.game.TimeLeft = 1
	gc.mutex.Unlock()
	gc.Tick()
}

// newNightState 直接构造第一晚的状态
func newNightState(roles ...models.Role) *GameState {
	gs := NewGameState("ROOM01", "测试房间", 12, false, time.Unix(0, 0))
	for i, role := range roles {
		gs.addPlayer(&models.Player{ID: seat(i + 1), Name: fmt.Sprintf("玩家%d", i+1), Role: role, Alive: true})
	}
	gs.Phase = models.PhaseNight
	gs.Round = 1
	gs.TimerRunning = true
	return gs
}

func toJSON(t *testing.T, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}
