package services

import (
	"errors"
	"sort"
	"time"

	"github.com/qianlnk/werewolf-rooms/models"
)

var errCorruptState = errors.New("游戏状态损坏")

// GameState 单个房间的全部状态，由 GameController 的互斥锁保护
type GameState struct {
	RoomID     string
	Name       string
	HostID     string
	Phase      models.Phase
	Round      int
	Players    map[string]*models.Player
	MaxPlayers int
	Private    bool
	RoleConfig models.RoleConfig
	CreatedAt  time.Time

	TimeLeft     int
	TimerRunning bool

	// 本轮账本，每次进入新阶段时清空
	Votes        map[string]string                                  // 投票者 -> 目标
	NightActions map[string]map[models.ActionKind]models.GameAction // 行动者 -> 动作类型 -> 动作
	KillVotes    map[string]string                                  // 狼人 -> 目标
	Confirmed    map[string]bool
	accelerated  bool

	// 整局有效
	Lovers        []string
	potionsUsed   map[models.ActionKind]bool
	pendingHunter map[string]int // 猎人ID -> 获得开枪权时的阶段序号
	phaseSeq      int

	order []string // 加入顺序，用于移交房主和稳定输出
}

// NewGameState 创建空房间状态
func NewGameState(roomID, name string, maxPlayers int, private bool, now time.Time) *GameState {
	gs := &GameState{
		RoomID:        roomID,
		Name:          name,
		Phase:         models.PhaseLobby,
		Players:       make(map[string]*models.Player),
		MaxPlayers:    maxPlayers,
		Private:       private,
		RoleConfig:    models.RoleConfig{Mode: models.AutoBalance},
		CreatedAt:     now,
		potionsUsed:   make(map[models.ActionKind]bool),
		pendingHunter: make(map[string]int),
	}
	gs.resetRound()
	return gs
}

// resetRound 清空上一阶段的投票、夜晚动作、狼人投票和确认集合
func (gs *GameState) resetRound() {
	gs.Votes = make(map[string]string)
	gs.NightActions = make(map[string]map[models.ActionKind]models.GameAction)
	gs.KillVotes = make(map[string]string)
	gs.Confirmed = make(map[string]bool)
	gs.accelerated = false
	for _, p := range gs.Players {
		p.Ready = false
	}
}

func (gs *GameState) addPlayer(p *models.Player) {
	gs.Players[p.ID] = p
	gs.order = append(gs.order, p.ID)
	if gs.HostID == "" {
		gs.HostID = p.ID
	}
}

// removePlayer 移除玩家，房主离开时交给最早加入的玩家
func (gs *GameState) removePlayer(id string) {
	delete(gs.Players, id)
	for i, pid := range gs.order {
		if pid == id {
			gs.order = append(gs.order[:i], gs.order[i+1:]...)
			break
		}
	}
	if gs.HostID == id {
		gs.HostID = ""
		if len(gs.order) > 0 {
			gs.HostID = gs.order[0]
		}
	}
}

func (gs *GameState) player(id string) *models.Player {
	return gs.Players[id]
}

func (gs *GameState) isAlive(id string) bool {
	p := gs.Players[id]
	return p != nil && p.Alive
}

func (gs *GameState) roleOf(id string) models.Role {
	if p := gs.Players[id]; p != nil {
		return p.Role
	}
	return ""
}

// playerIDs 按加入顺序返回玩家ID
func (gs *GameState) playerIDs() []string {
	ids := make([]string, len(gs.order))
	copy(ids, gs.order)
	return ids
}

// alivePlayers 按加入顺序返回存活玩家
func (gs *GameState) alivePlayers() []*models.Player {
	alive := make([]*models.Player, 0, len(gs.order))
	for _, id := range gs.order {
		if p := gs.Players[id]; p != nil && p.Alive {
			alive = append(alive, p)
		}
	}
	return alive
}

func (gs *GameState) aliveWithRole(role models.Role) []*models.Player {
	var out []*models.Player
	for _, p := range gs.alivePlayers() {
		if p.Role == role {
			out = append(out, p)
		}
	}
	return out
}

func (gs *GameState) aliveIDsWithRole(role models.Role) []string {
	var ids []string
	for _, p := range gs.aliveWithRole(role) {
		ids = append(ids, p.ID)
	}
	return ids
}

// recordNightAction 同一行动者同一动作类型只保留最后一次提交
func (gs *GameState) recordNightAction(action models.GameAction) {
	slots, ok := gs.NightActions[action.PlayerID]
	if !ok {
		slots = make(map[models.ActionKind]models.GameAction)
		gs.NightActions[action.PlayerID] = slots
	}
	slots[action.Type] = action
	gs.Confirmed[action.PlayerID] = true
}

func (gs *GameState) recordKillVote(wolfID, targetID string) {
	gs.KillVotes[wolfID] = targetID
	gs.Confirmed[wolfID] = true
}

func (gs *GameState) recordVote(voterID, targetID string) {
	gs.Votes[voterID] = targetID
	gs.Confirmed[voterID] = true
}

// nightActionsOf 返回某类动作的全部提交，按行动者ID排序
func (gs *GameState) nightActionsOf(kind models.ActionKind) []models.GameAction {
	actors := make([]string, 0, len(gs.NightActions))
	for actor := range gs.NightActions {
		actors = append(actors, actor)
	}
	sort.Strings(actors)

	var out []models.GameAction
	for _, actor := range actors {
		if a, ok := gs.NightActions[actor][kind]; ok {
			out = append(out, a)
		}
	}
	return out
}

// expectedActions 当前阶段达到加速所需的确认人数
func (gs *GameState) expectedActions(dayQuorumRatio float64) int {
	alive := gs.alivePlayers()
	switch gs.Phase {
	case models.PhaseNight:
		n := 0
		for _, p := range alive {
			if gs.owesNightAction(p) {
				n++
			}
		}
		return n
	case models.PhaseDay:
		percent := int(dayQuorumRatio*100 + 0.5)
		return (len(alive)*percent + 99) / 100
	case models.PhaseVote:
		return len(alive)
	}
	return 0
}

// owesNightAction 两瓶药都用完的女巫不再计入夜晚行动人数
func (gs *GameState) owesNightAction(p *models.Player) bool {
	if p.Role == models.Witch && gs.potionsUsed[models.ActionHeal] && gs.potionsUsed[models.ActionPoison] {
		return false
	}
	return hasNightDuty(p.Role, gs.Round)
}

// confirmedActions 已确认且仍然存活的人数
func (gs *GameState) confirmedActions() int {
	n := 0
	for id := range gs.Confirmed {
		p := gs.Players[id]
		if p == nil || !p.Alive {
			continue
		}
		if gs.Phase == models.PhaseNight && !gs.owesNightAction(p) {
			continue
		}
		n++
	}
	return n
}

func (gs *GameState) loverOf(id string) string {
	if len(gs.Lovers) != 2 {
		return ""
	}
	switch id {
	case gs.Lovers[0]:
		return gs.Lovers[1]
	case gs.Lovers[1]:
		return gs.Lovers[0]
	}
	return ""
}

// grantHunter 猎人死亡后获得开枪权，持续到下一个阶段结束
func (gs *GameState) grantHunter(id string) {
	gs.pendingHunter[id] = gs.phaseSeq
}

func (gs *GameState) hunterCanShoot(id string) bool {
	seq, ok := gs.pendingHunter[id]
	return ok && gs.phaseSeq <= seq+1
}

// expireHunters 清理已过期的开枪权
func (gs *GameState) expireHunters() {
	for id, seq := range gs.pendingHunter {
		if gs.phaseSeq > seq+1 {
			delete(gs.pendingHunter, id)
		}
	}
}

// checkInvariants 结算前检查账本是否一致
func (gs *GameState) checkInvariants() error {
	if len(gs.Lovers) != 0 && len(gs.Lovers) != 2 {
		return errCorruptState
	}
	if gs.Phase.Timed() && gs.Round < 1 {
		return errCorruptState
	}
	for _, p := range gs.Players {
		if gs.Phase != models.PhaseLobby && !p.Role.Valid() {
			return errCorruptState
		}
	}
	return nil
}

func (gs *GameState) publicPlayers() []models.PublicPlayer {
	out := make([]models.PublicPlayer, 0, len(gs.order))
	for _, id := range gs.order {
		p := gs.Players[id]
		out = append(out, models.PublicPlayer{ID: p.ID, Name: p.Name, Alive: p.Alive, Ready: p.Ready})
	}
	return out
}

func (gs *GameState) revealedPlayers() []models.RevealedPlayer {
	out := make([]models.RevealedPlayer, 0, len(gs.order))
	for _, id := range gs.order {
		p := gs.Players[id]
		out = append(out, models.RevealedPlayer{ID: p.ID, Name: p.Name, Role: p.Role, Alive: p.Alive})
	}
	return out
}

// snapshot 房间公开状态
func (gs *GameState) snapshot() models.RoomSnapshot {
	return models.RoomSnapshot{
		ID:            gs.RoomID,
		Name:          gs.Name,
		HostID:        gs.HostID,
		Phase:         gs.Phase,
		Round:         gs.Round,
		TimeRemaining: gs.TimeLeft,
		TimerRunning:  gs.TimerRunning,
		Players:       gs.publicPlayers(),
		MaxPlayers:    gs.MaxPlayers,
		Private:       gs.Private,
		RoleConfig:    gs.RoleConfig,
	}
}

func (gs *GameState) description() models.RoomDescription {
	host := ""
	if p := gs.Players[gs.HostID]; p != nil {
		host = p.Name
	}
	return models.RoomDescription{
		Code:       gs.RoomID,
		Name:       gs.Name,
		Host:       host,
		Players:    len(gs.Players),
		MaxPlayers: gs.MaxPlayers,
		Started:    gs.Phase != models.PhaseLobby,
		Private:    gs.Private,
		CreatedAt:  gs.CreatedAt,
	}
}
