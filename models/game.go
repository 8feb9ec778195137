package models

import "time"

// Role 游戏角色
type Role string

const (
	Villager   Role = "villager"    // 村民
	Werewolf   Role = "werewolf"    // 狼人
	Seer       Role = "seer"        // 预言家
	Witch      Role = "witch"       // 女巫
	Hunter     Role = "hunter"      // 猎人
	Cupid      Role = "cupid"       // 丘比特
	LittleGirl Role = "little-girl" // 小女孩
)

// AllRoles 全部角色
var AllRoles = []Role{Villager, Werewolf, Seer, Witch, Hunter, Cupid, LittleGirl}

// Valid 是否为已知角色
func (r Role) Valid() bool {
	for _, role := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Faction 阵营
type Faction string

const (
	Villagers  Faction = "villagers"  // 好人阵营
	Werewolves Faction = "werewolves" // 狼人阵营
)

// Faction 角色所属阵营，除狼人外都属于好人
func (r Role) Faction() Faction {
	if r == Werewolf {
		return Werewolves
	}
	return Villagers
}

// Phase 游戏阶段
type Phase string

const (
	PhaseLobby Phase = "lobby" // 等待开始
	PhaseNight Phase = "night" // 夜晚
	PhaseDay   Phase = "day"   // 白天讨论
	PhaseVote  Phase = "vote"  // 投票
	PhaseEnded Phase = "ended" // 游戏结束
)

// Timed 该阶段是否有倒计时
func (p Phase) Timed() bool {
	return p == PhaseNight || p == PhaseDay || p == PhaseVote
}

// ActionKind 夜晚/白天技能类型
type ActionKind string

const (
	ActionKill   ActionKind = "kill"   // 狼人投票杀人
	ActionSee    ActionKind = "see"    // 预言家查验
	ActionHeal   ActionKind = "heal"   // 女巫解药
	ActionPoison ActionKind = "poison" // 女巫毒药
	ActionLink   ActionKind = "link"   // 丘比特连接情侣
	ActionShoot  ActionKind = "shoot"  // 猎人开枪
)

// DeathCause 死亡原因
type DeathCause string

const (
	KilledByWerewolf DeathCause = "werewolf"
	KilledByPoison   DeathCause = "poison"
	KilledByVote     DeathCause = "vote"
	KilledByLove     DeathCause = "love"
	KilledByHunter   DeathCause = "hunter"
)

// RoleMode 角色配置模式
type RoleMode string

const (
	AutoBalance RoleMode = "auto"   // 根据人数自动配置
	ManualRoles RoleMode = "manual" // 房主手动配置
)

// RoleConfig 房间启用的特殊角色
type RoleConfig struct {
	Mode       RoleMode `json:"mode"`
	Werewolves int      `json:"werewolves,omitempty"`
	Seer       bool     `json:"seer,omitempty"`
	Witch      bool     `json:"witch,omitempty"`
	Hunter     bool     `json:"hunter,omitempty"`
	Cupid      bool     `json:"cupid,omitempty"`
	LittleGirl bool     `json:"little_girl,omitempty"`
}

// SpecialCount 特殊角色总数（狼人也计入）
func (c RoleConfig) SpecialCount() int {
	n := c.Werewolves
	for _, on := range []bool{c.Seer, c.Witch, c.Hunter, c.Cupid, c.LittleGirl} {
		if on {
			n++
		}
	}
	return n
}

// Player 玩家信息，角色只在房间内部保存
type Player struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Role  Role   `json:"-"`
	Alive bool   `json:"alive"`
	Ready bool   `json:"ready"`
}

// PublicPlayer 对所有人可见的玩家信息
type PublicPlayer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Alive bool   `json:"alive"`
	Ready bool   `json:"ready"`
}

// RevealedPlayer 游戏结束时公开身份的玩家信息
type RevealedPlayer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
	Alive bool   `json:"alive"`
}

// GameAction 客户端提交的游戏动作
type GameAction struct {
	Type      ActionKind `json:"type"`
	PlayerID  string     `json:"player_id"`
	TargetID  string     `json:"target_id,omitempty"`
	TargetIDs []string   `json:"target_ids,omitempty"`
	RoomID    string     `json:"room_id"`
	Timestamp int64      `json:"timestamp"`
}

// Targets 动作涉及的全部目标
func (a GameAction) Targets() []string {
	if len(a.TargetIDs) > 0 {
		return a.TargetIDs
	}
	if a.TargetID != "" {
		return []string{a.TargetID}
	}
	return nil
}

// RoomSnapshot 房间公开状态，不包含任何角色
type RoomSnapshot struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	HostID        string         `json:"host_id"`
	Phase         Phase          `json:"phase"`
	Round         int            `json:"round"`
	TimeRemaining int            `json:"time_remaining"`
	TimerRunning  bool           `json:"timer_running"`
	Players       []PublicPlayer `json:"players"`
	MaxPlayers    int            `json:"max_players"`
	Private       bool           `json:"private"`
	RoleConfig    RoleConfig     `json:"role_config"`
}

// PlayerView 某个玩家看到的房间状态，只附带自己的角色
type PlayerView struct {
	RoomSnapshot
	You      string `json:"you"`
	YourRole Role   `json:"your_role,omitempty"`
	LoverID  string `json:"lover_id,omitempty"`
}

// Death 一次死亡记录
type Death struct {
	PlayerID string     `json:"player_id"`
	Name     string     `json:"name"`
	KilledBy DeathCause `json:"killed_by"`
}

// RoomDescription 公开房间列表中的一项
type RoomDescription struct {
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	Host       string    `json:"host"`
	Players    int       `json:"players"`
	MaxPlayers int       `json:"max_players"`
	Started    bool      `json:"started"`
	Private    bool      `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	AgeSeconds int64     `json:"age_seconds"`
}
