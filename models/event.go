package models

// EventType 服务端推送的消息类型
type EventType string

const (
	EventConnected        EventType = "connected"
	EventJoinedRoom       EventType = "joined_room"
	EventRoomUpdate       EventType = "room_update"
	EventGameStarted      EventType = "game_started"
	EventRoleAssigned     EventType = "role_assigned"
	EventPhaseChanged     EventType = "phase_changed"
	EventTimerUpdate      EventType = "timer_update"
	EventPhaseAccelerated EventType = "phase_accelerated"
	EventRoleRevealed     EventType = "role_revealed"
	EventWerewolfSelect   EventType = "werewolf_select"
	EventWerewolfVotes    EventType = "werewolf_votes"
	EventWerewolfResult   EventType = "werewolf_result"
	EventLoversLinked     EventType = "lovers_linked"
	EventNightDeaths      EventType = "night_deaths"
	EventVoteUpdate       EventType = "vote_update"
	EventPlayerEliminated EventType = "player_eliminated"
	EventHunterRevenge    EventType = "hunter_revenge"
	EventHunterShot       EventType = "hunter_shot"
	EventGameEnded        EventType = "game_ended"
	EventChat             EventType = "chat"
	EventRoomClosed       EventType = "room_closed"
	EventError            EventType = "error"
)

// Event 推送给客户端的消息
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// NewEvent 构造消息
func NewEvent(t EventType, data interface{}) Event {
	return Event{Type: t, Data: data}
}

// TimerUpdate 倒计时
type TimerUpdate struct {
	TimeRemaining int   `json:"time_remaining"`
	Phase         Phase `json:"phase"`
}

// RoleAssignment 私发给玩家的角色
type RoleAssignment struct {
	Role     Role         `json:"role"`
	GameInfo RoomSnapshot `json:"game_info"`
}

// RoleReveal 私发给预言家的查验结果
type RoleReveal struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
}

// WerewolfSelection 狼人之间同步的临时选择
type WerewolfSelection struct {
	WerewolfID string `json:"werewolf_id"`
	TargetID   string `json:"target_id"`
}

// WerewolfVotes 狼人投票明细，key 为狼人ID，value 为目标ID
type WerewolfVotes struct {
	Votes map[string]string `json:"votes"`
}

// WerewolfResult 狼人当晚投票结果
type WerewolfResult struct {
	TargetID string            `json:"target_id,omitempty"`
	Name     string            `json:"name,omitempty"`
	NoKill   bool              `json:"no_kill"`
	Votes    map[string]string `json:"votes"`
}

// LoverNotice 告知情侣另一半
type LoverNotice struct {
	PartnerID   string `json:"partner_id"`
	PartnerName string `json:"partner_name"`
}

// NightReport 夜晚结算结果
type NightReport struct {
	Deaths        []Death `json:"deaths"`
	HunterRevenge bool    `json:"hunter_revenge"`
}

// VoteUpdate 投票进度
type VoteUpdate struct {
	VoterID   string `json:"voter_id"`
	TargetID  string `json:"target_id"`
	VoteCount int    `json:"vote_count"`
}

// Elimination 投票放逐结果
type Elimination struct {
	PlayerID      string     `json:"player_id"`
	Name          string     `json:"name"`
	KilledBy      DeathCause `json:"killed_by"`
	Votes         int        `json:"votes"`
	HunterRevenge bool       `json:"hunter_revenge"`
}

// HunterPrompt 猎人死亡后的开枪提示
type HunterPrompt struct {
	HunterID string `json:"hunter_id"`
	Deadline Phase  `json:"deadline"`
}

// GameResult 游戏结束时的结果
type GameResult struct {
	Winner  Faction          `json:"winner"`
	Players []RevealedPlayer `json:"players"`
}

// ChatMessage 聊天消息
type ChatMessage struct {
	PlayerID   string `json:"player_id,omitempty"`
	PlayerName string `json:"player_name,omitempty"`
	Message    string `json:"message"`
	Channel    string `json:"channel"`
	Timestamp  int64  `json:"timestamp"`
}

// ErrorMessage 私发的错误信息
type ErrorMessage struct {
	Message string `json:"message"`
}
