package services

import (
	"fmt"

	"github.com/qianlnk/werewolf-rooms/config"
	"github.com/qianlnk/werewolf-rooms/models"
)

// validTransitions 阶段转换表
var validTransitions = map[models.Phase][]models.Phase{
	models.PhaseLobby: {models.PhaseNight},
	models.PhaseNight: {models.PhaseDay, models.PhaseEnded},
	models.PhaseDay:   {models.PhaseVote},
	models.PhaseVote:  {models.PhaseNight, models.PhaseEnded},
}

// canTransition 检查阶段转换是否合法
func canTransition(from, to models.Phase) bool {
	for _, p := range validTransitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// VoteOutcome 投票结算结果
type VoteOutcome struct {
	Counts     map[string]int
	Eliminated *models.Death
	Votes      int
	Tie        bool
	Hunter     bool
}

// Transition 一次阶段转换的结果
type Transition struct {
	From   models.Phase
	To     models.Phase
	Night  *NightOutcome
	Vote   *VoteOutcome
	Winner models.Faction
}

// StateMachine 游戏状态机
type StateMachine struct {
	game  *GameState
	rules config.GameConfig
}

// NewStateMachine 创建状态机实例
func NewStateMachine(game *GameState, rules config.GameConfig) *StateMachine {
	return &StateMachine{game: game, rules: rules}
}

func (sm *StateMachine) phaseSeconds(p models.Phase) int {
	switch p {
	case models.PhaseNight:
		return sm.rules.NightSeconds
	case models.PhaseDay:
		return sm.rules.DaySeconds
	case models.PhaseVote:
		return sm.rules.VoteSeconds
	}
	return 0
}

// enter 切换到新阶段，清空账本并重置倒计时
func (sm *StateMachine) enter(p models.Phase) error {
	if !canTransition(sm.game.Phase, p) {
		return fmt.Errorf("%w: 非法的阶段转换 %s -> %s", errCorruptState, sm.game.Phase, p)
	}
	sm.game.Phase = p
	sm.game.phaseSeq++
	sm.game.expireHunters()

	if p == models.PhaseEnded {
		sm.game.TimeLeft = 0
		sm.game.TimerRunning = false
		return nil
	}
	sm.game.resetRound()
	sm.game.TimeLeft = sm.phaseSeconds(p)
	sm.game.TimerRunning = true
	return nil
}

// Start 大厅进入第一个夜晚
func (sm *StateMachine) Start(roles map[string]models.Role) error {
	for id, role := range roles {
		p := sm.game.player(id)
		if p == nil {
			return fmt.Errorf("%w: 分配角色时玩家 %s 不存在", errCorruptState, id)
		}
		p.Role = role
		p.Alive = true
	}
	sm.game.Round = 1
	return sm.enter(models.PhaseNight)
}

// Advance 倒计时结束或加速时推进到下一阶段
func (sm *StateMachine) Advance() (Transition, error) {
	if err := sm.game.checkInvariants(); err != nil {
		return Transition{}, err
	}

	tr := Transition{From: sm.game.Phase}
	switch sm.game.Phase {
	case models.PhaseNight:
		night := resolveNight(sm.game)
		tr.Night = &night
		if winner, ok := evaluateWinner(sm.game); ok {
			tr.Winner = winner
			tr.To = models.PhaseEnded
		} else {
			tr.To = models.PhaseDay
		}

	case models.PhaseDay:
		tr.To = models.PhaseVote

	case models.PhaseVote:
		vote := resolveVotes(sm.game)
		tr.Vote = &vote
		if winner, ok := evaluateWinner(sm.game); ok {
			tr.Winner = winner
			tr.To = models.PhaseEnded
		} else {
			sm.game.Round++
			tr.To = models.PhaseNight
		}

	default:
		return Transition{}, fmt.Errorf("%w: 阶段 %s 不能推进", errCorruptState, sm.game.Phase)
	}

	if err := sm.enter(tr.To); err != nil {
		return Transition{}, err
	}
	return tr, nil
}

// End 在阶段中途出现胜负时直接结束游戏
func (sm *StateMachine) End() (models.Faction, bool) {
	if !sm.game.Phase.Timed() {
		return "", false
	}
	winner, ok := evaluateWinner(sm.game)
	if !ok {
		return "", false
	}
	if err := sm.enter(models.PhaseEnded); err != nil {
		return "", false
	}
	return winner, true
}

// resolveVotes 只统计存活投票者对存活目标的投票，最高票唯一时放逐，平票无人出局
func resolveVotes(gs *GameState) VoteOutcome {
	out := VoteOutcome{Counts: make(map[string]int)}
	for voter, target := range gs.Votes {
		if !gs.isAlive(voter) || !gs.isAlive(target) {
			continue
		}
		out.Counts[target]++
	}

	top := ""
	for target, count := range out.Counts {
		switch {
		case count > out.Votes:
			out.Votes = count
			top = target
			out.Tie = false
		case count == out.Votes:
			out.Tie = true
		}
	}
	if top == "" || out.Tie {
		return out
	}

	var deaths []models.Death
	if kill(gs, top, models.KilledByVote, &deaths) {
		out.Eliminated = &deaths[0]
		if gs.roleOf(top) == models.Hunter {
			out.Hunter = true
			gs.grantHunter(top)
		}
	}
	return out
}

// evaluateWinner 先判断狼人是否全灭，再判断狼人数是否不少于好人数
func evaluateWinner(gs *GameState) (models.Faction, bool) {
	wolves, others := 0, 0
	for _, p := range gs.alivePlayers() {
		if p.Role.Faction() == models.Werewolves {
			wolves++
		} else {
			others++
		}
	}
	if wolves == 0 {
		return models.Villagers, true
	}
	if wolves >= others {
		return models.Werewolves, true
	}
	return "", false
}
