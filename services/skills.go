package services

import "github.com/qianlnk/werewolf-rooms/models"

// KillTally 狼人投票统计
type KillTally struct {
	TargetID string            // 为空表示平票或无人投票
	Votes    map[string]string // 狼人 -> 目标
	Counts   map[string]int
}

// SeerReveal 预言家查验结果
type SeerReveal struct {
	SeerID string
	Target models.RoleReveal
}

// NightOutcome 夜晚结算结果
type NightOutcome struct {
	LoversLinked bool
	Kill         KillTally
	Healed       bool
	Reveals      []SeerReveal
	Deaths       []models.Death
	Hunters      []string // 今晚死亡的猎人
}

// HunterRevenge 是否有猎人需要开枪
func (o NightOutcome) HunterRevenge() bool {
	return len(o.Hunters) > 0
}

// tallyKillVotes 统计存活狼人的投票，只有获得严格多数的目标才会被杀
func tallyKillVotes(gs *GameState, aliveAtStart map[string]bool) KillTally {
	tally := KillTally{Votes: make(map[string]string), Counts: make(map[string]int)}
	cast := 0
	for wolfID, targetID := range gs.KillVotes {
		if !aliveAtStart[wolfID] || gs.roleOf(wolfID) != models.Werewolf {
			continue
		}
		if !aliveAtStart[targetID] || gs.roleOf(targetID) == models.Werewolf {
			continue
		}
		tally.Votes[wolfID] = targetID
		tally.Counts[targetID]++
		cast++
	}

	for target, count := range tally.Counts {
		if count*2 > cast {
			tally.TargetID = target
		}
	}
	return tally
}

// witchAction 取存活女巫的某个药水动作，药水每局只能用一次
func witchAction(gs *GameState, aliveAtStart map[string]bool, kind models.ActionKind) (models.GameAction, bool) {
	if gs.potionsUsed[kind] {
		return models.GameAction{}, false
	}
	for _, a := range gs.nightActionsOf(kind) {
		if aliveAtStart[a.PlayerID] && gs.roleOf(a.PlayerID) == models.Witch {
			return a, true
		}
	}
	return models.GameAction{}, false
}

func kill(gs *GameState, id string, cause models.DeathCause, out *[]models.Death) bool {
	p := gs.player(id)
	if p == nil || !p.Alive {
		return false
	}
	p.Alive = false
	*out = append(*out, models.Death{PlayerID: p.ID, Name: p.Name, KilledBy: cause})
	return true
}

// linkLovers 第一晚丘比特连接两名玩家，整局只能设置一次
func linkLovers(gs *GameState, aliveAtStart map[string]bool) bool {
	if gs.Round != 1 || len(gs.Lovers) != 0 {
		return false
	}
	for _, a := range gs.nightActionsOf(models.ActionLink) {
		if !aliveAtStart[a.PlayerID] || gs.roleOf(a.PlayerID) != models.Cupid {
			continue
		}
		targets := a.Targets()
		if len(targets) != 2 || targets[0] == targets[1] {
			continue
		}
		if !aliveAtStart[targets[0]] || !aliveAtStart[targets[1]] {
			continue
		}
		gs.Lovers = []string{targets[0], targets[1]}
		return true
	}
	return false
}

// resolveNight 按固定顺序结算夜晚：
// 丘比特连线、狼人投票、女巫解药、女巫毒药、预言家查验、狼人击杀、情侣殉情、猎人
func resolveNight(gs *GameState) NightOutcome {
	aliveAtStart := make(map[string]bool, len(gs.Players))
	for _, p := range gs.alivePlayers() {
		aliveAtStart[p.ID] = true
	}

	var out NightOutcome
	out.LoversLinked = linkLovers(gs, aliveAtStart)

	out.Kill = tallyKillVotes(gs, aliveAtStart)
	victim := out.Kill.TargetID

	if _, ok := witchAction(gs, aliveAtStart, models.ActionHeal); ok && victim != "" {
		gs.potionsUsed[models.ActionHeal] = true
		out.Healed = true
		victim = ""
	}

	if a, ok := witchAction(gs, aliveAtStart, models.ActionPoison); ok {
		if a.TargetID != a.PlayerID && kill(gs, a.TargetID, models.KilledByPoison, &out.Deaths) {
			gs.potionsUsed[models.ActionPoison] = true
		}
	}

	for _, a := range gs.nightActionsOf(models.ActionSee) {
		if !aliveAtStart[a.PlayerID] || gs.roleOf(a.PlayerID) != models.Seer {
			continue
		}
		target := gs.player(a.TargetID)
		if target == nil || !aliveAtStart[target.ID] || target.ID == a.PlayerID {
			continue
		}
		out.Reveals = append(out.Reveals, SeerReveal{
			SeerID: a.PlayerID,
			Target: models.RoleReveal{PlayerID: target.ID, Name: target.Name, Role: target.Role},
		})
	}

	wolfKilled := ""
	if victim != "" && kill(gs, victim, models.KilledByWerewolf, &out.Deaths) {
		wolfKilled = victim
	}

	if partner := gs.loverOf(wolfKilled); partner != "" {
		kill(gs, partner, models.KilledByLove, &out.Deaths)
	}

	for _, d := range out.Deaths {
		if gs.roleOf(d.PlayerID) == models.Hunter {
			out.Hunters = append(out.Hunters, d.PlayerID)
			gs.grantHunter(d.PlayerID)
		}
	}
	return out
}
