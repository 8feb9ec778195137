package services

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/qianlnk/werewolf-rooms/models"
)

var (
	ErrNotEnoughPlayers  = errors.New("玩家人数不足")
	ErrInvalidRoleConfig = errors.New("角色配置无效")
)

// nightActionTable 每个角色在夜晚允许的动作
var nightActionTable = map[models.Role][]models.ActionKind{
	models.Werewolf: {models.ActionKill},
	models.Seer:     {models.ActionSee},
	models.Witch:    {models.ActionHeal, models.ActionPoison},
	models.Cupid:    {models.ActionLink},
}

// canPerform 判断角色在指定阶段和回合能否执行该动作
func canPerform(role models.Role, phase models.Phase, kind models.ActionKind, round int) bool {
	if phase != models.PhaseNight {
		return false
	}
	if role == models.Cupid && round != 1 {
		return false
	}
	for _, k := range nightActionTable[role] {
		if k == kind {
			return true
		}
	}
	return false
}

// hasNightDuty 该角色当晚是否需要行动，用于计算夜晚的法定人数
func hasNightDuty(role models.Role, round int) bool {
	switch role {
	case models.Werewolf, models.Seer, models.Witch:
		return true
	case models.Cupid:
		return round == 1
	}
	return false
}

// ceilHalf 返回 ceil(n/2)
func ceilHalf(n int) int {
	return (n + 1) / 2
}

// ValidateRoleConfig 校验手动配置，不会自动修正
func ValidateRoleConfig(cfg models.RoleConfig, playerCount int) error {
	if cfg.Mode != models.ManualRoles {
		return nil
	}
	if cfg.Werewolves < 1 {
		return fmt.Errorf("%w: 至少需要1个狼人", ErrInvalidRoleConfig)
	}
	if cfg.Werewolves >= ceilHalf(playerCount) {
		return fmt.Errorf("%w: %d名玩家最多只能有%d个狼人", ErrInvalidRoleConfig, playerCount, ceilHalf(playerCount)-1)
	}
	if cfg.SpecialCount() > playerCount {
		return fmt.Errorf("%w: 特殊角色数量(%d)超过玩家数量(%d)", ErrInvalidRoleConfig, cfg.SpecialCount(), playerCount)
	}
	return nil
}

// autoBalanceRoles 根据人数生成固定的角色进阶表
func autoBalanceRoles(playerCount int) []models.Role {
	roles := []models.Role{models.Werewolf, models.Seer}
	if playerCount >= 5 {
		roles = append(roles, models.Witch)
	}
	if playerCount >= 6 {
		roles = append(roles, models.Hunter)
	}
	if playerCount >= 7 {
		roles = append(roles, models.Cupid)
	}
	if playerCount >= 8 {
		roles = append(roles, models.LittleGirl)
	}
	if playerCount >= 9 {
		roles = append(roles, models.Werewolf)
	}
	return roles
}

// manualRoles 按房主配置生成特殊角色
func manualRoles(cfg models.RoleConfig) []models.Role {
	roles := make([]models.Role, 0, cfg.SpecialCount())
	for i := 0; i < cfg.Werewolves; i++ {
		roles = append(roles, models.Werewolf)
	}
	toggles := []struct {
		on   bool
		role models.Role
	}{
		{cfg.Seer, models.Seer},
		{cfg.Witch, models.Witch},
		{cfg.Hunter, models.Hunter},
		{cfg.Cupid, models.Cupid},
		{cfg.LittleGirl, models.LittleGirl},
	}
	for _, t := range toggles {
		if t.on {
			roles = append(roles, t.role)
		}
	}
	return roles
}

// generateRoles 生成与玩家数量相同的角色列表，剩余位置补村民
func generateRoles(playerCount, minPlayers int, cfg models.RoleConfig) ([]models.Role, error) {
	if playerCount < minPlayers {
		return nil, fmt.Errorf("%w: 至少需要%d名玩家", ErrNotEnoughPlayers, minPlayers)
	}

	var roles []models.Role
	switch cfg.Mode {
	case models.ManualRoles:
		if err := ValidateRoleConfig(cfg, playerCount); err != nil {
			return nil, err
		}
		roles = manualRoles(cfg)
	default:
		roles = autoBalanceRoles(playerCount)
	}

	for len(roles) < playerCount {
		roles = append(roles, models.Villager)
	}
	return roles, nil
}

// shuffleRoles Fisher-Yates 洗牌
func shuffleRoles(rng *rand.Rand, roles []models.Role) {
	for i := len(roles) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		roles[i], roles[j] = roles[j], roles[i]
	}
}

// assignRoles 洗牌后按位置分配给玩家
func assignRoles(rng *rand.Rand, playerIDs []string, cfg models.RoleConfig, minPlayers int) (map[string]models.Role, error) {
	roles, err := generateRoles(len(playerIDs), minPlayers, cfg)
	if err != nil {
		return nil, err
	}
	shuffleRoles(rng, roles)

	assigned := make(map[string]models.Role, len(playerIDs))
	for i, id := range playerIDs {
		assigned[id] = roles[i]
	}
	return assigned, nil
}
