package services

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qianlnk/werewolf-rooms/models"
)

func countRoles(roles []models.Role) map[models.Role]int {
	counts := make(map[models.Role]int)
	for _, r := range roles {
		counts[r]++
	}
	return counts
}

func TestGenerateRoles_AutoBalance(t *testing.T) {
	for n := 4; n <= 12; n++ {
		roles, err := generateRoles(n, 4, models.RoleConfig{Mode: models.AutoBalance})
		require.NoError(t, err, "n=%d", n)
		require.Len(t, roles, n)

		counts := countRoles(roles)
		assert.GreaterOrEqual(t, counts[models.Werewolf], 1, "n=%d", n)
		assert.Less(t, counts[models.Werewolf], ceilHalf(n), "n=%d", n)
		assert.Equal(t, 1, counts[models.Seer], "n=%d", n)
		for role, c := range counts {
			if role != models.Villager && role != models.Werewolf {
				assert.Equal(t, 1, c, "n=%d role=%s", n, role)
			}
		}
	}
}

func TestGenerateRoles_Progression(t *testing.T) {
	roles, err := generateRoles(8, 4, models.RoleConfig{Mode: models.AutoBalance})
	require.NoError(t, err)

	want := map[models.Role]int{
		models.Werewolf:   1,
		models.Seer:       1,
		models.Witch:      1,
		models.Hunter:     1,
		models.Cupid:      1,
		models.LittleGirl: 1,
		models.Villager:   2,
	}
	if diff := cmp.Diff(want, countRoles(roles)); diff != "" {
		t.Errorf("8人自动配置不符 (-want +got):\n%s", diff)
	}

	roles, err = generateRoles(9, 4, models.RoleConfig{Mode: models.AutoBalance})
	require.NoError(t, err)
	assert.Equal(t, 2, countRoles(roles)[models.Werewolf])
}

func TestGenerateRoles_NotEnoughPlayers(t *testing.T) {
	_, err := generateRoles(3, 4, models.RoleConfig{Mode: models.AutoBalance})
	assert.ErrorIs(t, err, ErrNotEnoughPlayers)
}

func TestValidateRoleConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     models.RoleConfig
		players int
		wantErr bool
	}{
		{"auto ignored", models.RoleConfig{Mode: models.AutoBalance}, 4, false},
		{"valid manual", models.RoleConfig{Mode: models.ManualRoles, Werewolves: 2, Seer: true, Witch: true}, 6, false},
		{"no werewolf", models.RoleConfig{Mode: models.ManualRoles, Seer: true}, 6, true},
		{"wolves at half", models.RoleConfig{Mode: models.ManualRoles, Werewolves: 3}, 6, true},
		{"wolves at half odd", models.RoleConfig{Mode: models.ManualRoles, Werewolves: 3}, 5, true},
		{"too many specials", models.RoleConfig{Mode: models.ManualRoles, Werewolves: 1, Seer: true, Witch: true, Hunter: true, Cupid: true}, 4, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRoleConfig(tt.cfg, tt.players)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRoleConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestGenerateRoles_ManualFillsVillagers(t *testing.T) {
	cfg := models.RoleConfig{Mode: models.ManualRoles, Werewolves: 2, Seer: true, Hunter: true}
	roles, err := generateRoles(7, 4, cfg)
	require.NoError(t, err)

	counts := countRoles(roles)
	assert.Equal(t, 2, counts[models.Werewolf])
	assert.Equal(t, 1, counts[models.Seer])
	assert.Equal(t, 1, counts[models.Hunter])
	assert.Equal(t, 3, counts[models.Villager])
	assert.Zero(t, counts[models.Witch])
}

func TestAssignRoles_Bijection(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e", "f", "g"}
	rng := rand.New(rand.NewSource(42))

	assigned, err := assignRoles(rng, ids, models.RoleConfig{Mode: models.AutoBalance}, 4)
	require.NoError(t, err)
	require.Len(t, assigned, len(ids))

	got := make([]models.Role, 0, len(ids))
	for _, id := range ids {
		role, ok := assigned[id]
		require.True(t, ok, "玩家 %s 没有角色", id)
		got = append(got, role)
	}
	want := autoBalanceRoles(len(ids))
	for len(want) < len(ids) {
		want = append(want, models.Villager)
	}

	less := func(s []models.Role) func(i, j int) bool {
		return func(i, j int) bool { return s[i] < s[j] }
	}
	sort.Slice(got, less(got))
	sort.Slice(want, less(want))
	assert.Equal(t, want, got)
}

func TestCanPerform(t *testing.T) {
	tests := []struct {
		role  models.Role
		phase models.Phase
		kind  models.ActionKind
		round int
		want  bool
	}{
		{models.Werewolf, models.PhaseNight, models.ActionKill, 1, true},
		{models.Werewolf, models.PhaseDay, models.ActionKill, 1, false},
		{models.Seer, models.PhaseNight, models.ActionSee, 3, true},
		{models.Seer, models.PhaseNight, models.ActionKill, 1, false},
		{models.Witch, models.PhaseNight, models.ActionHeal, 2, true},
		{models.Witch, models.PhaseNight, models.ActionPoison, 2, true},
		{models.Cupid, models.PhaseNight, models.ActionLink, 1, true},
		{models.Cupid, models.PhaseNight, models.ActionLink, 2, false},
		{models.Villager, models.PhaseNight, models.ActionSee, 1, false},
		{models.LittleGirl, models.PhaseNight, models.ActionKill, 1, false},
	}

	for _, tt := range tests {
		got := canPerform(tt.role, tt.phase, tt.kind, tt.round)
		assert.Equal(t, tt.want, got, "%s %s %s round=%d", tt.role, tt.phase, tt.kind, tt.round)
	}
}
