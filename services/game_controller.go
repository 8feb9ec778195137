package services

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/qianlnk/werewolf-rooms/config"
	"github.com/qianlnk/werewolf-rooms/models"
)

var (
	ErrNotHost        = errors.New("只有房主可以执行该操作")
	ErrGameInProgress = errors.New("游戏正在进行中")
	ErrInvalidName    = errors.New("玩家名称无效")
)

const maxNameLength = 20

// Notifier 消息投递，由传输层实现
type Notifier interface {
	SendToPlayer(playerID string, message interface{}) error
	BroadcastToRoom(roomID string, message interface{})
	JoinRoom(roomID, playerID string)
	LeaveRoom(roomID, playerID string)
}

// GameController 单个房间的流程控制器，房间内所有修改都在 mutex 内串行执行
type GameController struct {
	game         *GameState
	stateMachine *StateMachine
	notifier     Notifier
	rules        config.GameConfig
	tickers      TickerCreator
	timer        *PhaseTimer
	rng          *rand.Rand
	onClose      func(roomID string)
	closed       bool
	logger       zerolog.Logger
	mutex        sync.Mutex
}

// NewGameController 创建游戏控制器实例
func NewGameController(game *GameState, notifier Notifier, rules config.GameConfig, tickers TickerCreator) *GameController {
	return &GameController{
		game:         game,
		stateMachine: NewStateMachine(game, rules),
		notifier:     notifier,
		rules:        rules,
		tickers:      tickers,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:       log.With().Str("room", game.RoomID).Logger(),
	}
}

// ID 房间号
func (gc *GameController) ID() string {
	return gc.game.RoomID
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return "", fmt.Errorf("%w: 名称长度需在1到%d个字符之间", ErrInvalidName, maxNameLength)
	}
	return name, nil
}

// Join 玩家加入房间，只能在大厅阶段加入
func (gc *GameController) Join(playerID, name string) error {
	gc.mutex.Lock()
	defer gc.mutex.Unlock()

	if gc.closed {
		return ErrRoomNotFound
	}
	name, err := normalizeName(name)
	if err != nil {
		return err
	}
	if _, exists := gc.game.Players[playerID]; exists {
		return nil
	}
	if gc.game.Phase != models.PhaseLobby {
		return ErrGameInProgress
	}
	if len(gc.game.Players) >= gc.game.MaxPlayers {
		return ErrRoomFull
	}

	gc.game.addPlayer(&models.Player{ID: playerID, Name: name, Alive: true})
	gc.notifier.JoinRoom(gc.game.RoomID, playerID)
	gc.logger.Info().Str("player", playerID).Int("players", len(gc.game.Players)).Msg("玩家加入房间")

	gc.send(playerID, models.NewEvent(models.EventJoinedRoom, gc.viewLocked(playerID)))
	gc.broadcastSnapshot(models.EventRoomUpdate)
	return nil
}

// Leave 玩家离开房间，返回房间是否已经清空并销毁
func (gc *GameController) Leave(playerID string) bool {
	gc.mutex.Lock()
	if gc.closed {
		gc.mutex.Unlock()
		return true
	}
	if _, exists := gc.game.Players[playerID]; !exists {
		gc.mutex.Unlock()
		return false
	}

	gc.game.removePlayer(playerID)
	gc.notifier.LeaveRoom(gc.game.RoomID, playerID)
	gc.logger.Info().Str("player", playerID).Int("players", len(gc.game.Players)).Msg("玩家离开房间")

	if len(gc.game.Players) == 0 {
		gc.closeLocked()
		timer := gc.timer
		gc.mutex.Unlock()
		if timer != nil {
			timer.Wait()
		}
		return true
	}
	defer gc.mutex.Unlock()

	if winner, ok := gc.stateMachine.End(); ok {
		gc.announceEnd(winner)
		return false
	}
	gc.checkQuorumLocked()
	gc.broadcastSnapshot(models.EventRoomUpdate)
	return false
}

// Close 销毁房间，同步取消倒计时
func (gc *GameController) Close() {
	gc.mutex.Lock()
	gc.closeLocked()
	timer := gc.timer
	gc.mutex.Unlock()

	if timer != nil {
		timer.Wait()
	}
}

func (gc *GameController) closeLocked() {
	if gc.closed {
		return
	}
	gc.closed = true
	gc.game.TimerRunning = false
	for _, id := range gc.game.playerIDs() {
		gc.notifier.LeaveRoom(gc.game.RoomID, id)
	}
	if gc.timer != nil {
		gc.timer.Stop()
	}
	if gc.onClose != nil {
		gc.onClose(gc.game.RoomID)
	}
	gc.logger.Info().Msg("房间已销毁")
}

// teardownLocked 内部状态不一致时关闭房间，不让房间停留在错误状态
func (gc *GameController) teardownLocked(cause interface{}) {
	event := gc.logger.Error()
	if err, ok := cause.(error); ok {
		event = event.Err(err)
	} else {
		event = event.Str("cause", fmt.Sprint(cause))
	}
	event.Str("phase", string(gc.game.Phase)).Int("round", gc.game.Round).Msg("房间状态异常，关闭房间")
	gc.notifier.BroadcastToRoom(gc.game.RoomID, models.NewEvent(models.EventRoomClosed, models.ErrorMessage{Message: "房间出现内部错误，已关闭"}))
	gc.closeLocked()
}

// ConfigureRoles 房主在大厅设置角色配置
func (gc *GameController) ConfigureRoles(playerID string, cfg models.RoleConfig) error {
	gc.mutex.Lock()
	defer gc.mutex.Unlock()

	if gc.closed {
		return ErrRoomNotFound
	}
	if gc.game.HostID != playerID {
		return ErrNotHost
	}
	if gc.game.Phase != models.PhaseLobby {
		return ErrGameInProgress
	}

	switch cfg.Mode {
	case models.ManualRoles:
		if cfg.Werewolves < 1 {
			return fmt.Errorf("%w: 至少需要1个狼人", ErrInvalidRoleConfig)
		}
		if cfg.SpecialCount() > gc.game.MaxPlayers {
			return fmt.Errorf("%w: 特殊角色数量超过房间容量", ErrInvalidRoleConfig)
		}
	default:
		cfg = models.RoleConfig{Mode: models.AutoBalance}
	}

	gc.game.RoleConfig = cfg
	gc.broadcastSnapshot(models.EventRoomUpdate)
	return nil
}

// StartGame 房主开始游戏，分配角色并进入第一个夜晚
func (gc *GameController) StartGame(playerID string) error {
	gc.mutex.Lock()
	defer gc.mutex.Unlock()

	if gc.closed {
		return ErrRoomNotFound
	}
	if gc.game.HostID != playerID {
		return ErrNotHost
	}
	if gc.game.Phase != models.PhaseLobby {
		return ErrGameInProgress
	}

	roles, err := assignRoles(gc.rng, gc.game.playerIDs(), gc.game.RoleConfig, gc.rules.MinPlayers)
	if err != nil {
		return err
	}
	if err := gc.stateMachine.Start(roles); err != nil {
		gc.teardownLocked(err)
		return err
	}

	snapshot := gc.game.snapshot()
	for _, id := range gc.game.playerIDs() {
		gc.send(id, models.NewEvent(models.EventRoleAssigned, models.RoleAssignment{Role: roles[id], GameInfo: snapshot}))
	}
	gc.broadcastSnapshot(models.EventGameStarted)

	if gc.tickers != nil {
		gc.timer = startPhaseTimer(gc.tickers, gc.Tick)
	}
	gc.logger.Info().Int("players", len(roles)).Msg("游戏开始")
	return nil
}

// ProcessAction 处理玩家的夜晚技能或猎人开枪，不合法的动作直接忽略
func (gc *GameController) ProcessAction(action models.GameAction) {
	gc.mutex.Lock()
	defer gc.mutex.Unlock()

	if gc.closed {
		return
	}
	action.RoomID = gc.game.RoomID
	action.Timestamp = time.Now().Unix()

	switch action.Type {
	case models.ActionKill:
		gc.submitKillVote(action.PlayerID, action.TargetID)
	case models.ActionShoot:
		gc.hunterShoot(action.PlayerID, action.TargetID)
	default:
		gc.submitNightAction(action)
	}
}

func (gc *GameController) drop(playerID, reason string) {
	gc.logger.Debug().Str("player", playerID).Str("phase", string(gc.game.Phase)).Msg("忽略动作: " + reason)
}

// validTarget 目标必须存活且不是自己
func (gc *GameController) validTarget(actorID, targetID string) bool {
	return targetID != actorID && gc.game.isAlive(targetID)
}

func (gc *GameController) submitNightAction(action models.GameAction) {
	gs := gc.game
	actor := gs.player(action.PlayerID)
	if actor == nil || !actor.Alive {
		gc.drop(action.PlayerID, "行动者不存在或已死亡")
		return
	}
	if !canPerform(actor.Role, gs.Phase, action.Type, gs.Round) {
		gc.drop(action.PlayerID, "当前阶段或角色不能执行 "+string(action.Type))
		return
	}

	switch action.Type {
	case models.ActionSee:
		if !gc.validTarget(actor.ID, action.TargetID) {
			gc.drop(actor.ID, "查验目标无效")
			return
		}
	case models.ActionHeal:
		if gs.potionsUsed[models.ActionHeal] {
			gc.drop(actor.ID, "解药已用完")
			return
		}
		action.TargetID = ""
	case models.ActionPoison:
		if gs.potionsUsed[models.ActionPoison] || !gc.validTarget(actor.ID, action.TargetID) {
			gc.drop(actor.ID, "毒药已用完或目标无效")
			return
		}
	case models.ActionLink:
		targets := action.Targets()
		if len(gs.Lovers) != 0 || len(targets) != 2 || targets[0] == targets[1] ||
			!gs.isAlive(targets[0]) || !gs.isAlive(targets[1]) {
			gc.drop(actor.ID, "情侣目标无效")
			return
		}
		action.TargetIDs = []string{targets[0], targets[1]}
	}

	gs.recordNightAction(action)
	gc.checkQuorumLocked()
}

func (gc *GameController) submitKillVote(wolfID, targetID string) {
	gs := gc.game
	wolf := gs.player(wolfID)
	if gs.Phase != models.PhaseNight || wolf == nil || !wolf.Alive || wolf.Role != models.Werewolf {
		gc.drop(wolfID, "不能投票杀人")
		return
	}
	if !gc.validTarget(wolfID, targetID) || gs.roleOf(targetID) == models.Werewolf {
		gc.drop(wolfID, "击杀目标无效")
		return
	}

	gs.recordKillVote(wolfID, targetID)
	votes := make(map[string]string, len(gs.KillVotes))
	for w, t := range gs.KillVotes {
		votes[w] = t
	}
	gc.sendMany(gs.aliveIDsWithRole(models.Werewolf), models.NewEvent(models.EventWerewolfVotes, models.WerewolfVotes{Votes: votes}))
	gc.checkQuorumLocked()
}

// SelectTarget 狼人的临时选择，只用于同伴之间展示，不影响结算
func (gc *GameController) SelectTarget(wolfID, targetID string) {
	gc.mutex.Lock()
	defer gc.mutex.Unlock()

	gs := gc.game
	wolf := gs.player(wolfID)
	if gc.closed || gs.Phase != models.PhaseNight || wolf == nil || !wolf.Alive || wolf.Role != models.Werewolf {
		return
	}
	if !gs.isAlive(targetID) {
		return
	}
	gc.sendMany(gs.aliveIDsWithRole(models.Werewolf), models.NewEvent(models.EventWerewolfSelect, models.WerewolfSelection{WerewolfID: wolfID, TargetID: targetID}))
}

// SubmitVote 投票阶段投票，结束前可以改票
func (gc *GameController) SubmitVote(voterID, targetID string) {
	gc.mutex.Lock()
	defer gc.mutex.Unlock()

	gs := gc.game
	if gc.closed || gs.Phase != models.PhaseVote {
		gc.drop(voterID, "不在投票阶段")
		return
	}
	if !gs.isAlive(voterID) || !gc.validTarget(voterID, targetID) {
		gc.drop(voterID, "投票者或目标无效")
		return
	}

	gs.recordVote(voterID, targetID)
	gc.broadcast(models.NewEvent(models.EventVoteUpdate, models.VoteUpdate{VoterID: voterID, TargetID: targetID, VoteCount: len(gs.Votes)}))
	gc.checkQuorumLocked()
}

// SubmitReady 大厅中切换准备状态；白天表示可以提前投票；夜晚表示放弃行动
func (gc *GameController) SubmitReady(playerID string) {
	gc.mutex.Lock()
	defer gc.mutex.Unlock()

	gs := gc.game
	p := gs.player(playerID)
	if gc.closed || p == nil {
		return
	}

	switch gs.Phase {
	case models.PhaseLobby:
		p.Ready = !p.Ready
		gc.broadcastSnapshot(models.EventRoomUpdate)
	case models.PhaseDay:
		if !p.Alive {
			return
		}
		p.Ready = true
		gs.Confirmed[playerID] = true
		gc.broadcastSnapshot(models.EventRoomUpdate)
		gc.checkQuorumLocked()
	case models.PhaseNight:
		if !p.Alive || !gs.owesNightAction(p) {
			return
		}
		gs.Confirmed[playerID] = true
		gc.checkQuorumLocked()
	default:
		gc.drop(playerID, "当前阶段不能准备")
	}
}

func (gc *GameController) hunterShoot(hunterID, targetID string) {
	gs := gc.game
	hunter := gs.player(hunterID)
	if !gs.Phase.Timed() || hunter == nil || hunter.Alive || hunter.Role != models.Hunter || !gs.hunterCanShoot(hunterID) {
		gc.drop(hunterID, "没有开枪权")
		return
	}
	if !gc.validTarget(hunterID, targetID) {
		gc.drop(hunterID, "开枪目标无效")
		return
	}

	delete(gs.pendingHunter, hunterID)
	var deaths []models.Death
	kill(gs, targetID, models.KilledByHunter, &deaths)
	gc.broadcast(models.NewEvent(models.EventHunterShot, deaths[0]))
	gc.logger.Info().Str("player", hunterID).Str("target", targetID).Msg("猎人开枪")

	if winner, ok := gc.stateMachine.End(); ok {
		gc.announceEnd(winner)
		return
	}
	if gs.roleOf(targetID) == models.Hunter {
		gs.grantHunter(targetID)
		gc.promptHunter(targetID)
	}
	gc.checkQuorumLocked()
	gc.broadcastSnapshot(models.EventRoomUpdate)
}

// SendChat 按阶段和角色路由聊天消息
func (gc *GameController) SendChat(playerID, text string) {
	gc.mutex.Lock()
	defer gc.mutex.Unlock()

	if gc.closed {
		return
	}
	text, ok := cleanChatMessage(text)
	if !ok {
		return
	}
	route, ok := routeChat(gc.game, playerID)
	if !ok {
		gc.drop(playerID, "当前不能发言")
		return
	}

	sender := gc.game.player(playerID)
	msg := models.ChatMessage{
		PlayerID:   sender.ID,
		PlayerName: sender.Name,
		Message:    text,
		Channel:    route.channel,
		Timestamp:  time.Now().UnixMilli(),
	}
	if route.everyone {
		gc.broadcast(models.NewEvent(models.EventChat, msg))
		return
	}
	gc.sendMany(route.recipients, models.NewEvent(models.EventChat, msg))
	gc.sendMany(route.spies, models.NewEvent(models.EventChat, models.ChatMessage{
		Message:   text,
		Channel:   ChannelSpy,
		Timestamp: msg.Timestamp,
	}))
}

// Tick 每秒调用一次，倒计时到0时推进阶段
func (gc *GameController) Tick() {
	gc.mutex.Lock()
	defer gc.mutex.Unlock()

	if gc.closed || !gc.game.TimerRunning {
		return
	}
	if gc.game.TimeLeft > 0 {
		gc.game.TimeLeft--
	}
	gc.broadcast(models.NewEvent(models.EventTimerUpdate, models.TimerUpdate{TimeRemaining: gc.game.TimeLeft, Phase: gc.game.Phase}))

	if gc.game.TimeLeft <= 0 {
		gc.advanceLocked()
	}
}

// checkQuorumLocked 确认人数达到要求时把剩余时间缩短到加速时长，每个阶段只加速一次
func (gc *GameController) checkQuorumLocked() {
	gs := gc.game
	if !gs.Phase.Timed() || !gs.TimerRunning || gs.accelerated {
		return
	}
	expected := gs.expectedActions(gc.rules.DayQuorumRatio)
	if expected == 0 || gs.confirmedActions() < expected {
		return
	}

	gs.accelerated = true
	if gs.TimeLeft > gc.rules.AccelerateSeconds {
		gs.TimeLeft = gc.rules.AccelerateSeconds
	}
	gc.logger.Debug().Str("phase", string(gs.Phase)).Int("time_left", gs.TimeLeft).Msg("阶段加速")
	gc.broadcast(models.NewEvent(models.EventPhaseAccelerated, models.TimerUpdate{TimeRemaining: gs.TimeLeft, Phase: gs.Phase}))
}

// advanceLocked 推进阶段，结算出错或 panic 时关闭房间
func (gc *GameController) advanceLocked() {
	defer func() {
		if r := recover(); r != nil {
			gc.teardownLocked(r)
		}
	}()

	tr, err := gc.stateMachine.Advance()
	if err != nil {
		gc.teardownLocked(err)
		return
	}
	gc.logger.Info().Str("from", string(tr.From)).Str("to", string(tr.To)).Int("round", gc.game.Round).Msg("阶段切换")
	gc.announceTransition(tr)
}

func (gc *GameController) announceTransition(tr Transition) {
	var hunters []string
	if tr.Night != nil {
		gc.announceNight(*tr.Night)
		hunters = append(hunters, tr.Night.Hunters...)
	}
	if tr.Vote != nil {
		gc.announceVote(*tr.Vote)
		if tr.Vote.Hunter {
			hunters = append(hunters, tr.Vote.Eliminated.PlayerID)
		}
	}

	if tr.To == models.PhaseEnded {
		gc.announceEnd(tr.Winner)
		return
	}
	gc.broadcastSnapshot(models.EventPhaseChanged)
	for _, id := range hunters {
		gc.promptHunter(id)
	}
}

func (gc *GameController) announceNight(o NightOutcome) {
	gs := gc.game
	if o.LoversLinked {
		for _, id := range gs.Lovers {
			partner := gs.player(gs.loverOf(id))
			gc.send(id, models.NewEvent(models.EventLoversLinked, models.LoverNotice{PartnerID: partner.ID, PartnerName: partner.Name}))
		}
	}

	result := models.WerewolfResult{TargetID: o.Kill.TargetID, NoKill: o.Kill.TargetID == "", Votes: o.Kill.Votes}
	if p := gs.player(o.Kill.TargetID); p != nil {
		result.Name = p.Name
	}
	gc.sendMany(gs.aliveIDsWithRole(models.Werewolf), models.NewEvent(models.EventWerewolfResult, result))

	for _, r := range o.Reveals {
		gc.send(r.SeerID, models.NewEvent(models.EventRoleRevealed, r.Target))
	}

	deaths := o.Deaths
	if deaths == nil {
		deaths = []models.Death{}
	}
	gc.broadcast(models.NewEvent(models.EventNightDeaths, models.NightReport{Deaths: deaths, HunterRevenge: o.HunterRevenge()}))
}

func (gc *GameController) announceVote(v VoteOutcome) {
	if v.Eliminated == nil {
		return
	}
	gc.broadcast(models.NewEvent(models.EventPlayerEliminated, models.Elimination{
		PlayerID:      v.Eliminated.PlayerID,
		Name:          v.Eliminated.Name,
		KilledBy:      v.Eliminated.KilledBy,
		Votes:         v.Votes,
		HunterRevenge: v.Hunter,
	}))
}

func (gc *GameController) promptHunter(hunterID string) {
	gc.send(hunterID, models.NewEvent(models.EventHunterRevenge, models.HunterPrompt{HunterID: hunterID, Deadline: gc.game.Phase}))
}

// announceEnd 停止倒计时并公开全部身份
func (gc *GameController) announceEnd(winner models.Faction) {
	if gc.timer != nil {
		gc.timer.Stop()
	}
	gc.logger.Info().Str("winner", string(winner)).Int("round", gc.game.Round).Msg("游戏结束")
	gc.broadcast(models.NewEvent(models.EventGameEnded, models.GameResult{Winner: winner, Players: gc.game.revealedPlayers()}))
}

// Snapshot 房间公开状态
func (gc *GameController) Snapshot() models.RoomSnapshot {
	gc.mutex.Lock()
	defer gc.mutex.Unlock()
	return gc.game.snapshot()
}

// SnapshotFor 某个玩家视角的状态，只包含自己的角色
func (gc *GameController) SnapshotFor(playerID string) models.PlayerView {
	gc.mutex.Lock()
	defer gc.mutex.Unlock()
	return gc.viewLocked(playerID)
}

func (gc *GameController) viewLocked(playerID string) models.PlayerView {
	view := models.PlayerView{RoomSnapshot: gc.game.snapshot(), You: playerID}
	if p := gc.game.player(playerID); p != nil {
		view.YourRole = p.Role
		view.LoverID = gc.game.loverOf(playerID)
	}
	return view
}

// Description 公开房间列表中的信息
func (gc *GameController) Description() models.RoomDescription {
	gc.mutex.Lock()
	defer gc.mutex.Unlock()
	return gc.game.description()
}

func (gc *GameController) send(playerID string, event models.Event) {
	if err := gc.notifier.SendToPlayer(playerID, event); err != nil {
		gc.logger.Debug().Err(err).Str("player", playerID).Str("event", string(event.Type)).Msg("私信发送失败")
	}
}

func (gc *GameController) sendMany(playerIDs []string, event models.Event) {
	for _, id := range playerIDs {
		gc.send(id, event)
	}
}

func (gc *GameController) broadcast(event models.Event) {
	gc.notifier.BroadcastToRoom(gc.game.RoomID, event)
}

func (gc *GameController) broadcastSnapshot(t models.EventType) {
	gc.broadcast(models.NewEvent(t, gc.game.snapshot()))
}
