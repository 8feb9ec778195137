package services

import (
	"strings"
	"unicode/utf8"

	"github.com/qianlnk/werewolf-rooms/models"
)

const maxChatLength = 200

// 聊天频道
const (
	ChannelRoom     = "room"
	ChannelWerewolf = "werewolf"
	ChannelSpy      = "spy"
)

// chatRoute 一条聊天消息的投递范围
type chatRoute struct {
	channel    string
	everyone   bool
	recipients []string
	spies      []string // 只读镜像，不显示发送者
}

// routeChat 根据阶段和角色决定聊天消息发给谁，ok 为 false 时丢弃
func routeChat(gs *GameState, senderID string) (chatRoute, bool) {
	sender := gs.player(senderID)
	if sender == nil {
		return chatRoute{}, false
	}

	switch gs.Phase {
	case models.PhaseLobby, models.PhaseEnded:
		return chatRoute{channel: ChannelRoom, everyone: true}, true

	case models.PhaseNight:
		if !sender.Alive || sender.Role != models.Werewolf {
			return chatRoute{}, false
		}
		return chatRoute{
			channel:    ChannelWerewolf,
			recipients: gs.aliveIDsWithRole(models.Werewolf),
			spies:      gs.aliveIDsWithRole(models.LittleGirl),
		}, true

	default:
		if !sender.Alive {
			return chatRoute{}, false
		}
		return chatRoute{channel: ChannelRoom, everyone: true}, true
	}
}

// cleanChatMessage 去掉首尾空白并截断过长消息
func cleanChatMessage(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	if utf8.RuneCountInString(text) > maxChatLength {
		text = string([]rune(text)[:maxChatLength])
	}
	return text, true
}
