package services

import (
	"sync"
	"time"
)

// TickerCreator 创建周期性 ticker，返回 tick 通道和释放函数
type TickerCreator interface {
	Create(d time.Duration) (<-chan time.Time, func())
}

type systemTicker struct{}

// NewTickerCreator 基于 time.Ticker 的实现
func NewTickerCreator() TickerCreator {
	return systemTicker{}
}

func (systemTicker) Create(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// PhaseTimer 房间倒计时，每秒把 tick 投递给房间，自身不修改任何房间状态
type PhaseTimer struct {
	cancel chan struct{}
	done   chan struct{}
	once   sync.Once
}

// startPhaseTimer 启动倒计时协程
func startPhaseTimer(tc TickerCreator, onTick func()) *PhaseTimer {
	ticks, release := tc.Create(time.Second)
	pt := &PhaseTimer{
		cancel: make(chan struct{}),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(pt.done)
		defer release()
		for {
			select {
			case <-pt.cancel:
				return
			case <-ticks:
				select {
				case <-pt.cancel:
					return
				default:
				}
				onTick()
			}
		}
	}()
	return pt
}

// Stop 取消倒计时，可重复调用
func (pt *PhaseTimer) Stop() {
	pt.once.Do(func() { close(pt.cancel) })
}

// Wait 等待倒计时协程退出，不能在 onTick 内调用
func (pt *PhaseTimer) Wait() {
	<-pt.done
}
