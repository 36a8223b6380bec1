package twitch

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/lvdashuaibi/votetracker/config"
	"github.com/lvdashuaibi/votetracker/internal/model"
)

// RedemptionSource 兑换事件来源
type RedemptionSource interface {
	PollRedemptions(ctx context.Context, rewardID string) ([]Redemption, error)
}

// IntentSink 投票意图的下游队列
type IntentSink interface {
	SendVoteIntent(intent *model.VoteIntent) error
}

// ProcessedSet 已处理事件ID集合
type ProcessedSet interface {
	Contains(id string) bool
}

// Listener 事件接入循环
// 按固定间隔轮询各档位Reward的未完成兑换，
// 已处理过的事件ID在入队前丢弃，这是防止重复计票的唯一关卡
type Listener struct {
	source    RedemptionSource
	sink      IntentSink
	processed ProcessedSet

	interval time.Duration
	rewards  []rewardBinding

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type rewardBinding struct {
	kind     model.VoteKind
	rewardID string
}

// NewListener 创建事件接入循环，只绑定配置了Reward ID的档位
func NewListener(source RedemptionSource, sink IntentSink, processed ProcessedSet) *Listener {
	var rewards []rewardBinding
	if id := config.AppConfig.Twitch.NormalRewardID; id != "" {
		rewards = append(rewards, rewardBinding{kind: model.VoteKindNormal, rewardID: id})
	}
	if id := config.AppConfig.Twitch.SuperRewardID; id != "" {
		rewards = append(rewards, rewardBinding{kind: model.VoteKindSuper, rewardID: id})
	}
	if id := config.AppConfig.Twitch.UltraRewardID; id != "" {
		rewards = append(rewards, rewardBinding{kind: model.VoteKindUltra, rewardID: id})
	}

	return &Listener{
		source:    source,
		sink:      sink,
		processed: processed,
		interval:  config.AppConfig.Twitch.PollInterval,
		rewards:   rewards,
	}
}

// Start 启动轮询
func (l *Listener) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.pollLoop(ctx)
	}()

	log.Printf("兑换事件轮询已启动，间隔: %v，监听档位数: %d", l.interval, len(l.rewards))
}

func (l *Listener) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("兑换事件轮询已停止")
			return
		case <-ticker.C:
			l.PollOnce(ctx)
		}
	}
}

// PollOnce 执行一轮拉取并入队
func (l *Listener) PollOnce(ctx context.Context) {
	for _, binding := range l.rewards {
		redemptions, err := l.source.PollRedemptions(ctx, binding.rewardID)
		if err != nil {
			log.Printf("拉取档位 %s 兑换失败: %v", binding.kind, err)
			continue
		}

		for _, redemption := range redemptions {
			// 重复投递的事件在这里丢弃，不进入队列
			if l.processed.Contains(redemption.ID) {
				continue
			}

			// 空输入也要入队，由处理端记录为无效并确认事件，
			// 在这里丢弃会让它在事件源永远保持未完成、每轮都被重新拉到
			rawText := strings.TrimSpace(redemption.UserInput)

			intent := &model.VoteIntent{
				EventID:  redemption.ID,
				RewardID: binding.rewardID,
				User:     redemption.UserName,
				RawText:  rawText,
				Kind:     binding.kind,
				SeenAt:   time.Now(),
			}

			if err := l.sink.SendVoteIntent(intent); err != nil {
				// 入队失败不记为已处理，事件源会再次投递
				log.Printf("投票意图 %s 入队失败: %v", intent.EventID, err)
				continue
			}

			log.Printf("[%s] 收到 %s 的投票: %s", binding.kind, redemption.UserName, rawText)
		}
	}
}

// Stop 停止轮询
func (l *Listener) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
}
