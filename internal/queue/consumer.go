package queue

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/lvdashuaibi/votetracker/config"
	"github.com/lvdashuaibi/votetracker/internal/model"
	"github.com/segmentio/kafka-go"
)

// Consumer 投票意图消费者
// 只使用一个goroutine按到达顺序消费：权重累加必须严格FIFO，
// 处理单条失败不会阻塞后续消息（失败事件在事件源侧保持未完成，等待下一轮拉取重试）
type Consumer struct {
	reader *kafka.Reader
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// IntentHandler 处理一条投票意图
type IntentHandler func(intent *model.VoteIntent) error

func NewConsumer() (*Consumer, error) {
	ctx, cancel := context.WithCancel(context.Background())

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   config.AppConfig.Kafka.Brokers,
		Topic:     config.AppConfig.Kafka.Topic,
		Partition: config.AppConfig.Kafka.Partition,
		MinBytes:  1,
		MaxBytes:  10e6, // 10MB
	})

	return &Consumer{
		reader: reader,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// StartConsuming 启动消费循环
func (c *Consumer) StartConsuming(handler IntentHandler) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.consumeLoop(handler)
	}()

	log.Printf("Kafka投票意图消费者已启动")
}

func (c *Consumer) consumeLoop(handler IntentHandler) {
	for {
		select {
		case <-c.ctx.Done():
			log.Printf("投票意图消费者收到停止信号")
			return
		default:
			m, err := c.reader.ReadMessage(c.ctx)
			if err != nil {
				if err == context.Canceled {
					return
				}
				log.Printf("读取投票意图失败: %v", err)
				time.Sleep(time.Second)
				continue
			}

			var intent model.VoteIntent
			if err := json.Unmarshal(m.Value, &intent); err != nil {
				log.Printf("解析投票意图失败（偏移量 %d）: %v", m.Offset, err)
				continue
			}

			if err := handler(&intent); err != nil {
				log.Printf("处理投票意图 %s 失败: %v", intent.EventID, err)
			}
		}
	}
}

// Stop 停止消费并关闭reader
func (c *Consumer) Stop() error {
	c.cancel()
	c.wg.Wait()

	if err := c.reader.Close(); err != nil {
		log.Printf("关闭消费者失败: %v", err)
		return err
	}

	log.Println("投票意图消费者已停止")
	return nil
}
