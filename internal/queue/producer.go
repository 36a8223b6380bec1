package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lvdashuaibi/votetracker/config"
	"github.com/lvdashuaibi/votetracker/internal/model"
	"github.com/segmentio/kafka-go"
)

// Producer 把投票意图写入Kafka
// 主题只使用单分区，保证消费端看到的顺序就是入队顺序
type Producer struct {
	writer *kafka.Writer
	ctx    context.Context
}

func NewProducer() (*Producer, error) {
	ctx := context.Background()

	// 校验主题存在并提示分区数
	conn, err := kafka.DialLeader(ctx, "tcp", config.AppConfig.Kafka.Brokers[0], config.AppConfig.Kafka.Topic, 0)
	if err != nil {
		return nil, fmt.Errorf("连接Kafka失败: %w", err)
	}
	conn.Close()

	writer := &kafka.Writer{
		Addr:     kafka.TCP(config.AppConfig.Kafka.Brokers...),
		Topic:    config.AppConfig.Kafka.Topic,
		Balancer: &kafka.LeastBytes{},
	}

	return &Producer{
		writer: writer,
		ctx:    ctx,
	}, nil
}

// SendVoteIntent 发送一条投票意图
func (p *Producer) SendVoteIntent(intent *model.VoteIntent) error {
	data, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("序列化投票意图失败: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(intent.EventID),
		Value: data,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(p.ctx, msg); err != nil {
		return fmt.Errorf("发送投票意图失败: %w", err)
	}

	return nil
}

// Close 关闭Kafka生产者
func (p *Producer) Close() error {
	return p.writer.Close()
}
