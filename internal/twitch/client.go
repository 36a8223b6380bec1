package twitch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/lvdashuaibi/votetracker/config"
)

const helixRedemptionsURL = "https://api.twitch.tv/helix/channel_points/custom_rewards/redemptions"
const helixChatMessagesURL = "https://api.twitch.tv/helix/chat/messages"

// Redemption 事件源返回的一次兑换
type Redemption struct {
	ID        string `json:"id"`
	UserName  string `json:"user_name"`
	UserInput string `json:"user_input"`
}

// Client Twitch Helix客户端
// 凭证从配置读取，OAuth流程由外部负责
type Client struct {
	httpClient    *http.Client
	clientID      string
	accessToken   string
	broadcasterID string

	mu             sync.Mutex
	invalidRewards map[string]struct{} // 返回过403的Reward ID，进程生命周期内不再轮询
}

func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		clientID:       config.AppConfig.Twitch.ClientID,
		accessToken:    config.AppConfig.Twitch.AccessToken,
		broadcasterID:  config.AppConfig.Twitch.BroadcasterID,
		invalidRewards: make(map[string]struct{}),
	}
}

func (c *Client) setAuthHeaders(req *http.Request) {
	req.Header.Set("Client-Id", c.clientID)
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
}

// isRewardInvalid 判断Reward是否已被拉黑
func (c *Client) isRewardInvalid(rewardID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.invalidRewards[rewardID]
	return ok
}

func (c *Client) markRewardInvalid(rewardID string) {
	c.mu.Lock()
	c.invalidRewards[rewardID] = struct{}{}
	c.mu.Unlock()
}

// PollRedemptions 拉取某个Reward下未完成的兑换
func (c *Client) PollRedemptions(ctx context.Context, rewardID string) ([]Redemption, error) {
	if c.isRewardInvalid(rewardID) {
		return nil, nil
	}

	params := url.Values{}
	params.Set("broadcaster_id", c.broadcasterID)
	params.Set("reward_id", rewardID)
	params.Set("status", "UNFULFILLED")
	params.Set("first", "20")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, helixRedemptionsURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("构造兑换查询请求失败: %w", err)
	}
	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("查询兑换失败: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var body struct {
			Data []Redemption `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("解析兑换响应失败: %w", err)
		}
		return body.Data, nil
	case http.StatusForbidden:
		// 该Reward无权限，本进程内不再重试
		c.markRewardInvalid(rewardID)
		return nil, nil
	default:
		return nil, fmt.Errorf("查询兑换返回异常状态码: %d", resp.StatusCode)
	}
}

// FulfillRedemption 把兑换标记为已完成
// 事件源已把它标记为FULFILLED/CANCELED的情况视为成功
func (c *Client) FulfillRedemption(ctx context.Context, rewardID, redemptionID string) error {
	params := url.Values{}
	params.Set("broadcaster_id", c.broadcasterID)
	params.Set("reward_id", rewardID)
	params.Set("id", redemptionID)

	payload := []byte(`{"status":"FULFILLED"}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, helixRedemptionsURL+"?"+params.Encode(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("构造兑换完成请求失败: %w", err)
	}
	c.setAuthHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("标记兑换完成失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusBadRequest && strings.Contains(string(body), "redemption is already") {
		return nil
	}

	return fmt.Errorf("标记兑换 %s 完成返回异常状态码: %d", redemptionID, resp.StatusCode)
}

// SendChatMessage 向聊天频道发送一条消息
// 发送失败由调用方记录日志，不重试
func (c *Client) SendChatMessage(ctx context.Context, message string) error {
	payload, err := json.Marshal(map[string]string{
		"broadcaster_id": c.broadcasterID,
		"sender_id":      c.broadcasterID,
		"message":        message,
	})
	if err != nil {
		return fmt.Errorf("序列化聊天消息失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, helixChatMessagesURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("构造聊天消息请求失败: %w", err)
	}
	c.setAuthHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("发送聊天消息失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("发送聊天消息返回异常状态码: %d", resp.StatusCode)
	}

	return nil
}
