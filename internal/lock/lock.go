package lock

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lvdashuaibi/votetracker/config"
)

// Lock 分布式锁接口
// 用于多实例部署时选出唯一的同步推送实例
type Lock interface {
	// AcquireLock 获取分布式锁
	// 返回值：bool表示是否成功获取锁，error表示获取过程中的错误
	AcquireLock(lockName string, timeout time.Duration) (bool, error)

	// RefreshLock 刷新锁的过期时间
	RefreshLock(lockName string, timeout time.Duration) (bool, error)

	// ReleaseLock 释放分布式锁
	ReleaseLock(lockName string) error

	// ReleaseAllLocks 释放所有持有的锁
	ReleaseAllLocks()

	// Close 关闭分布式锁客户端
	Close() error
}

// KeepRefreshed 以TTL三分之一的周期刷新已持有的锁，返回停止函数
// redis实现的锁靠SetNX过期时间维持，不续期会在TTL后被其它实例抢走；
// 刷新失败说明锁已丢失，循环退出，持有权交给下一次选举
func KeepRefreshed(l Lock, lockName string, ttl time.Duration) func() {
	stopChan := make(chan struct{})
	var stopOnce sync.Once
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()

		for {
			select {
			case <-stopChan:
				return
			case <-ticker.C:
				ok, err := l.RefreshLock(lockName, ttl)
				if err != nil || !ok {
					log.Printf("刷新锁 %s 失败（ok=%v）: %v", lockName, ok, err)
					return
				}
			}
		}
	}()

	return func() {
		stopOnce.Do(func() { close(stopChan) })
		wg.Wait()
	}
}

// New 按配置创建分布式锁实现，支持etcd和redis两种
func New() (Lock, error) {
	switch config.AppConfig.Lock.Type {
	case "", "etcd":
		return NewETCDLock()
	case "redis":
		return NewRedLock()
	default:
		return nil, fmt.Errorf("未知的锁类型: %s", config.AppConfig.Lock.Type)
	}
}
