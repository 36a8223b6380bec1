package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lvdashuaibi/votetracker/config"
	"github.com/lvdashuaibi/votetracker/internal/api/graph"
	"github.com/lvdashuaibi/votetracker/internal/lock"
	"github.com/lvdashuaibi/votetracker/internal/mirror"
	"github.com/lvdashuaibi/votetracker/internal/queue"
	"github.com/lvdashuaibi/votetracker/internal/repository"
	"github.com/lvdashuaibi/votetracker/internal/resolver"
	"github.com/lvdashuaibi/votetracker/internal/service"
	"github.com/lvdashuaibi/votetracker/internal/storage"
	"github.com/lvdashuaibi/votetracker/internal/syncer"
	"github.com/lvdashuaibi/votetracker/internal/twitch"
)

const (
	SyncLeaderLockName = "votetracker:sync:leader:lock"
	LockAcquireTimeout = 30 * time.Second
)

var (
	configPath = flag.String("config", "config/config.yaml", "配置文件路径")
	instanceID = flag.Int("instance", 1, "实例ID，用于区分多个实例")
)

func main() {
	// 解析命令行参数
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	log.Printf("配置加载成功，当前实例ID: %d", *instanceID)

	// 创建数据库连接
	mysqlRepo, err := repository.NewMySQLRepository()
	if err != nil {
		log.Fatalf("初始化MySQL仓库失败: %v", err)
	}
	defer mysqlRepo.Close()
	log.Printf("MySQL仓库初始化成功")

	// 创建Redis连接
	redisRepo, err := repository.NewRedisRepository()
	if err != nil {
		log.Fatalf("初始化Redis仓库失败: %v", err)
	}
	defer redisRepo.Close()
	log.Printf("Redis仓库初始化成功")

	// 创建分布式锁
	distributedLock, err := lock.New()
	if err != nil {
		log.Fatalf("初始化分布式锁失败: %v", err)
	}
	defer distributedLock.Close()
	log.Printf("分布式锁初始化成功，类型: %s", cfg.Lock.Type)

	// 获取同步领导者锁，只有持有者负责镜像推送和启动迁移
	lockAcquired, err := distributedLock.AcquireLock(SyncLeaderLockName, LockAcquireTimeout)
	if err != nil {
		log.Printf("获取同步领导者锁失败: %v，将以非推送模式启动", err)
	}

	var isSyncLeader bool
	if lockAcquired {
		log.Printf("实例 %d 获取同步领导者锁成功，负责镜像推送", *instanceID)
		isSyncLeader = true
		defer distributedLock.ReleaseLock(SyncLeaderLockName)
		// 持续续期，否则redis锁在TTL后过期，第二个实例会同时成为领导者
		stopRefresh := lock.KeepRefreshed(distributedLock, SyncLeaderLockName, LockAcquireTimeout)
		defer stopRefresh()
	} else {
		log.Printf("实例 %d 未获取到同步领导者锁，以普通节点模式启动", *instanceID)
		isSyncLeader = false
	}

	// 加载已处理事件ID集合
	processedStore, err := storage.NewProcessedIDStore(cfg.Storage.ProcessedIDFile)
	if err != nil {
		log.Fatalf("加载已处理事件ID失败: %v", err)
	}
	log.Printf("已处理事件ID加载成功: %d 条", processedStore.Count())

	inaccurateLog := storage.NewInaccurateLog(cfg.Storage.InaccurateFile)

	// 创建游戏名解析器并预热
	gameResolver := resolver.New(cfg.Vote.MinMatchScore, cfg.Vote.CacheValidity)
	if names, err := mysqlRepo.GetGameNames(); err != nil {
		log.Printf("预热游戏名缓存失败: %v", err)
	} else {
		gameResolver.SetNames(names)
		log.Printf("游戏名缓存预热成功: %d 个游戏", gameResolver.Size())
	}

	// 创建Twitch客户端
	twitchClient := twitch.NewClient()
	log.Printf("Twitch客户端初始化成功")

	// 创建Kafka生产者
	producer, err := queue.NewProducer()
	if err != nil {
		log.Fatalf("初始化Kafka生产者失败: %v", err)
	}
	defer producer.Close()
	log.Printf("Kafka生产者初始化成功")

	// 创建Kafka消费者
	consumer, err := queue.NewConsumer()
	if err != nil {
		log.Fatalf("初始化Kafka消费者失败: %v", err)
	}
	log.Printf("Kafka消费者初始化成功")

	// 创建Sheets镜像和同步器
	sheetsMirror, err := mirror.NewSheetsMirror(context.Background())
	if err != nil {
		log.Fatalf("初始化Sheets镜像失败: %v", err)
	}
	syncWorker := syncer.NewWorker(mysqlRepo, sheetsMirror)

	// 启动迁移必须在消费者开始计票之前完成，只有同步领导者执行
	if isSyncLeader {
		migrationCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		if err := syncWorker.RunStartupMigration(migrationCtx, confirmFromStdin); err != nil {
			cancel()
			log.Fatalf("启动迁移失败: %v", err)
		}
		cancel()
	}

	// 创建投票服务
	voteService := service.NewVoteService(
		mysqlRepo, redisRepo, gameResolver,
		twitchClient, twitchClient,
		processedStore, inaccurateLog,
	)
	log.Printf("投票服务初始化成功")

	// 启动Kafka消费者
	consumer.StartConsuming(voteService.ProcessVoteIntent)
	log.Printf("Kafka消费者已启动")

	// 启动兑换事件轮询
	listener := twitch.NewListener(twitchClient, producer, processedStore)
	listener.Start()

	// 启动后台同步器
	if isSyncLeader {
		syncWorker.Start()
	}

	// 打印启动概况
	printStartupStats(mysqlRepo, processedStore)

	// 创建GraphQL服务
	graphqlServer := graph.NewGraphQLServer(voteService)
	log.Printf("GraphQL服务初始化成功")

	// 计算端口，支持多实例
	serverPort := cfg.Server.Port + *instanceID - 1

	// 启动HTTP服务器(异步)
	go func() {
		if err := graphqlServer.Start(serverPort); err != nil {
			log.Fatalf("启动GraphQL服务器失败: %v", err)
		}
	}()

	log.Printf("Vote Tracker 系统 (实例 %d) 已启动，服务地址: http://localhost:%d", *instanceID, serverPort)

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("正在关闭服务...")

	// 关闭顺序：先停事件接入，再停消费，最后让同步器做退出前的推送
	listener.Stop()
	consumer.Stop()
	if isSyncLeader {
		syncWorker.Stop()
	}
	log.Println("服务已关闭")
}

// printStartupStats 打印当前数据概况
func printStartupStats(repo *repository.MySQLRepository, processed *storage.ProcessedIDStore) {
	count, err := repo.CountGames()
	if err != nil {
		log.Printf("查询游戏总数失败: %v", err)
		return
	}
	total, err := repo.TotalVotes()
	if err != nil {
		log.Printf("查询票数总和失败: %v", err)
		return
	}
	history, err := repo.CountHistoryEntries()
	if err != nil {
		log.Printf("查询投票历史条数失败: %v", err)
		return
	}

	lastSync := "从未同步"
	if status, err := repo.GetSyncStatus(); err == nil && status.LastSync != nil {
		lastSync = status.LastSync.Format("2006-01-02 15:04:05")
	}

	log.Printf("当前数据: %d 个游戏，共 %d 票，历史记录 %d 条，已处理事件 %d 条，上次同步: %s",
		count, total, history, processed.Count(), lastSync)
}

// confirmFromStdin 通过标准输入向操作者征求确认
func confirmFromStdin(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
