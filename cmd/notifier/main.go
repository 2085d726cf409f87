package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"diarylink/internal/config"
	appKafka "diarylink/internal/kafka"
	kafkaHandlers "diarylink/internal/kafka/handlers"
	"diarylink/internal/storage"
)

// notifier 消费关系事件并推送通知。独立进程，崩溃或重启不影响 API 服务器。
func main() {
	// 1. 加载配置
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("无法加载配置: %v", err)
	}
	log.Println("Notifier 配置加载成功。")

	// 2. 初始化数据库连接 (只读，用于解析用户显示名)
	db, err := storage.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("无法初始化数据库: %v", err)
	}
	log.Println("Notifier 数据库连接成功。")

	userRepo := storage.NewGormUserRepository(db)

	// 3. 初始化事件处理器
	eventHandler := kafkaHandlers.NewRelationshipEventHandler(userRepo, kafkaHandlers.LogPushSender{})

	// 4. 初始化并启动 Kafka 消费者
	consumer, err := appKafka.NewConfluentKafkaConsumer(cfg.Kafka)
	if err != nil {
		log.Fatalf("无法创建关系事件 Kafka 消费者: %v", err)
	}
	defer consumer.Close()

	consumerCtx, cancelConsumer := context.WithCancel(context.Background())
	defer cancelConsumer()

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		topics := []string{cfg.Kafka.RelationshipEventsTopic}
		log.Printf("关系事件消费者启动，监听 topic: %s, GroupID: %s", cfg.Kafka.RelationshipEventsTopic, cfg.Kafka.NotifierConsumerGroup)
		err := consumer.Consume(consumerCtx, topics, cfg.Kafka.NotifierConsumerGroup, eventHandler.HandleMessage)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("关系事件消费者错误: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Println("收到关闭信号，正在关闭 Notifier...")
		cancelConsumer()
		<-consumerDone
	case <-consumerDone:
		log.Println("消费者循环已退出。")
	}

	log.Println("Notifier 已成功关闭")
}
