package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"diarylink/internal/config"
	"diarylink/internal/handlers/apiserver"
	"diarylink/internal/handlers/feedserver"
	appKafka "diarylink/internal/kafka"
	"diarylink/internal/middleware"
	"diarylink/internal/notifications"
	appRedis "diarylink/internal/redis"
	"diarylink/internal/services"
	"diarylink/internal/storage"
	"diarylink/internal/websocket"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

func main() {
	// 1. 加载配置
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("无法加载配置: %v", err)
	}
	log.Println("API 服务器配置加载成功。")

	// 2. 初始化数据库连接
	db, err := storage.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("无法初始化数据库: %v", err)
	}
	log.Println("API 服务器数据库连接成功。")

	if err := storage.AutoMigrateTables(db); err != nil {
		log.Fatalf("数据库表迁移失败: %v", err)
	}
	log.Println("API 服务器数据库表迁移成功。")

	// 3. 初始化 Redis Client
	redisClient := appRedis.NewClient(cfg.Redis)
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("无法连接到 Redis: %v", err)
	}
	log.Println("成功连接到 Redis")

	// 4. 初始化 Kafka Producer
	kfkProducer, err := appKafka.NewConfluentKafkaProducer(cfg.Kafka)
	if err != nil {
		log.Fatalf("无法创建 Kafka 生产者: %v", err)
	}
	defer kfkProducer.Close()
	log.Println("Kafka 生产者初始化成功 (API Server)。")

	// 5. 初始化 Repositories
	userRepo := storage.NewGormUserRepository(db)
	requestRepo := storage.NewGormRequestRepository(db)
	friendshipRepo := storage.NewGormFriendshipRepository(db)

	// 6. 初始化事件分发与实时推送
	dispatcher := notifications.NewKafkaEventDispatcher(kfkProducer, cfg.Kafka.RelationshipEventsTopic)
	pendingFeed := appRedis.NewPendingFeed(redisClient, cfg.Redis.PendingFeedChannel)

	// 7. 初始化 Services
	relationshipService := services.NewRelationshipService(db, userRepo, requestRepo, friendshipRepo, dispatcher, pendingFeed)
	directoryService := services.NewDirectoryService(userRepo)

	// 8. 初始化 WebSocket Hub 并订阅 pending feed
	hub := websocket.NewHub()

	feedCtx, cancelFeed := context.WithCancel(context.Background())
	defer cancelFeed()

	go func() {
		err := pendingFeed.Run(feedCtx, func(userIDs []string) {
			for _, userID := range userIDs {
				if !hub.HasSubscribers(userID) {
					continue
				}
				snapshot, err := relationshipService.PendingSnapshot(feedCtx, userID)
				if err != nil {
					log.Printf("构建用户 %s 的待处理快照失败: %v", userID, err)
					continue
				}
				hub.PushSnapshot(userID, snapshot)
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Pending feed 订阅循环错误: %v", err)
		}
		log.Println("Pending feed 订阅 goroutine 已停止。")
	}()

	// 9. 初始化 Handlers
	relationshipHandler := apiserver.NewRelationshipHandler(relationshipService)
	userHandler := apiserver.NewUserHandler(directoryService)
	feedHandler := feedserver.NewPendingFeedHandler(hub, relationshipService, cfg.Auth, cfg.WebSocket)

	// 10. 设置 HTTP 路由
	r := mux.NewRouter()

	// 实时待处理列表推送 (token 在查询参数中)
	r.Handle(cfg.Server.WebSocketPath, feedHandler).Methods(http.MethodGet)

	// API 子路由 (需要认证)
	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(func(next http.Handler) http.Handler {
		return middleware.AuthMiddleware(next, cfg.Auth)
	})

	// 用户目录路由
	apiRouter.HandleFunc("/users/search", userHandler.SearchUsersHandler).Methods(http.MethodGet)

	// 好友路由
	apiRouter.HandleFunc("/friends", relationshipHandler.ListFriendsHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/friends/{pairID}", relationshipHandler.RemoveFriendHandler).Methods(http.MethodDelete)

	// 好友请求路由
	friendRequestRouter := apiRouter.PathPrefix("/friend-requests").Subrouter()
	friendRequestRouter.HandleFunc("", relationshipHandler.SendRequestHandler).Methods(http.MethodPost)
	friendRequestRouter.HandleFunc("/pending", relationshipHandler.ListPendingReceivedHandler).Methods(http.MethodGet)
	friendRequestRouter.HandleFunc("/sent", relationshipHandler.ListPendingSentHandler).Methods(http.MethodGet)
	friendRequestRouter.HandleFunc("/{requestID}/accept", relationshipHandler.AcceptRequestHandler).Methods(http.MethodPost)
	friendRequestRouter.HandleFunc("/{requestID}/reject", relationshipHandler.RejectRequestHandler).Methods(http.MethodPost)
	friendRequestRouter.HandleFunc("/{requestID}/cancel", relationshipHandler.CancelRequestHandler).Methods(http.MethodPost)

	// 11. 启动 HTTP 服务器并实现优雅关闭
	serverAddr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	corsOptions := []handlers.CORSOption{
		handlers.AllowedOrigins(cfg.Server.CORS.AllowedOrigins),
		handlers.AllowedMethods(cfg.Server.CORS.AllowedMethods),
		handlers.AllowedHeaders(cfg.Server.CORS.AllowedHeaders),
		handlers.ExposedHeaders(cfg.Server.CORS.ExposedHeaders),
		handlers.MaxAge(cfg.Server.CORS.MaxAge),
	}
	if cfg.Server.CORS.AllowCredentials {
		corsOptions = append(corsOptions, handlers.AllowCredentials())
	}
	corsHandler := handlers.CORS(corsOptions...)(r)

	srv := &http.Server{
		Addr:           serverAddr,
		Handler:        corsHandler,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
		IdleTimeout:    time.Second * 60,
	}

	go func() {
		log.Printf("API 服务器启动于 %s", serverAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("API 服务器启动失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("收到关闭信号，正在关闭 API 服务器...")

	cancelFeed()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("API 服务器强制关闭: %v", err)
	}

	log.Println("API 服务器已成功关闭")
}
