package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"diarylink/internal/auth"
	"diarylink/internal/config"
	"diarylink/internal/models"
	"diarylink/internal/storage"

	"gorm.io/gorm/clause"
)

// 运维小工具：目录用户灌入、关系排查、开发用令牌签发。
//
//	admin seed-user -id u1 -name Alice -email alice@example.com
//	admin inspect-pair -a u1 -b u2
//	admin mint-token -id u1 -name Alice
func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("无法加载配置: %v", err)
	}

	switch os.Args[1] {
	case "seed-user":
		seedUser(cfg, os.Args[2:])
	case "inspect-pair":
		inspectPair(cfg, os.Args[2:])
	case "mint-token":
		mintToken(cfg, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "用法: admin <seed-user|inspect-pair|mint-token> [flags]")
}

func seedUser(cfg config.Config, args []string) {
	fs := flag.NewFlagSet("seed-user", flag.ExitOnError)
	id := fs.String("id", "", "用户ID")
	name := fs.String("name", "", "显示名")
	email := fs.String("email", "", "邮箱")
	photoURL := fs.String("photo", "", "头像URL")
	fs.Parse(args)

	if *id == "" || *name == "" {
		log.Fatal("seed-user 需要 -id 和 -name")
	}
	if !models.ValidPairMember(*id) {
		log.Fatalf("用户ID %q 含有保留字符，无法作为配对键成员", *id)
	}

	db, err := storage.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("无法初始化数据库: %v", err)
	}
	if err := storage.AutoMigrateTables(db); err != nil {
		log.Fatalf("数据库表迁移失败: %v", err)
	}

	user := &models.User{
		ID:          *id,
		DisplayName: *name,
		Email:       *email,
		PhotoURL:    *photoURL,
	}
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "email", "photo_url"}),
	}).Create(user).Error
	if err != nil {
		log.Fatalf("写入用户失败: %v", err)
	}
	fmt.Printf("用户 %s (%s) 已写入目录\n", user.ID, user.DisplayName)
}

func inspectPair(cfg config.Config, args []string) {
	fs := flag.NewFlagSet("inspect-pair", flag.ExitOnError)
	userA := fs.String("a", "", "用户A")
	userB := fs.String("b", "", "用户B")
	fs.Parse(args)

	if *userA == "" || *userB == "" {
		log.Fatal("inspect-pair 需要 -a 和 -b")
	}

	db, err := storage.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("无法初始化数据库: %v", err)
	}

	ctx := context.Background()
	pairID := models.CanonicalPair(*userA, *userB)
	fmt.Printf("pair: %s\n", pairID)

	friendshipRepo := storage.NewGormFriendshipRepository(db)
	friendship, err := friendshipRepo.GetByPairID(ctx, pairID)
	if err != nil {
		log.Fatalf("查询好友关系失败: %v", err)
	}
	if friendship != nil {
		fmt.Printf("state: FRIENDS (since %s)\n", friendship.CreatedAt.Format("2006-01-02 15:04:05"))
	}

	requestRepo := storage.NewGormRequestRepository(db)
	request, err := requestRepo.GetByPair(ctx, *userA, *userB)
	if err != nil {
		log.Fatalf("查询好友请求失败: %v", err)
	}
	if request != nil {
		fmt.Printf("state: PENDING (request %s, %s -> %s, created %s)\n",
			request.ID, request.FromUserID, request.ToUserID,
			request.CreatedAt.Format("2006-01-02 15:04:05"))
	}

	if friendship == nil && request == nil {
		fmt.Println("state: NONE")
	}

	// 历史审计行
	var resolved []models.FriendRequest
	err = db.WithContext(ctx).
		Where("pair_id = ? AND status <> ?", pairID, models.FriendRequestStatusPending).
		Order("created_at").
		Find(&resolved).Error
	if err != nil {
		log.Fatalf("查询历史请求失败: %v", err)
	}
	for _, r := range resolved {
		fmt.Printf("history: %s %s -> %s (%s)\n", r.Status, r.FromUserID, r.ToUserID, r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
}

func mintToken(cfg config.Config, args []string) {
	fs := flag.NewFlagSet("mint-token", flag.ExitOnError)
	id := fs.String("id", "", "用户ID")
	name := fs.String("name", "", "显示名")
	fs.Parse(args)

	if *id == "" {
		log.Fatal("mint-token 需要 -id")
	}

	token, err := auth.GenerateToken(*id, *name, cfg.Auth)
	if err != nil {
		log.Fatalf("生成令牌失败: %v", err)
	}
	fmt.Println(token)
}
