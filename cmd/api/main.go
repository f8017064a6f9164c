package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-court-reservation/internal/api"
	"github.com/sanosuguru/go-court-reservation/internal/api/handler"
	custommiddleware "github.com/sanosuguru/go-court-reservation/internal/api/middleware"
	"github.com/sanosuguru/go-court-reservation/internal/application"
	"github.com/sanosuguru/go-court-reservation/internal/config"
	"github.com/sanosuguru/go-court-reservation/internal/domain/calendar"
	"github.com/sanosuguru/go-court-reservation/internal/infrastructure/postgres"
	"github.com/sanosuguru/go-court-reservation/internal/infrastructure/rabbitmq"
	redisinfra "github.com/sanosuguru/go-court-reservation/internal/infrastructure/redis"
	"github.com/sanosuguru/go-court-reservation/internal/pkg/logger"
	"github.com/sanosuguru/go-court-reservation/internal/pkg/metrics"
	"github.com/sanosuguru/go-court-reservation/internal/pricing"
	"github.com/sanosuguru/go-court-reservation/internal/worker"
)

func main() {
	// .env は存在しなくてもよい
	_ = godotenv.Load()

	cfg := config.Load()

	log := logger.NewLogger(os.Getenv("APP_ENV"))
	logger.Set(log)
	defer logger.Sync()

	m := metrics.Init()

	// 営業カレンダー
	loc, err := time.LoadLocation(cfg.Calendar.Timezone)
	if err != nil {
		log.Fatal("タイムゾーンの読み込みに失敗", zap.Error(err))
	}
	cal, err := calendar.New(calendar.Config{
		OpenAt:         cfg.Calendar.OpenAt,
		CloseAt:        cfg.Calendar.CloseAt,
		ClosedWeekdays: cfg.Calendar.ClosedWeekdays,
		Holidays:       cfg.Calendar.Holidays,
		Location:       loc,
	})
	if err != nil {
		log.Fatal("営業カレンダーの作成に失敗", zap.Error(err))
	}

	// PostgreSQL
	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatal("データベース接続に失敗", zap.Error(err))
	}
	defer db.Close()

	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "migrations"
	}
	if err := postgres.RunMigrations(db.DB, migrationsPath); err != nil {
		log.Fatal("マイグレーション実行に失敗", zap.Error(err))
	}

	// Redis
	redisClient := redisinfra.NewClient(&cfg.Redis)
	defer redisClient.Close()
	if err := redisinfra.Ping(context.Background(), redisClient); err != nil {
		log.Fatal("Redis接続に失敗", zap.Error(err))
	}

	// リポジトリ
	txManager := postgres.NewTxManager(db)
	reservationRepo := postgres.NewReservationRepository(db)
	groupRepo := postgres.NewGroupRepository(db)
	waitlistRepo := postgres.NewWaitlistRepository(db)

	// インフラ
	lockManager := application.NewRedisLockManager(redisinfra.NewLockManager(redisClient, &cfg.Lock))
	notifier := rabbitmq.NewNotifier(&cfg.RabbitMQ)
	oracle := pricing.NewHourlyRate(cfg.Pricing.PerHour)

	// アプリケーションサービス
	detector := application.NewConflictDetector(reservationRepo)
	resolver := application.NewWaitlistResolver(reservationRepo, groupRepo, waitlistRepo, cal, oracle, cfg.Waitlist.PromotionPolicy)
	admissionService := application.NewAdmissionService(
		txManager, reservationRepo, groupRepo, waitlistRepo,
		detector, lockManager, cal, oracle, notifier,
	)
	groupService := application.NewGroupService(
		txManager, groupRepo, reservationRepo, resolver, lockManager, notifier,
	)
	sweepService := application.NewSweepService(
		txManager, reservationRepo, groupRepo, resolver, lockManager, notifier,
	)
	reconcileService := application.NewReconcileService(
		txManager, groupRepo, reservationRepo, waitlistRepo,
	)

	// ワーカー
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	sweeper := worker.NewExpirationSweeper(sweepService, cfg.Sweep.Interval)
	reconciler := worker.NewReconciler(reconcileService, cfg.Reconcile.Interval)
	go sweeper.Start(workerCtx)
	go reconciler.Start(workerCtx)

	// Echo
	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	custommiddleware.SetupMiddleware(e)
	e.Use(custommiddleware.PrometheusMiddleware(m))

	// ハンドラー
	bookingHandler := handler.NewBookingHandler(admissionService)
	groupHandler := handler.NewGroupHandler(groupService)
	adminHandler := handler.NewAdminHandler(sweepService, reconcileService)
	healthHandler := handler.NewHealthHandler()

	// ルーティング
	v1 := e.Group("/api/v1")
	v1.GET("/health", healthHandler.Check)

	v1.POST("/bookings", bookingHandler.Attempt)
	v1.GET("/reservations/:id", bookingHandler.GetReservation)
	v1.POST("/reservations/:id/check-in", bookingHandler.CheckIn)
	v1.POST("/reservations/:id/complete", bookingHandler.Complete)
	v1.GET("/courts/:id/waitlist", bookingHandler.GetWaitlist)

	v1.GET("/groups/:id", groupHandler.GetByID)
	v1.POST("/groups/:id/approve", groupHandler.Approve)
	v1.POST("/groups/:id/reject", groupHandler.Reject)
	v1.POST("/groups/:id/pay", groupHandler.Pay)
	v1.POST("/groups/:id/cancel", groupHandler.Cancel)
	v1.POST("/groups/:id/payment-proof", groupHandler.AttachPaymentProof)
	v1.POST("/groups/:id/no-expiry", groupHandler.GrantNoExpiry)

	v1.POST("/admin/sweep", adminHandler.RunSweep)
	v1.POST("/admin/reconcile", adminHandler.RunReconcile)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// サーバー起動
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatal("サーバー起動エラー", zap.Error(err))
		}
	}()

	// シグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("サーバーをシャットダウンしています...")

	// ワーカーを先に止めてからHTTPを閉じる
	cancelWorkers()
	sweeper.Stop()
	reconciler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Fatal("サーバーシャットダウンエラー", zap.Error(err))
	}

	log.Info("サーバーが正常にシャットダウンしました")
}
