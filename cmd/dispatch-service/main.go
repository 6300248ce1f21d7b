package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/YardLink/YardLink/internal/api"
	"github.com/YardLink/YardLink/internal/assignment"
	"github.com/YardLink/YardLink/internal/common/config"
	"github.com/YardLink/YardLink/internal/common/db"
	"github.com/YardLink/YardLink/internal/common/logger"
	"github.com/YardLink/YardLink/internal/common/server"
	"github.com/YardLink/YardLink/internal/common/tracing"
	"github.com/YardLink/YardLink/internal/driver"
	"github.com/YardLink/YardLink/internal/ledger"
	"github.com/YardLink/YardLink/internal/move"
	"github.com/YardLink/YardLink/internal/payment"
	"github.com/YardLink/YardLink/internal/rate"
	"github.com/YardLink/YardLink/internal/registry"
	"github.com/gofiber/fiber/v2"
)

var (
	configPath = flag.String("config", "configs/dispatch-service.json", "配置文件路径")
	consulKey  = flag.String("consul-config", "", "从 Consul KV 读取配置的 key（覆盖本地配置文件）")
)

func main() {
	flag.Parse()

	// 加载配置：本地文件兜底，-consul-config 指定时改走 Consul KV
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	if *consulKey != "" {
		cfg, err = config.LoadConfigFromConsulKV(cfg.Consul.Host, cfg.Consul.Port, *consulKey)
		if err != nil {
			panic(fmt.Sprintf("failed to load config from consul kv: %v", err))
		}
	}

	// 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	// 初始化链路追踪
	tracer, closer, err := tracing.InitTracer(
		cfg.Server.Name,
		cfg.Jaeger.Endpoint,
		cfg.Jaeger.Sampler,
	)
	if err != nil {
		log.Warnf("failed to init tracer: %v", err)
	} else {
		defer closer.Close()
	}
	_ = tracer

	// 初始化数据库
	gormDB, err := db.NewMySQL(
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Database,
		cfg.Database.MaxIdle,
		cfg.Database.MaxOpen,
	)
	if err != nil {
		log.Fatalf("failed to init mysql: %v", err)
	}
	if err := gormDB.AutoMigrate(
		&registry.Location{},
		&registry.Trailer{},
		&rate.RouteRate{},
		&driver.Driver{},
		&move.Move{},
		&ledger.AssignmentHistory{},
		&payment.PaymentBatch{},
		&payment.PaymentRecord{},
	); err != nil {
		log.Fatalf("failed to migrate mysql schema: %v", err)
	}

	ctx := context.Background()

	// 基础数据仓储
	registryRepo := registry.NewRepo(gormDB)
	rateRepo := rate.NewRepo(gormDB)
	driverRepo := driver.NewRepo(gormDB)
	moveRepo := move.NewRepo(gormDB)
	historyRepo := ledger.NewRepo(gormDB)
	paymentRepo := payment.NewRepo(gormDB)

	// 种子数据：标准线路价与车队基地
	if err := rateRepo.SeedDefaults(ctx); err != nil {
		log.Fatalf("failed to seed route rates: %v", err)
	}
	if err := seedBaseLocation(ctx, registryRepo); err != nil {
		log.Fatalf("failed to seed base location: %v", err)
	}

	catalog := rate.NewCatalog(rateRepo)
	if err := catalog.Reload(ctx); err != nil {
		log.Fatalf("failed to load route rates: %v", err)
	}

	// 业务服务
	runTx := move.GormTxRunner(gormDB)
	moveService := move.NewService(moveRepo, registryRepo, historyRepo, driverRepo, runTx)
	allocator := assignment.NewAllocator(registryRepo, moveRepo, driverRepo, historyRepo, catalog, runTx)
	if cfg.Reservation.TTLMinutes > 0 {
		allocator.ReservationTTL = time.Duration(cfg.Reservation.TTLMinutes) * time.Minute
	}
	if cfg.Reservation.ConfirmHoldDays > 0 {
		allocator.ConfirmHold = time.Duration(cfg.Reservation.ConfirmHoldDays) * 24 * time.Hour
	}
	paymentService := payment.NewService(paymentRepo, moveRepo, historyRepo, driverRepo, runTx)

	handlers := &api.Handlers{
		Auth:     api.NewAuthHandler(driverRepo, cfg.Auth),
		Portal:   api.NewPortalHandler(allocator, moveService, moveRepo, historyRepo),
		Dispatch: api.NewDispatchHandler(moveService, moveRepo, historyRepo, allocator.ReservationTTL, allocator.ConfirmHold),
		Payment:  api.NewPaymentHandler(paymentService, paymentRepo, moveRepo),
		Admin:    api.NewAdminHandler(driverRepo, registryRepo, rateRepo, catalog),
	}

	// 启动统一的 HTTP 服务模板
	if err := server.RunHTTPServer(cfg, log, func(app *fiber.App) error {
		api.RegisterRoutes(app, handlers, cfg.Auth)
		return nil
	}); err != nil {
		log.Fatalf("dispatch-service exited with error: %v", err)
	}
}

// seedBaseLocation 确保车队基地存在（新挂车的唯一起点）。
func seedBaseLocation(ctx context.Context, repo *registry.Repo) error {
	if _, err := repo.FindBaseLocation(ctx); err == nil {
		return nil
	}
	return repo.UpsertLocation(ctx, &registry.Location{
		ID:     "loc-fleet-memphis",
		Title:  "Fleet Memphis",
		City:   "Memphis",
		State:  "TN",
		IsBase: true,
	})
}
