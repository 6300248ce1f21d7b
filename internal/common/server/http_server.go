package server

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/YardLink/YardLink/internal/common/config"
	"github.com/YardLink/YardLink/internal/common/discovery"
	"github.com/YardLink/YardLink/internal/common/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// HTTPRegisterFunc 用于注册业务路由。
type HTTPRegisterFunc func(app *fiber.App) error

type RunHTTPOptions struct {
	ShutdownTimeout time.Duration
}

func defaultRunHTTPOptions() RunHTTPOptions {
	return RunHTTPOptions{
		ShutdownTimeout: 5 * time.Second,
	}
}

// RunHTTPServer 统一的 HTTP 服务启动模板：
// - 创建 fiber app 并注册 /health
// - 注册业务路由
// - 注册到 Consul（HTTP check）
// - 优雅退出
func RunHTTPServer(cfg *config.Config, log logger.Logger, register HTTPRegisterFunc, opts ...func(*RunHTTPOptions)) error {
	if cfg == nil {
		return fmt.Errorf("cfg is nil")
	}
	if log == nil {
		return fmt.Errorf("log is nil")
	}

	o := defaultRunHTTPOptions()
	for _, apply := range opts {
		if apply != nil {
			apply(&o)
		}
	}

	// 初始化 Consul 客户端（失败不阻塞服务启动）
	consulClient, err := discovery.NewConsulClient(cfg.Consul.Host, cfg.Consul.Port)
	if err != nil {
		log.Warnf("failed to connect to Consul: %v", err)
		consulClient = nil
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.Server.Name,
		DisableStartupMessage: true,
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.Server.Name})
	})

	if register != nil {
		if err := register(app); err != nil {
			return fmt.Errorf("failed to register http routes: %w", err)
		}
	}

	// 注册到 Consul（成功才 defer 注销）
	if consulClient != nil {
		serviceID := fmt.Sprintf("%s-%s", cfg.Server.Name, uuid.New().String())
		registry := discovery.NewServiceRegistry(
			consulClient,
			serviceID,
			cfg.Server.Name,
			cfg.Server.Host,
			cfg.Server.Port,
			[]string{"http"},
		)
		if err := registry.Register(); err != nil {
			log.Warnf("failed to register service to Consul: %v", err)
		} else {
			log.Infof("Service registered to Consul: %s", serviceID)
			defer func() {
				if err := registry.Deregister(); err != nil {
					log.Warnf("failed to deregister service from Consul: %v", err)
				}
			}()
		}
	}

	log.Infof("%s starting on %s:%d", cfg.Server.Name, cfg.Server.Host, cfg.Server.Port)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- app.Listen(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Infof("received signal %v, shutting down...", sig)
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http serve failed: %w", err)
		}
		return nil
	}

	// 优雅关闭
	if err := app.ShutdownWithTimeout(o.ShutdownTimeout); err != nil {
		log.Warnf("graceful shutdown failed: %v", err)
		return err
	}
	log.Infof("%s stopped", cfg.Server.Name)
	return nil
}
