// main.go — точка входа Console Module.
// Собирает все зависимости: PostgreSQL с миграциями, Redis (очередь
// фоновых задач + кэш статистики), сервисы, воркеры очереди, планировщик
// и HTTP-сервер.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/golazyllm/console-module/internal/api/handlers"
	"github.com/bigkaa/golazyllm/console-module/internal/api/middleware"
	"github.com/bigkaa/golazyllm/console-module/internal/cache"
	"github.com/bigkaa/golazyllm/console-module/internal/config"
	"github.com/bigkaa/golazyllm/console-module/internal/database"
	"github.com/bigkaa/golazyllm/console-module/internal/queue"
	"github.com/bigkaa/golazyllm/console-module/internal/repository"
	"github.com/bigkaa/golazyllm/console-module/internal/runtimeclient"
	"github.com/bigkaa/golazyllm/console-module/internal/server"
	"github.com/bigkaa/golazyllm/console-module/internal/service"
	"github.com/bigkaa/golazyllm/console-module/internal/storage/uploads"
)

// Параметры in-process уровня кэша статистики.
const (
	statLRUSize = 128
	statLRUTTL  = 10 * time.Minute
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Console Module завершился с ошибкой: %v", err)
	}
}

func run() error {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("загрузка конфигурации: %w", err)
	}

	// 2. Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Console Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Миграции и подключение к PostgreSQL
	if err := database.Migrate(cfg, logger); err != nil {
		return fmt.Errorf("применение миграций: %w", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("подключение к PostgreSQL: %w", err)
	}
	defer pool.Close()

	// 4. Redis — очередь фоновых задач и кэш статистики
	rdb := cache.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	// 5. Репозитории
	taskRepo := repository.NewTaskRepository(pool)
	costRepo := repository.NewCostRepository(pool)
	fileRepo := repository.NewFileRepository(pool)

	// 6. Файловое хранилище загрузок
	store, err := uploads.New(cfg.UploadPath)
	if err != nil {
		return fmt.Errorf("инициализация хранилища загрузок: %w", err)
	}

	// 7. Runtime fine-tune: внешний HTTP-сервис или локальная заглушка
	var manager service.TaskManager
	if cfg.FinetuneRuntimeURL != "" {
		manager = runtimeclient.New(cfg.FinetuneRuntimeURL, cfg.FinetuneClientTimeout, logger)
		logger.Info("Используется внешний fine-tune runtime",
			slog.String("url", cfg.FinetuneRuntimeURL),
		)
	} else {
		manager = runtimeclient.NewLocal(logger)
		logger.Warn("CM_FINETUNE_RUNTIME_URL не задан, используется локальный runtime")
	}

	// 8. Сервисный слой
	statCache := cache.NewStatCache(rdb, statLRUSize, statLRUTTL, 0)
	finetuneSvc := service.NewFinetuneService(taskRepo, manager, cfg.TaskStaleTimeout, logger)
	costSvc := service.NewCostAuditService(costRepo, statCache, logger)
	uploadSvc := service.NewUploadService(store, fileRepo, logger)

	// 9. Очередь фоновых задач: клиент, воркеры, обработчики jobs
	queueClient := queue.NewClient(rdb, logger)

	queueServer := queue.NewServer(rdb, queue.ServerConfig{
		Concurrency:   cfg.QueueConcurrency,
		VisibilityTTL: cfg.QueueVisibilityTTL,
	}, logger)

	queueServer.Handle(queue.JobAddTask, func(ctx context.Context, payload []byte) error {
		var p queue.TaskPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("разбор payload add_task: %w", err)
		}
		return finetuneSvc.Start(ctx, p.TaskID)
	})
	queueServer.Handle(queue.JobCancelTask, func(ctx context.Context, payload []byte) error {
		var p queue.TaskPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("разбор payload cancel_task: %w", err)
		}
		return finetuneSvc.Cancel(ctx, p.TaskID)
	})
	queueServer.Handle(queue.JobCheckStatus, func(ctx context.Context, _ []byte) error {
		return finetuneSvc.CheckStatus(ctx)
	})
	queueServer.Handle(queue.JobDailyCostAuditStat, func(ctx context.Context, _ []byte) error {
		return costSvc.RunForPreviousDay(ctx)
	})

	queueServer.Start(ctx)
	defer queueServer.Stop()

	// 10. Планировщик периодических jobs
	scheduler := service.NewScheduler(queueClient, cfg.StatInterval, cfg.CheckStatusInterval, logger)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	// 11. Мониторинг зависимостей topologymetrics
	sqlDB := stdlib.OpenDBFromPool(pool)
	dephealthSvc, err := service.NewDephealthService(
		"console-module",
		cfg.DephealthGroup,
		sqlDB,
		cfg.DatabaseDSN(),
		cfg.FinetuneRuntimeURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	if err != nil {
		return fmt.Errorf("инициализация мониторинга зависимостей: %w", err)
	}
	if err := dephealthSvc.Start(ctx); err != nil {
		return fmt.Errorf("запуск мониторинга зависимостей: %w", err)
	}
	defer dephealthSvc.Stop()

	// 12. HTTP handlers
	healthHandler := handlers.NewHealthHandler(
		database.NewReadinessChecker(pool),
		cache.NewReadinessChecker(rdb),
	)
	apiHandler := handlers.NewAPIHandler(
		handlers.NewFilesHandler(uploadSvc, logger),
		handlers.NewFinetuneHandler(finetuneSvc, queueClient, logger),
		handlers.NewCostAuditHandler(costSvc, logger),
		healthHandler,
		logger,
	)

	// 13. JWT middleware (только при заданном CM_JWKS_URL)
	var auth *middleware.JWTAuth
	if cfg.JWKSUrl != "" {
		auth, err = middleware.NewJWTAuth(
			cfg.JWKSUrl,
			cfg.JWKSCACert,
			cfg.JWTIssuer,
			cfg.JWKSClientTimeout,
			cfg.JWKSRefreshInterval,
			cfg.JWTLeeway,
			logger,
		)
		if err != nil {
			return fmt.Errorf("инициализация JWT middleware: %w", err)
		}
	} else {
		logger.Warn("CM_JWKS_URL не задан, JWT-аутентификация отключена")
	}

	// 14. Запуск сервера (блокирующий вызов с graceful shutdown)
	srv := server.New(cfg, logger, apiHandler, auth)
	if err := srv.Run(); err != nil {
		return fmt.Errorf("HTTP-сервер: %w", err)
	}

	logger.Info("Console Module остановлен")
	return nil
}
