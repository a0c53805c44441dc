// Пакет config — загрузка и валидация конфигурации Console Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// MailSettings — параметры отправки почты.
// Загружаются один раз при старте процесса и не мутируются.
type MailSettings struct {
	// Тип транспорта: smtp, resend или пустая строка (почта отключена)
	Type string
	// Адрес отправителя по умолчанию
	DefaultSendFrom string
	// Адрес SMTP-сервера
	SMTPServer string
	// Порт SMTP-сервера
	SMTPPort int
	// Логин SMTP
	SMTPUsername string
	// Пароль SMTP
	SMTPPassword string
	// Использовать TLS при подключении
	SMTPUseTLS bool
	// Opportunistic TLS (STARTTLS после plain-подключения)
	SMTPOpportunisticTLS bool
}

// RedisSettings — параметры подключения к Redis.
type RedisSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	// Номер базы (неотрицательный)
	DB int
	// TLS-подключение
	UseSSL bool
}

// Addr возвращает адрес Redis в формате host:port.
func (r RedisSettings) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Config содержит все параметры конфигурации Console Module.
type Config struct {
	// Порт HTTP-сервера
	Port int

	// Корневая директория загрузок (LAZYLLM_UPLOAD_PATH, обязательный)
	UploadPath string
	// Базовый публичный путь для ссылок на загруженные файлы (опционально)
	UploadBasePath string
	// Путь к иконке приложения по умолчанию (опционально)
	DefaultIconPath string

	// Настройки почты
	Mail MailSettings
	// Настройки Redis (очередь фоновых задач + кэш статистики)
	Redis RedisSettings

	// PostgreSQL
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// Интервал запуска daily_cost_audit_stat
	StatInterval time.Duration
	// Интервал запуска check_status (сверка статусов fine-tune задач)
	CheckStatusInterval time.Duration
	// Таймаут, после которого задача in_progress без живого исполнения
	// считается потерянной и переводится в failed
	TaskStaleTimeout time.Duration
	// Количество воркеров очереди фоновых задач
	QueueConcurrency int
	// TTL аренды задачи воркером: по истечении задача возвращается в очередь
	QueueVisibilityTTL time.Duration

	// URL runtime-сервиса fine-tune (опционально; пустая строка — локальная заглушка)
	FinetuneRuntimeURL string
	// Таймаут HTTP-клиента runtime-сервиса
	FinetuneClientTimeout time.Duration

	// URL JWKS endpoint для проверки JWT (опционально; пустая строка — auth отключён)
	JWKSUrl string
	// Путь к CA-сертификату для TLS JWKS endpoint (опционально)
	JWKSCACert string
	// Ожидаемый issuer JWT (опционально; пустая строка — не проверяется)
	JWTIssuer string
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал фонового обновления JWKS-ключей
	JWKSRefreshInterval time.Duration

	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// DatabaseDSN возвращает DSN подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
// Ошибка любой обязательной или некорректной переменной прерывает запуск.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// CM_PORT — порт HTTP-сервера (по умолчанию 5001)
	cfg.Port, err = getEnvInt("CM_PORT", 5001)
	if err != nil {
		return nil, fmt.Errorf("CM_PORT: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("CM_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// LAZYLLM_UPLOAD_PATH — обязательный, корень хранения загрузок
	cfg.UploadPath, err = getEnvRequired("LAZYLLM_UPLOAD_PATH")
	if err != nil {
		return nil, err
	}

	// UPLOAD_BASE_PATH, DEFAULT_ICON_PATH — опциональные
	cfg.UploadBasePath = getEnvDefault("UPLOAD_BASE_PATH", "")
	cfg.DefaultIconPath = getEnvDefault("DEFAULT_ICON_PATH", "")

	// --- Почта ---

	// MAIL_TYPE — тип транспорта (по умолчанию пустой — почта отключена)
	cfg.Mail.Type = getEnvDefault("MAIL_TYPE", "")
	switch cfg.Mail.Type {
	case "", "smtp", "resend":
		// ok
	default:
		return nil, fmt.Errorf("MAIL_TYPE: недопустимое значение %q, допустимые: smtp, resend или пустая строка", cfg.Mail.Type)
	}

	cfg.Mail.DefaultSendFrom = getEnvDefault("MAIL_DEFAULT_SEND_FROM", "")
	cfg.Mail.SMTPServer = getEnvDefault("SMTP_SERVER", "")

	// SMTP_PORT — порт SMTP (по умолчанию 465)
	cfg.Mail.SMTPPort, err = getEnvInt("SMTP_PORT", 465)
	if err != nil {
		return nil, fmt.Errorf("SMTP_PORT: %w", err)
	}
	if cfg.Mail.SMTPPort <= 0 {
		return nil, fmt.Errorf("SMTP_PORT: значение должно быть положительным, получено %d", cfg.Mail.SMTPPort)
	}

	cfg.Mail.SMTPUsername = getEnvDefault("SMTP_USERNAME", "")
	cfg.Mail.SMTPPassword = getEnvDefault("SMTP_PASSWORD", "")

	cfg.Mail.SMTPUseTLS, err = getEnvBool("SMTP_USE_TLS", false)
	if err != nil {
		return nil, fmt.Errorf("SMTP_USE_TLS: %w", err)
	}
	cfg.Mail.SMTPOpportunisticTLS, err = getEnvBool("SMTP_OPPORTUNISTIC_TLS", false)
	if err != nil {
		return nil, fmt.Errorf("SMTP_OPPORTUNISTIC_TLS: %w", err)
	}

	// SMTP-транспорт без сервера — ошибка конфигурации
	if cfg.Mail.Type == "smtp" && cfg.Mail.SMTPServer == "" {
		return nil, fmt.Errorf("SMTP_SERVER: обязателен при MAIL_TYPE=smtp")
	}

	// --- Redis ---

	cfg.Redis.Host = getEnvDefault("REDIS_HOST", "localhost")

	cfg.Redis.Port, err = getEnvInt("REDIS_PORT", 6379)
	if err != nil {
		return nil, fmt.Errorf("REDIS_PORT: %w", err)
	}
	if cfg.Redis.Port <= 0 {
		return nil, fmt.Errorf("REDIS_PORT: значение должно быть положительным, получено %d", cfg.Redis.Port)
	}

	cfg.Redis.Username = getEnvDefault("REDIS_USERNAME", "")
	cfg.Redis.Password = getEnvDefault("REDIS_PASSWORD", "")

	cfg.Redis.DB, err = getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("REDIS_DB: %w", err)
	}
	if cfg.Redis.DB < 0 {
		return nil, fmt.Errorf("REDIS_DB: значение не может быть отрицательным, получено %d", cfg.Redis.DB)
	}

	cfg.Redis.UseSSL, err = getEnvBool("REDIS_USE_SSL", false)
	if err != nil {
		return nil, fmt.Errorf("REDIS_USE_SSL: %w", err)
	}

	// --- PostgreSQL ---

	cfg.DBHost = getEnvDefault("CM_DB_HOST", "localhost")

	cfg.DBPort, err = getEnvInt("CM_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("CM_DB_PORT: %w", err)
	}

	cfg.DBName, err = getEnvRequired("CM_DB_NAME")
	if err != nil {
		return nil, err
	}

	cfg.DBUser, err = getEnvRequired("CM_DB_USER")
	if err != nil {
		return nil, err
	}

	cfg.DBPassword, err = getEnvRequired("CM_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("CM_DB_SSLMODE", "disable")

	// --- Фоновые задачи ---

	// CM_STAT_INTERVAL — интервал расчёта статистики расходов (по умолчанию 24h)
	cfg.StatInterval, err = getEnvDuration("CM_STAT_INTERVAL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("CM_STAT_INTERVAL: %w", err)
	}

	// CM_CHECK_STATUS_INTERVAL — интервал сверки статусов (по умолчанию 1m)
	cfg.CheckStatusInterval, err = getEnvDuration("CM_CHECK_STATUS_INTERVAL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("CM_CHECK_STATUS_INTERVAL: %w", err)
	}

	// CM_TASK_STALE_TIMEOUT — таймаут потерянной задачи (по умолчанию 2h)
	cfg.TaskStaleTimeout, err = getEnvDuration("CM_TASK_STALE_TIMEOUT", 2*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("CM_TASK_STALE_TIMEOUT: %w", err)
	}

	// CM_QUEUE_CONCURRENCY — воркеры очереди (по умолчанию 4)
	cfg.QueueConcurrency, err = getEnvInt("CM_QUEUE_CONCURRENCY", 4)
	if err != nil {
		return nil, fmt.Errorf("CM_QUEUE_CONCURRENCY: %w", err)
	}
	if cfg.QueueConcurrency <= 0 {
		return nil, fmt.Errorf("CM_QUEUE_CONCURRENCY: значение должно быть положительным, получено %d", cfg.QueueConcurrency)
	}

	// CM_QUEUE_VISIBILITY_TTL — аренда задачи воркером (по умолчанию 30m)
	cfg.QueueVisibilityTTL, err = getEnvDuration("CM_QUEUE_VISIBILITY_TTL", 30*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("CM_QUEUE_VISIBILITY_TTL: %w", err)
	}

	// --- Runtime fine-tune ---

	cfg.FinetuneRuntimeURL = getEnvDefault("CM_FINETUNE_RUNTIME_URL", "")

	cfg.FinetuneClientTimeout, err = getEnvDuration("CM_FINETUNE_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CM_FINETUNE_CLIENT_TIMEOUT: %w", err)
	}

	// --- Аутентификация ---

	cfg.JWKSUrl = getEnvDefault("CM_JWKS_URL", "")
	cfg.JWKSCACert = getEnvDefault("CM_JWKS_CA_CERT", "")

	cfg.JWTIssuer = getEnvDefault("CM_JWT_ISSUER", "")

	cfg.JWTLeeway, err = getEnvDuration("CM_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CM_JWT_LEEWAY: %w", err)
	}

	cfg.JWKSClientTimeout, err = getEnvDuration("CM_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CM_JWKS_CLIENT_TIMEOUT: %w", err)
	}

	cfg.JWKSRefreshInterval, err = getEnvDuration("CM_JWKS_REFRESH_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("CM_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// --- HTTP-сервер ---

	cfg.HTTPReadTimeout, err = getEnvDuration("CM_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CM_HTTP_READ_TIMEOUT: %w", err)
	}

	cfg.HTTPWriteTimeout, err = getEnvDuration("CM_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CM_HTTP_WRITE_TIMEOUT: %w", err)
	}

	cfg.HTTPIdleTimeout, err = getEnvDuration("CM_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CM_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- Dephealth ---

	cfg.DephealthCheckInterval, err = getEnvDuration("CM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	cfg.DephealthGroup = getEnvDefault("CM_DEPHEALTH_GROUP", "console-module")

	// --- Логирование и shutdown ---

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("CM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("CM_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("CM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("CM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.ShutdownTimeout, err = getEnvDuration("CM_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CM_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
// Принимает true/false, 1/0, yes/no без учёта регистра.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	switch strings.ToLower(val) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	default:
		return false, fmt.Errorf("некорректное булево значение: %q (используйте true/false)", val)
	}
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1m, 24h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
