package config

import (
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"
)

// setEnvVars устанавливает переменные окружения для теста и возвращает
// функцию очистки. Всегда вызывать defer cleanup().
func setEnvVars(t *testing.T, vars map[string]string) func() {
	t.Helper()

	originals := make(map[string]string)
	origSet := make(map[string]bool)
	for k := range vars {
		if v, ok := os.LookupEnv(k); ok {
			originals[k] = v
			origSet[k] = true
		}
	}

	for k, v := range vars {
		os.Setenv(k, v)
	}

	return func() {
		for k := range vars {
			if origSet[k] {
				os.Setenv(k, originals[k])
			} else {
				os.Unsetenv(k)
			}
		}
	}
}

// clearAllEnvVars очищает все переменные окружения Console Module для чистого теста.
func clearAllEnvVars(t *testing.T) func() {
	t.Helper()
	keys := []string{
		"CM_PORT", "LAZYLLM_UPLOAD_PATH", "UPLOAD_BASE_PATH", "DEFAULT_ICON_PATH",
		"MAIL_TYPE", "MAIL_DEFAULT_SEND_FROM", "SMTP_SERVER", "SMTP_PORT",
		"SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_USE_TLS", "SMTP_OPPORTUNISTIC_TLS",
		"REDIS_HOST", "REDIS_PORT", "REDIS_USERNAME", "REDIS_PASSWORD",
		"REDIS_DB", "REDIS_USE_SSL",
		"CM_DB_HOST", "CM_DB_PORT", "CM_DB_NAME", "CM_DB_USER", "CM_DB_PASSWORD", "CM_DB_SSLMODE",
		"CM_STAT_INTERVAL", "CM_CHECK_STATUS_INTERVAL", "CM_TASK_STALE_TIMEOUT",
		"CM_QUEUE_CONCURRENCY", "CM_QUEUE_VISIBILITY_TTL",
		"CM_FINETUNE_RUNTIME_URL", "CM_FINETUNE_CLIENT_TIMEOUT",
		"CM_JWKS_URL", "CM_JWKS_CA_CERT", "CM_JWT_ISSUER", "CM_JWT_LEEWAY",
		"CM_JWKS_CLIENT_TIMEOUT", "CM_JWKS_REFRESH_INTERVAL",
		"CM_HTTP_READ_TIMEOUT", "CM_HTTP_WRITE_TIMEOUT", "CM_HTTP_IDLE_TIMEOUT",
		"CM_DEPHEALTH_CHECK_INTERVAL", "CM_DEPHEALTH_GROUP",
		"CM_LOG_LEVEL", "CM_LOG_FORMAT", "CM_SHUTDOWN_TIMEOUT",
	}
	originals := make(map[string]string)
	origSet := make(map[string]bool)
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			originals[k] = v
			origSet[k] = true
		}
		os.Unsetenv(k)
	}
	return func() {
		for _, k := range keys {
			if origSet[k] {
				os.Setenv(k, originals[k])
			} else {
				os.Unsetenv(k)
			}
		}
	}
}

// requiredVars — минимальный набор обязательных переменных для успешной загрузки.
func requiredVars() map[string]string {
	return map[string]string{
		"LAZYLLM_UPLOAD_PATH": "/data/uploads",
		"CM_DB_NAME":          "console",
		"CM_DB_USER":          "console",
		"CM_DB_PASSWORD":      "secret",
	}
}

// TestLoad_Defaults проверяет значения по умолчанию при минимальной конфигурации.
func TestLoad_Defaults(t *testing.T) {
	defer clearAllEnvVars(t)()
	defer setEnvVars(t, requiredVars())()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 5001 {
		t.Errorf("Port = %d, ожидался 5001", cfg.Port)
	}
	if cfg.UploadPath != "/data/uploads" {
		t.Errorf("UploadPath = %q, ожидался /data/uploads", cfg.UploadPath)
	}
	if cfg.Redis.Host != "localhost" {
		t.Errorf("Redis.Host = %q, ожидался localhost", cfg.Redis.Host)
	}
	if cfg.Redis.Port != 6379 {
		t.Errorf("Redis.Port = %d, ожидался 6379", cfg.Redis.Port)
	}
	if cfg.Redis.DB != 0 {
		t.Errorf("Redis.DB = %d, ожидался 0", cfg.Redis.DB)
	}
	if cfg.Redis.UseSSL {
		t.Error("Redis.UseSSL = true, ожидался false")
	}
	if cfg.Mail.SMTPPort != 465 {
		t.Errorf("Mail.SMTPPort = %d, ожидался 465", cfg.Mail.SMTPPort)
	}
	if cfg.Mail.SMTPUseTLS {
		t.Error("Mail.SMTPUseTLS = true, ожидался false")
	}
	if cfg.StatInterval != 24*time.Hour {
		t.Errorf("StatInterval = %v, ожидался 24h", cfg.StatInterval)
	}
	if cfg.CheckStatusInterval != time.Minute {
		t.Errorf("CheckStatusInterval = %v, ожидался 1m", cfg.CheckStatusInterval)
	}
	if cfg.TaskStaleTimeout != 2*time.Hour {
		t.Errorf("TaskStaleTimeout = %v, ожидался 2h", cfg.TaskStaleTimeout)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидался info", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидался json", cfg.LogFormat)
	}
}

// TestLoad_MissingRequired проверяет, что отсутствие обязательной переменной прерывает загрузку.
func TestLoad_MissingRequired(t *testing.T) {
	defer clearAllEnvVars(t)()

	vars := requiredVars()
	delete(vars, "LAZYLLM_UPLOAD_PATH")
	defer setEnvVars(t, vars)()

	_, err := Load()
	if err == nil {
		t.Fatal("ожидалась ошибка при отсутствии LAZYLLM_UPLOAD_PATH")
	}
	if !strings.Contains(err.Error(), "LAZYLLM_UPLOAD_PATH") {
		t.Errorf("ошибка не указывает на переменную: %v", err)
	}
}

// TestLoad_InvalidRedisDB проверяет отказ при отрицательном REDIS_DB.
func TestLoad_InvalidRedisDB(t *testing.T) {
	defer clearAllEnvVars(t)()

	vars := requiredVars()
	vars["REDIS_DB"] = "-1"
	defer setEnvVars(t, vars)()

	_, err := Load()
	if err == nil {
		t.Fatal("ожидалась ошибка при REDIS_DB=-1")
	}
}

// TestLoad_InvalidSMTPPort проверяет отказ при некорректном SMTP_PORT.
func TestLoad_InvalidSMTPPort(t *testing.T) {
	defer clearAllEnvVars(t)()

	for _, bad := range []string{"0", "-25", "abc"} {
		vars := requiredVars()
		vars["SMTP_PORT"] = bad
		cleanup := setEnvVars(t, vars)

		_, err := Load()
		cleanup()
		if err == nil {
			t.Errorf("SMTP_PORT=%q: ожидалась ошибка", bad)
		}
	}
}

// TestLoad_InvalidMailType проверяет отказ при неизвестном MAIL_TYPE.
func TestLoad_InvalidMailType(t *testing.T) {
	defer clearAllEnvVars(t)()

	vars := requiredVars()
	vars["MAIL_TYPE"] = "sendgrid"
	defer setEnvVars(t, vars)()

	_, err := Load()
	if err == nil {
		t.Fatal("ожидалась ошибка при MAIL_TYPE=sendgrid")
	}
}

// TestLoad_SMTPRequiresServer проверяет, что MAIL_TYPE=smtp требует SMTP_SERVER.
func TestLoad_SMTPRequiresServer(t *testing.T) {
	defer clearAllEnvVars(t)()

	vars := requiredVars()
	vars["MAIL_TYPE"] = "smtp"
	defer setEnvVars(t, vars)()

	_, err := Load()
	if err == nil {
		t.Fatal("ожидалась ошибка: MAIL_TYPE=smtp без SMTP_SERVER")
	}
}

// TestLoad_BoolParsing проверяет разбор булевых переменных.
func TestLoad_BoolParsing(t *testing.T) {
	defer clearAllEnvVars(t)()

	vars := requiredVars()
	vars["SMTP_USE_TLS"] = "1"
	vars["REDIS_USE_SSL"] = "yes"
	vars["SMTP_OPPORTUNISTIC_TLS"] = "false"
	defer setEnvVars(t, vars)()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if !cfg.Mail.SMTPUseTLS {
		t.Error("SMTP_USE_TLS=1: ожидался true")
	}
	if !cfg.Redis.UseSSL {
		t.Error("REDIS_USE_SSL=yes: ожидался true")
	}
	if cfg.Mail.SMTPOpportunisticTLS {
		t.Error("SMTP_OPPORTUNISTIC_TLS=false: ожидался false")
	}
}

// TestDatabaseDSN проверяет формирование DSN.
func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{
		DBHost:     "db.local",
		DBPort:     5433,
		DBName:     "console",
		DBUser:     "cm",
		DBPassword: "pw",
		DBSSLMode:  "require",
	}
	want := "postgres://cm:pw@db.local:5433/console?sslmode=require"
	if got := cfg.DatabaseDSN(); got != want {
		t.Errorf("DatabaseDSN() = %q, ожидался %q", got, want)
	}
}

// TestRedisAddr проверяет формирование адреса Redis.
func TestRedisAddr(t *testing.T) {
	r := RedisSettings{Host: "cache.local", Port: 6380}
	if got := r.Addr(); got != "cache.local:6380" {
		t.Errorf("Addr() = %q, ожидался cache.local:6380", got)
	}
}
