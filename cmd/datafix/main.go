// main.go — одноразовые корректировки данных Console Module.
// Запускается вручную, не участвует в штатной работе сервиса.
//
// Подкоманды:
//
//	rewrite-icon-paths   — переписать префикс stored_path у иконок
//	                       на DEFAULT_ICON_PATH (или заданный --to)
//	backfill-file-owner  — заполнить пустой uploaded_by у записей,
//	                       загруженных до введения аутентификации
//
// Каждая корректировка идемпотентна: условия WHERE выбирают только
// неисправленные строки, повторный запуск ничего не меняет.
// Обновления выполняются батчами, каждый батч — в своей транзакции.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/golazyllm/console-module/internal/config"
	"github.com/bigkaa/golazyllm/console-module/internal/database"
	"github.com/bigkaa/golazyllm/console-module/internal/repository"
)

// batchSize — количество строк, обновляемых за одну транзакцию.
const batchSize = 500

func main() {
	if err := run(); err != nil {
		log.Fatalf("datafix завершился с ошибкой: %v", err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Использование: datafix <rewrite-icon-paths|backfill-file-owner> [флаги]")
	os.Exit(2)
}

func run() error {
	if len(os.Args) < 2 {
		usage()
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("загрузка конфигурации: %w", err)
	}
	logger := config.SetupLogger(cfg)

	ctx := context.Background()

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("подключение к PostgreSQL: %w", err)
	}
	defer pool.Close()

	txr := repository.NewTxRunner(pool)

	switch os.Args[1] {
	case "rewrite-icon-paths":
		fs := flag.NewFlagSet("rewrite-icon-paths", flag.ExitOnError)
		from := fs.String("from", "", "старый префикс пути (обязательный)")
		to := fs.String("to", cfg.DefaultIconPath, "новый префикс пути")
		_ = fs.Parse(os.Args[2:])

		if *from == "" {
			return fmt.Errorf("флаг --from обязателен")
		}
		if *to == "" {
			return fmt.Errorf("новый префикс пуст: задайте --to или DEFAULT_ICON_PATH")
		}
		if strings.HasPrefix(*to, *from) {
			// Иначе каждая итерация находила бы уже исправленные строки
			return fmt.Errorf("новый префикс %q не должен начинаться со старого %q", *to, *from)
		}
		return rewriteIconPaths(ctx, txr, logger, *from, *to)

	case "backfill-file-owner":
		fs := flag.NewFlagSet("backfill-file-owner", flag.ExitOnError)
		owner := fs.String("owner", "", "account id владельца для legacy-записей (обязательный)")
		_ = fs.Parse(os.Args[2:])

		if *owner == "" {
			return fmt.Errorf("флаг --owner обязателен")
		}
		return backfillFileOwner(ctx, txr, logger, *owner)

	default:
		usage()
		return nil
	}
}

// rewriteIconPaths заменяет префикс from на to в stored_path записей
// uploaded_files. Выбираются только строки со старым префиксом,
// поэтому повторный запуск — no-op.
func rewriteIconPaths(ctx context.Context, txr *repository.TxRunner, logger *slog.Logger, from, to string) error {
	const query = `
		UPDATE uploaded_files
		SET stored_path = $2 || substring(stored_path FROM char_length($1) + 1)
		WHERE file_id IN (
			SELECT file_id FROM uploaded_files
			WHERE stored_path LIKE $1 || '%'
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)`

	total, err := runBatched(ctx, txr, query, from, to)
	if err != nil {
		return err
	}

	logger.Info("Префиксы путей переписаны",
		slog.String("from", from),
		slog.String("to", to),
		slog.Int64("rows", total),
	)
	return nil
}

// backfillFileOwner заполняет пустой uploaded_by указанным владельцем.
// Строки с уже заполненным владельцем не затрагиваются.
func backfillFileOwner(ctx context.Context, txr *repository.TxRunner, logger *slog.Logger, owner string) error {
	const query = `
		UPDATE uploaded_files
		SET uploaded_by = $1
		WHERE file_id IN (
			SELECT file_id FROM uploaded_files
			WHERE uploaded_by = ''
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)`

	total, err := runBatched(ctx, txr, query, owner)
	if err != nil {
		return err
	}

	logger.Info("Владелец заполнен у legacy-записей",
		slog.String("owner", owner),
		slog.Int64("rows", total),
	)
	return nil
}

// runBatched выполняет query батчами до исчерпания подходящих строк.
// Последним аргументом query должен принимать размер батча.
func runBatched(ctx context.Context, txr *repository.TxRunner, query string, args ...any) (int64, error) {
	var total int64
	for {
		var affected int64
		err := txr.RunInTx(ctx, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, query, append(args, batchSize)...)
			if err != nil {
				return err
			}
			affected = tag.RowsAffected()
			return nil
		})
		if err != nil {
			return total, fmt.Errorf("ошибка батча обновления: %w", err)
		}
		total += affected
		if affected == 0 {
			return total, nil
		}
	}
}
