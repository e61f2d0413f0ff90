package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed app/*.sql brokerstore/*.sql
var embedded embed.FS

// Target - набор миграций
type Target string

const (
	TargetApp         Target = "app"         // основная БД сервиса (postgres)
	TargetBrokerStore Target = "brokerstore" // хранилища брокеров (mysql)
)

func (t Target) dialect() (goose.Dialect, error) {
	switch t {
	case TargetApp:
		return goose.DialectPostgres, nil
	case TargetBrokerStore:
		return goose.DialectMySQL, nil
	default:
		return "", fmt.Errorf("unknown migration target %q", t)
	}
}

// newProvider создает goose провайдер для target
func newProvider(db *sql.DB, target Target) (*goose.Provider, error) {
	dialect, err := target.dialect()
	if err != nil {
		return nil, err
	}
	sub, err := fs.Sub(embedded, string(target))
	if err != nil {
		return nil, fmt.Errorf("migrations fs: %w", err)
	}
	return goose.NewProvider(dialect, db, sub)
}

// Up применяет все миграции target и возвращает количество примененных
func Up(ctx context.Context, db *sql.DB, target Target) (int, error) {
	p, err := newProvider(db, target)
	if err != nil {
		return 0, err
	}
	results, err := p.Up(ctx)
	if err != nil {
		return len(results), fmt.Errorf("migrate %s up: %w", target, err)
	}
	return len(results), nil
}

// DownOne откатывает последнюю миграцию target
func DownOne(ctx context.Context, db *sql.DB, target Target) error {
	p, err := newProvider(db, target)
	if err != nil {
		return err
	}
	if _, err := p.Down(ctx); err != nil {
		return fmt.Errorf("migrate %s down: %w", target, err)
	}
	return nil
}

// Version возвращает текущую версию схемы target
func Version(ctx context.Context, db *sql.DB, target Target) (int64, error) {
	p, err := newProvider(db, target)
	if err != nil {
		return 0, err
	}
	return p.GetDBVersion(ctx)
}
