package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Applies every migrations/*.sql file in name order. Statements are plain
// DDL with IF NOT EXISTS guards, so re-running is safe.
func main() {
	viper.SetConfigName("migrate")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("configs")
	viper.SetDefault("dir", "migrations")
	viper.AutomaticEnv()
	_ = viper.BindEnv("dsn", "DATABASE_DSN")
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			panic(fmt.Errorf("read config: %w", err))
		}
	}

	dsn := viper.GetString("dsn")
	if dsn == "" {
		panic("no dsn: set DATABASE_DSN or dsn in migrate.yaml")
	}

	if err := run(context.Background(), dsn, viper.GetString("dir")); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, dsn, dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return errors.Wrap(err, "glob migrations")
	}
	if len(files) == 0 {
		return errors.Errorf("no migrations under %s", dir)
	}
	sort.Strings(files)

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return errors.Wrap(err, "connect")
	}
	defer conn.Close(ctx)

	for _, file := range files {
		sql, err := os.ReadFile(file)
		if err != nil {
			return errors.Wrap(err, "read migration")
		}
		if _, err := conn.Exec(ctx, string(sql)); err != nil {
			return errors.Wrap(err, fmt.Sprintf("apply %s", filepath.Base(file)))
		}
		fmt.Printf("applied %s\n", filepath.Base(file))
	}
	return nil
}
