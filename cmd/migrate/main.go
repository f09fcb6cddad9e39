package main

import (
	"errors"
	"log"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	"github.com/saeid-a/CalibrateBack/internal/logger"
	"go.uber.org/zap"
)

type migrateConfig struct {
	DBUrl    string `env:"DB_URL,required"`
	AppEnv   string `env:"APP_ENV" envDefault:"production"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg, err := env.ParseAs[migrateConfig]()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	zlog, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	migrationsPath, err := findMigrations()
	if err != nil {
		zlog.Fatal("locate migrations", zap.Error(err))
	}

	m, err := migrate.New("file://"+migrationsPath, cfg.DBUrl)
	if err != nil {
		zlog.Fatal("open migrations", zap.Error(err))
	}
	defer m.Close()

	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "down":
		err = m.Down()
	case "up":
		err = m.Up()
	default:
		zlog.Fatal("unknown command, use up or down", zap.String("command", cmd))
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		zlog.Fatal("migration failed", zap.String("command", cmd), zap.Error(err))
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		zlog.Warn("read migration version", zap.Error(err))
	}
	zlog.Info("migration complete",
		zap.String("command", cmd),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty))
}

// findMigrations looks for migrations/ above the working directory and
// next to the executable.
func findMigrations() (string, error) {
	candidates := []string{}
	if cwd, err := os.Getwd(); err == nil {
		current := cwd
		for i := 0; i < 6; i++ {
			candidates = append(candidates, filepath.Join(current, "migrations"))
			parent := filepath.Dir(current)
			if parent == current {
				break
			}
			current = parent
		}
	}
	if exePath, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exePath)
		candidates = append(candidates,
			filepath.Join(exeDir, "migrations"),
			filepath.Join(exeDir, "..", "migrations"),
			filepath.Join(exeDir, "..", "..", "migrations"),
		)
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && info.IsDir() {
			return filepath.Abs(candidate)
		}
	}
	return "", errors.New("migrations directory not found")
}
