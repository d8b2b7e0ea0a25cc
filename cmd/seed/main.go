// Command seed creates the demo accounts used in local development. Accounts
// that already exist are left untouched, so it can be run repeatedly.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/auth"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/domain"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/repository"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/repository/postgres"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/migrations"
	pkgconfig "github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/config"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/database"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/logger"
)

// seedConfig is the subset of the server configuration the seeder needs.
// Token secrets are not required here.
type seedConfig struct {
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"safelanka"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"safelanka"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"safelanka"`
	PostgresSSL  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`
	BcryptCost   int    `env:"BCRYPT_COST" envDefault:"12"`
}

type seedUser struct {
	fullName string
	email    string
	password string
	role     domain.Role
	approved bool
	division string
}

var demoUsers = []seedUser{
	{"Admin User", "admin@safelanka.lk", "Admin@123", domain.RoleAdmin, true, ""},
	{"John Officer", "officer1@safelanka.lk", "Officer@123", domain.RoleOfficer, false, "Colombo"},
	{"Sarah Analyst", "analyst1@safelanka.lk", "Analyst@123", domain.RoleAnalyst, false, "Kandy"},
	{"Mike Officer", "officer2@safelanka.lk", "Officer@123", domain.RoleOfficer, true, "Gampaha"},
}

func main() {
	var cfg seedConfig
	if err := pkgconfig.Load(&cfg); err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.New("safelanka-seed", cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg seedConfig, log *slog.Logger) error {
	pool, err := database.NewPostgresPool(ctx, &database.PostgresConfig{
		Host:     cfg.PostgresHost,
		Port:     cfg.PostgresPort,
		User:     cfg.PostgresUser,
		Password: cfg.PostgresPass,
		DBName:   cfg.PostgresDB,
		SSLMode:  cfg.PostgresSSL,
		MaxConns: 2,
		MinConns: 1,
	}, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		return err
	}

	created, err := seedUsers(ctx, postgres.NewUserRepository(pool), auth.NewPasswordHasher(cfg.BcryptCost), log)
	if err != nil {
		return err
	}
	log.Info("seed complete", slog.Int("created", created), slog.Int("skipped", len(demoUsers)-created))
	return nil
}

// seedUsers inserts every demo account whose email is not yet registered and
// returns how many were created.
func seedUsers(ctx context.Context, users repository.UserRepository, hasher *auth.PasswordHasher, log *slog.Logger) (int, error) {
	created := 0
	for _, su := range demoUsers {
		exists, err := users.ExistsByEmail(ctx, su.email)
		if err != nil {
			return created, fmt.Errorf("check %s: %w", su.email, err)
		}
		if exists {
			log.Debug("account exists, skipping", slog.String("email", su.email))
			continue
		}

		hash, err := hasher.Hash(su.password)
		if err != nil {
			return created, err
		}
		u := &domain.User{
			FullName:     su.fullName,
			Email:        su.email,
			PasswordHash: hash,
			Role:         su.role,
			Approved:     su.approved,
		}
		if su.division != "" {
			division := su.division
			u.Division = &division
		}
		if err := users.Create(ctx, u); err != nil {
			return created, fmt.Errorf("create %s: %w", su.email, err)
		}
		log.Info("account created",
			slog.String("email", u.Email),
			slog.String("role", string(u.Role)),
			slog.Bool("approved", u.Approved),
		)
		created++
	}
	return created, nil
}
