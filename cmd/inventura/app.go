package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/inventura/internal/accountability"
	"github.com/erazemk/inventura/internal/archive"
	"github.com/erazemk/inventura/internal/config"
	"github.com/erazemk/inventura/internal/connectivity"
	"github.com/erazemk/inventura/internal/data"
	"github.com/erazemk/inventura/internal/db"
	"github.com/erazemk/inventura/internal/model"
	"github.com/erazemk/inventura/internal/mutation"
	"github.com/erazemk/inventura/internal/propagation"
	"github.com/erazemk/inventura/internal/replica"
	"github.com/erazemk/inventura/internal/store"
)

// app is the wired set of components every command works with.
type app struct {
	cfg      config.Config
	db       *db.DB
	remote   *store.Remote
	replica  *replica.Replica
	manager  *replica.Manager
	conn     *connectivity.Controller
	hub      *propagation.Hub
	data     *data.Access
	protocol *mutation.Protocol
	engine   *accountability.Engine

	stopFollow func()
}

func openApp(ctx context.Context, cfg config.Config) (*app, error) {
	database, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}

	local, err := replica.Open(cfg.Replica)
	if err != nil {
		database.Close()
		return nil, err
	}

	a := &app{cfg: cfg, db: database, replica: local, protocol: mutation.New()}
	a.remote = store.NewRemote(database)
	a.manager = replica.NewManager(local, a.remote, a.protocol)
	if a.conn, err = connectivity.New(ctx, local, a.manager); err != nil {
		a.close()
		return nil, err
	}
	a.hub = propagation.NewHub(propagation.DefaultBuffer)
	a.stopFollow = a.hub.Follow(a.conn)
	a.data = data.New(a.conn, a.remote, local, a.hub)

	archiver, err := archive.New(ctx, cfg.Archive)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("setting up archive: %w", err)
	}
	a.engine = accountability.New(a.data, a.protocol, archiver)

	slog.Info("components ready", "database", database.Dialect, "replica", local.Path(),
		"mode", a.conn.CurrentMode(), "archive", cfg.Archive.Driver)
	return a, nil
}

func (a *app) close() {
	if a.stopFollow != nil {
		a.stopFollow()
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if err := a.replica.Close(); err != nil {
		slog.Error("closing replica", "error", err)
	}
	a.db.Close()
}

// bootstrapAdmin creates the first admin account when there are no users
// yet. It returns the generated password, or "" if accounts already exist.
func bootstrapAdmin(ctx context.Context, database *db.DB, username, unitID string) (string, error) {
	n, err := store.CountUsers(ctx, database)
	if err != nil {
		return "", err
	}
	if n > 0 {
		return "", nil
	}

	password, err := generatePassword(16)
	if err != nil {
		return "", fmt.Errorf("generating password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	if _, err := store.CreateUser(ctx, database, username, string(hash), model.RoleAdmin, unitID); err != nil {
		return "", fmt.Errorf("creating admin user: %w", err)
	}
	return password, nil
}

// printInitResult prints the admin account created on first run.
func printInitResult(database, username, unitID, password string) {
	fmt.Printf("Database ready: %s\n", database)
	fmt.Println()
	fmt.Println("Admin account created:")
	fmt.Printf("  Username: %s\n", username)
	fmt.Printf("  Unit:     %s\n", unitID)
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("Save this password. It cannot be recovered.")
	fmt.Println("The admin can change it after logging in.")
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
