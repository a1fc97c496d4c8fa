package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"task-manager/internal/auth"
	"task-manager/internal/config"
	"task-manager/internal/database"
	"task-manager/internal/event"
	"task-manager/internal/model"
	"task-manager/internal/repository"
	"task-manager/internal/service"
)

const usage = `usage:
  admin promote <email>
  admin demote <email>
  admin create <email> <name>`

type accountAdmin interface {
	SetRole(ctx context.Context, email string, role model.Role) (model.User, error)
	EnsureAdmin(ctx context.Context, name string, email string, password string) (model.User, error)
}

// readPassword reads without echo when stdin is a terminal.
var readPassword = func(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Password: ")
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		return string(raw), err
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.StoreDriver != config.StoreDriverPostgres {
		slog.Error("admin commands need STORE_DRIVER=postgres")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := database.New(ctx, cfg.DatabaseURL, 2, 1)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		slog.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	hasher, err := auth.NewPasswordHasher(cfg.BcryptCost, 1)
	if err != nil {
		slog.Error("failed to initialize password hasher", "error", err)
		os.Exit(1)
	}
	signer, err := auth.NewTokenSigner(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
	if err != nil {
		slog.Error("failed to initialize token signer", "error", err)
		os.Exit(1)
	}

	authService := service.NewAuthService(
		repository.NewUserRepository(db.Pool),
		repository.NewTokenRepository(db.Pool),
		hasher,
		signer,
		event.NewBus(),
	)

	if err := run(ctx, authService, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		db.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, admin accountAdmin, args []string, in io.Reader, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	switch cmd := args[0]; cmd {
	case "promote", "demote":
		if len(args) != 2 {
			return errors.New(usage)
		}
		role := model.RoleAdmin
		if cmd == "demote" {
			role = model.RoleUser
		}
		user, err := admin.SetRole(ctx, args[1], role)
		if err != nil {
			return fmt.Errorf("%s %s: %w", cmd, args[1], err)
		}
		fmt.Fprintf(out, "%s is now %s\n", user.Email, user.Role)
		return nil

	case "create":
		if len(args) < 3 {
			return errors.New(usage)
		}
		name := strings.Join(args[2:], " ")
		password, err := readPassword(in, out)
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		req := model.RegisterRequest{Name: name, Email: args[1], Password: password}
		if err := req.Normalize(); err != nil {
			return err
		}
		user, err := admin.EnsureAdmin(ctx, req.Name, req.Email, req.Password)
		if err != nil {
			return fmt.Errorf("create %s: %w", req.Email, err)
		}
		fmt.Fprintf(out, "%s (%s) is admin\n", user.Email, user.ID)
		return nil

	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}
