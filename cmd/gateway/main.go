package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	api "github.com/mind-engage/mindengage-training/internal/api/http"
	"github.com/mind-engage/mindengage-training/internal/auth"
	"github.com/mind-engage/mindengage-training/internal/config"
	"github.com/mind-engage/mindengage-training/internal/content"
	"github.com/mind-engage/mindengage-training/internal/db"
	"github.com/mind-engage/mindengage-training/internal/eventlog"
	"github.com/mind-engage/mindengage-training/internal/instance"
	"github.com/mind-engage/mindengage-training/internal/logging"
	"github.com/mind-engage/mindengage-training/internal/reservation"
	"github.com/mind-engage/mindengage-training/internal/session"
	"github.com/mind-engage/mindengage-training/internal/storage"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "gateway",
		Short:        "Training platform exam API",
		SilenceUsage: true,
	}

	serve := serveCmd()
	root.AddCommand(serve, sweepCmd(), useraddCmd())

	// "serve" is the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

// commonFlags are shared by every subcommand that touches the database.
func commonFlags(f *pflag.FlagSet) {
	f.String("db-driver", "sqlite", "Database driver (sqlite, postgres)")
	f.String("db-dsn", "", "Database DSN (driver default when empty)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}
	f := cmd.Flags()
	commonFlags(f)
	f.String("mode", "offline", "Deployment mode (offline, online)")
	f.StringP("http-addr", "a", ":8080", "HTTP listen address")
	f.String("blob-base-path", "./data", "Directory for uploaded submission files")
	f.String("redis-addr", "localhost:6379", "Redis address for slot reservations (empty disables them)")
	f.Duration("slot-ttl", 60*time.Second, "Slot reservation expiry")
	f.Duration("sweep-interval", 5*time.Minute, "Interval between instance status sweeps (0 disables)")
	f.Bool("enable-local-auth", true, "Serve POST /auth/login")
	return cmd
}

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Apply time-driven exam instance transitions once and exit",
		RunE:  runSweep,
	}
	commonFlags(cmd.Flags())
	return cmd
}

func useraddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "useradd",
		Short: "Create a local account",
		RunE:  runUseradd,
	}
	f := cmd.Flags()
	commonFlags(f)
	f.StringP("username", "u", "", "Login name (required)")
	f.StringP("password", "p", "", "Password (or set TRAINING_PASSWORD)")
	f.StringP("role", "r", "learner", "Role (learner, instructor, admin)")
	f.String("full-name", "", "Display name (defaults to the username)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("TRAINING")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("training")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/training")
	v.AddConfigPath("/etc/training")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	}
	return v
}

// setup loads config, installs the default logger and opens the database.
func setup(cmd *cobra.Command) (config.Config, *viper.Viper, *sql.DB, error) {
	v := viperForCmd(cmd)
	cfg := config.Load(v)
	slog.SetDefault(logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr))
	if f := v.ConfigFileUsed(); f != "" {
		slog.Info("loaded config file", "path", f)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		return cfg, v, nil, fmt.Errorf("open database: %w", err)
	}
	return cfg, v, dbh, nil
}

type services struct {
	content   *content.Service
	instances *instance.Service
	sessions  *session.Service
}

func newServices(dbh *sql.DB, log *slog.Logger) services {
	cstore := content.NewSQLStore(dbh)
	istore := instance.NewSQLStore(dbh)
	cs := content.NewService(cstore, log)
	return services{
		content:   cs,
		instances: instance.NewService(istore, cs, log),
		sessions: session.NewService(session.Deps{
			DB:        dbh,
			Content:   cstore,
			Instances: istore,
			Owner:     cs,
			Events:    eventlog.NewRepo(dbh, ""),
			Log:       log,
		}),
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, _, dbh, err := setup(cmd)
	if err != nil {
		return err
	}
	defer dbh.Close()
	log := slog.Default()
	svc := newServices(dbh, log)

	bs, err := storage.NewFSStore(cfg.BlobBasePath, storage.MountPath)
	if err != nil {
		return fmt.Errorf("blob store: %w", err)
	}

	var (
		lock *reservation.Lock
		rdb  *redis.Client
	)
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		lock = reservation.NewLock(rdb, cfg.SlotTTL)
	} else {
		log.Warn("redis-addr empty, slot reservations disabled")
	}

	if cfg.Mode == config.ModeOnline && cfg.AuthHMACSecret == config.DevSecret {
		log.Warn("online mode with the development token secret; set TRAINING_AUTH_HMAC_SECRET")
	}
	jwtAuth := auth.NewJWTAuthenticator(cfg.AuthHMACSecret, cfg.TokenTTL)
	h := api.NewRouter(api.Deps{
		Auth:        jwtAuth,
		Credentials: auth.NewAccounts(dbh),
		Tokens:      jwtAuth,
		Content:     svc.content,
		Instances:   svc.instances,
		Sessions:    svc.sessions,
		Lock:        lock,
		Blobs:       bs,
		Ready: func(ctx context.Context) error {
			if err := dbh.PingContext(ctx); err != nil {
				return err
			}
			if rdb != nil {
				return rdb.Ping(ctx).Err()
			}
			return nil
		},
		CORSOrigins:     cfg.CORSOrigins(),
		EnableLocalAuth: cfg.EnableLocalAuth,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.SweepInterval > 0 {
		go instance.NewSweeper(svc.instances, cfg.SweepInterval, log).Run(ctx)
	}

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.HTTPAddr, "mode", cfg.Mode, "db", cfg.DBDriver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runSweep(cmd *cobra.Command, _ []string) error {
	_, _, dbh, err := setup(cmd)
	if err != nil {
		return err
	}
	defer dbh.Close()
	svc := newServices(dbh, slog.Default())
	res, err := instance.NewSweeper(svc.instances, 0, slog.Default()).RunOnce(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "opened=%d closed=%d published=%d\n", res.Opened, res.Closed, res.Published)
	return nil
}

func runUseradd(cmd *cobra.Command, _ []string) error {
	_, v, dbh, err := setup(cmd)
	if err != nil {
		return err
	}
	defer dbh.Close()
	acc, err := auth.NewAccounts(dbh).Create(cmd.Context(), auth.NewAccount{
		Username: v.GetString("username"),
		Password: v.GetString("password"),
		Role:     v.GetString("role"),
		FullName: v.GetString("full-name"),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %s account %s (%s)\n", acc.Role, acc.Username, acc.ID)
	return nil
}
