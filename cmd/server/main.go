package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"notekeeper/internal/auth"
	"notekeeper/internal/backup"
	"notekeeper/internal/config"
	apphttp "notekeeper/internal/http"
	"notekeeper/internal/repository"
	"notekeeper/internal/repository/sqlite"
	"notekeeper/internal/service"
	"notekeeper/internal/storage"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the notes API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	cmd := &cobra.Command{
		Use:           "notekeeper",
		Short:         "Personal notes API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}

	cmd.AddCommand(serve)
	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			a.logger.Infof("schema of %s is up to date", a.cfg.Database.Path)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "backup",
		Short: "Upload one database snapshot to the backup bucket and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackup(cmd.Context())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("notekeeper version %s\n", version)
		},
	})

	return cmd
}

// app holds what every subcommand needs: configuration, a logger and an
// initialized database.
type app struct {
	cfg    config.Config
	logger *logrus.Logger
	db     *sql.DB
	users  repository.UserRepository
	notes  repository.NoteRepository
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.UsingDevSecret {
		logger.Warn("auth jwt secret is not set, signing tokens with the development default; never run like this in production")
	}

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	userRepo := sqlite.NewUserRepository(db)
	noteRepo := sqlite.NewNoteRepository(db)

	// users first, notes reference them
	if err := userRepo.Init(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init user repository: %w", err)
	}
	if err := noteRepo.Init(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init note repository: %w", err)
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		db:     db,
		users:  userRepo,
		notes:  noteRepo,
	}, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warnf("close database: %v", err)
	}
}

func newLogger(cfg config.Config) (*logrus.Logger, error) {
	logger := logrus.New()
	if strings.EqualFold(cfg.Log.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	logger.SetLevel(level)
	return logger, nil
}

func runServe(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	logger := a.logger

	tokens, err := auth.NewTokenManager(a.cfg.Auth.JWTSecret, a.cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("setup tokens: %w", err)
	}
	authService, err := service.NewAuthService(a.users, tokens, a.cfg.Auth.BcryptCost)
	if err != nil {
		return fmt.Errorf("setup auth service: %w", err)
	}
	noteService := service.NewNoteService(a.notes)

	var backups backup.Manager
	if a.cfg.Backup.Bucket != "" {
		storageSvc, err := buildStorage(ctx, a.cfg, logger)
		if err != nil {
			return fmt.Errorf("setup storage: %w", err)
		}
		backups = newBackupManager(a, storageSvc)
		if err := backups.Start(ctx); err != nil {
			return fmt.Errorf("start backups: %w", err)
		}
	} else {
		logger.Info("backup bucket not configured, database backups disabled")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	apphttp.NewHandler(authService, noteService, logger).RegisterRoutes(router)

	srv := &http.Server{
		Addr:         a.cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s (%s)", a.cfg.Server.Addr, a.cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down...")
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	if backups != nil {
		backups.Shutdown()
	}

	logger.Info("bye")
	return runErr
}

func runBackup(ctx context.Context) error {
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if a.cfg.Backup.Bucket == "" {
		return fmt.Errorf("backup bucket is required")
	}
	storageSvc, err := buildStorage(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("setup storage: %w", err)
	}

	location, err := newBackupManager(a, storageSvc).RunOnce(ctx)
	if err != nil {
		return err
	}
	a.logger.WithField("location", location).Info("database backup uploaded")
	return nil
}

func newBackupManager(a *app, store storage.Service) backup.Manager {
	return backup.NewManager(backup.Config{
		Bucket:    a.cfg.Backup.Bucket,
		KeyPrefix: a.cfg.Backup.KeyPrefix,
		Interval:  a.cfg.Backup.Interval,
		Keep:      a.cfg.Backup.Keep,
		Logger:    a.logger,
	}, a.db, store)
}

func buildStorage(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Service, error) {
	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Backup.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Backup.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Backup.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("using s3 bucket %s (region %s)", cfg.Backup.Bucket, cfg.Backup.Region)
	return storage.NewS3Service(client), nil
}
