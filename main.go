package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coedit/internal/activity"
	activityStorage "coedit/internal/activity/storage"
	"coedit/internal/api"
	"coedit/internal/auth"
	"coedit/internal/cache"
	"coedit/internal/commit"
	commitStorage "coedit/internal/commit/storage"
	"coedit/internal/config"
	"coedit/internal/directory"
	directoryStorage "coedit/internal/directory/storage"
	"coedit/internal/execution"
	executionStorage "coedit/internal/execution/storage"
	"coedit/internal/logging"
	"coedit/internal/mail"
	"coedit/internal/safe"
	mongoStorage "coedit/internal/storage/mongo"
	"coedit/internal/user"
	userStorage "coedit/internal/user/storage"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// stores is one backend's set of boxes plus whatever must be closed on exit.
type stores struct {
	users      user.Box
	projects   directory.ProjectBox
	files      directory.FileBox
	commits    commit.Box
	activity   activity.Box
	executions execution.Box
	closers    []func() error
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func main() {
	configPath := flag.String("config", "", "path to a JSON or TOML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("failed to load config:", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid config:", err)
	}

	// Initialize logger
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger:", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open storage", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	defer st.Close()

	summaries, err := openCache(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to open cache", zap.String("driver", cfg.Cache.Driver), zap.Error(err))
	}

	var mailer mail.Mailer = mail.NewLogMailer(logger)
	if cfg.Email.Host != "" {
		mailer = mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			User:     cfg.Email.User,
			Password: cfg.Email.Password,
		})
	}

	judge0, err := execution.NewJudge0(execution.Judge0Config{
		URL:          cfg.Execution.URL,
		APIKey:       cfg.Execution.APIKey,
		PollInterval: cfg.Execution.PollInterval,
		MaxAttempts:  cfg.Execution.MaxAttempts,
	}, nil)
	if err != nil {
		logger.Fatal("failed to configure execution", zap.Error(err))
	}

	// Initialize services
	recorder := activity.NewRecorder(st.activity, logger)
	authSvc := auth.NewService(st.users, auth.NewBcryptHasher(0), auth.NewIssuer(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL), logger)
	dirSvc := directory.NewService(directory.Deps{
		Projects:    st.projects,
		Files:       st.files,
		Commits:     st.commits,
		Users:       st.users,
		Mailer:      mailer,
		Activity:    recorder,
		FrontendURL: cfg.Server.FrontendURL,
		Logger:      logger,
	})
	commitSvc := commit.NewService(st.commits, dirSvc, user.NewResolver(st.users, summaries, logger), recorder, logger)
	execSvc := execution.NewService(judge0, st.executions, dirSvc, recorder, logger)

	handler := api.NewRouter(api.Handlers{
		Auth:      api.NewAuthHandler(authSvc, cfg.Environment == "production", logger),
		Commits:   api.NewCommitHandler(commitSvc, logger),
		Directory: api.NewDirectoryHandler(dirSvc, logger),
		Compile:   api.NewCompileHandler(execSvc, logger),
	}, api.RouterConfig{
		AllowedOrigin: cfg.Server.FrontendURL,
		Verifier:      authSvc,
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("address", srv.Addr), zap.String("database", cfg.Database.Driver))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*stores, error) {
	if cfg.Database.Driver == "mongo" {
		client, err := mongoStorage.NewClient(ctx, cfg.Database.MongoURI)
		if err != nil {
			return nil, err
		}
		db := client.Database(cfg.Database.MongoDatabase)
		if err := mongoStorage.EnsureIndexes(ctx, db); err != nil {
			client.Disconnect(context.Background())
			return nil, err
		}
		return &stores{
			users:      mongoStorage.NewUserStore(db),
			projects:   mongoStorage.NewProjectStore(db),
			files:      mongoStorage.NewFileStore(db),
			commits:    mongoStorage.NewCommitStore(db),
			activity:   mongoStorage.NewActivityStore(db),
			executions: mongoStorage.NewExecutionStore(db),
			closers:    []func() error{func() error { return client.Disconnect(context.Background()) }},
		}, nil
	}

	opts := badger.DefaultOptions(cfg.Database.Path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	sf, err := safe.New(db, safe.DefaultOptions())
	if err != nil {
		db.Close()
		return nil, err
	}
	commits, err := commitStorage.NewStore(db, sf)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("badger storage opened", zap.String("path", cfg.Database.Path))

	return &stores{
		users:      userStorage.NewStore(db),
		projects:   directoryStorage.NewProjectStore(db),
		files:      directoryStorage.NewFileStore(db),
		commits:    commits,
		activity:   activityStorage.NewStore(db),
		executions: executionStorage.NewStore(db),
		closers:    []func() error{db.Close, commits.Close},
	}, nil
}

func openCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	if cfg.Cache.Driver == "redis" {
		client, err := cache.DialRedis(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword)
		if err != nil {
			return nil, err
		}
		return cache.NewRedis(client, "coedit:", cfg.Cache.TTL), nil
	}
	return cache.NewLRU(cfg.Cache.Size, cfg.Cache.TTL), nil
}
