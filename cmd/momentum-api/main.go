package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/momentum/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/momentum/backend/internal/config"
	"github.com/MarcoPoloResearchLab/momentum/backend/internal/database"
	"github.com/MarcoPoloResearchLab/momentum/backend/internal/directory"
	"github.com/MarcoPoloResearchLab/momentum/backend/internal/ids"
	"github.com/MarcoPoloResearchLab/momentum/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/momentum/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/momentum/backend/internal/participation"
	"github.com/MarcoPoloResearchLab/momentum/backend/internal/points"
	"github.com/MarcoPoloResearchLab/momentum/backend/internal/review"
	"github.com/MarcoPoloResearchLab/momentum/backend/internal/server"
	"github.com/MarcoPoloResearchLab/momentum/backend/internal/submissions"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile   string
	tokenUser string
	tokenRole string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "momentum-api",
		Short: "Momentum engagement platform backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a backend token for a user id and role",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(cmd.Context())
		},
	}
	tokenCmd.Flags().StringVar(&tokenUser, "user-id", "", "Subject user id for the token")
	tokenCmd.Flags().StringVar(&tokenRole, "role", auth.RoleMember, "Role claim (member or moderator)")
	rootCmd.AddCommand(tokenCmd)

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("token.ttl_minutes"), "Backend token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Backend signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "token.ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runToken(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	issuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.TokenIssuer,
		Audience:      appConfig.TokenAudience,
		TokenTTL:      appConfig.TokenTTL,
	})
	token, expiresIn, err := issuer.IssueToken(ctx, tokenUser, tokenRole)
	if err != nil {
		return err
	}
	fmt.Printf("%s\nexpires in %ds\n", token, expiresIn)
	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	tokenIssuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.TokenIssuer,
		Audience:      appConfig.TokenAudience,
		TokenTTL:      appConfig.TokenTTL,
	})

	idProvider := ids.NewUUIDProvider()

	directoryService, err := directory.NewService(directory.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	realtime := notifications.NewDispatcher()
	notificationService, err := notifications.NewService(notifications.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Publisher:  realtime,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	// The tracker and the ledger reference each other (account creation on
	// join, earnings reconciliation on read); the closure defers the tracker
	// lookup until after both are constructed.
	var tracker *participation.Tracker
	ledger, err := points.NewLedger(points.LedgerConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Earnings: points.EarningsFunc(func(ctx context.Context, userID string) (int64, error) {
			return tracker.CompletedEarnings(ctx, userID)
		}),
		Roster: directoryService,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	tracker, err = participation.NewTracker(participation.TrackerConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Challenges: server.ParticipationChallenges{Directory: directoryService},
		Accounts:   ledger,
		Notifier:   notificationService,
		Roster:     directoryService,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	submissionStore, err := submissions.NewStore(submissions.StoreConfig{
		Database:       db,
		Clock:          time.Now,
		IDProvider:     idProvider,
		Participations: tracker,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	reviewService, err := review.NewService(review.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		Challenges: server.ReviewChallenges{Directory: directoryService},
		Ledger:     ledger,
		Notifier:   notificationService,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Tokens:         tokenIssuer,
		Directory:      directoryService,
		Participations: tracker,
		Submissions:    submissionStore,
		Reviews:        reviewService,
		Ledger:         ledger,
		Notifications:  notificationService,
		Realtime:       realtime,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
