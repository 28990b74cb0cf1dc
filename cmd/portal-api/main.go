package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/parteiportal/backend/internal/address"
	"github.com/parteiportal/backend/internal/antrag"
	"github.com/parteiportal/backend/internal/auth"
	"github.com/parteiportal/backend/internal/config"
	"github.com/parteiportal/backend/internal/database"
	"github.com/parteiportal/backend/internal/faq"
	"github.com/parteiportal/backend/internal/groups"
	"github.com/parteiportal/backend/internal/identifier"
	"github.com/parteiportal/backend/internal/logging"
	"github.com/parteiportal/backend/internal/mailer"
	"github.com/parteiportal/backend/internal/newsletter"
	"github.com/parteiportal/backend/internal/server"
	"github.com/parteiportal/backend/internal/statusreport"
	"github.com/parteiportal/backend/internal/storage"
	"github.com/parteiportal/backend/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "portal-api",
		Short: "Mitgliederportal backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

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
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("session-cookie-name", defaults.GetString("session.cookie_name"), "Session cookie name")
	cmd.PersistentFlags().Int("session-ttl-minutes", defaults.GetInt("session.ttl_minutes"), "Session TTL in minutes")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().String("mail-base-url", defaults.GetString("mail.base_url"), "Mail API base URL")
	cmd.PersistentFlags().String("mail-from", defaults.GetString("mail.from"), "Mail sender address")
	cmd.PersistentFlags().String("storage-base-url", defaults.GetString("storage.base_url"), "Blob storage API base URL")
	cmd.PersistentFlags().String("storage-bucket", defaults.GetString("storage.bucket"), "Blob storage bucket")
	cmd.PersistentFlags().Int("newsletter-chunk-size", defaults.GetInt("newsletter.chunk_size"), "Recipients per send chunk")
	cmd.PersistentFlags().StringSlice("redirect-allowed-hosts", defaults.GetStringSlice("newsletter.redirect_allowed_hosts"), "Hosts allowed as click-tracking redirect targets")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "session.cookie_name", "session-cookie-name")
	bindFlag(cmd, "session.ttl_minutes", "session-ttl-minutes")
	bindFlag(cmd, "session.signing_secret", "signing-secret")
	bindFlag(cmd, "mail.base_url", "mail-base-url")
	bindFlag(cmd, "mail.from", "mail-from")
	bindFlag(cmd, "storage.base_url", "storage-base-url")
	bindFlag(cmd, "storage.bucket", "storage-bucket")
	bindFlag(cmd, "newsletter.chunk_size", "newsletter-chunk-size")
	bindFlag(cmd, "newsletter.redirect_allowed_hosts", "redirect-allowed-hosts")
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

	sessionIssuer := auth.NewSessionIssuer(auth.SessionIssuerConfig{
		SigningSecret: []byte(appConfig.SessionSigningKey),
		Issuer:        appConfig.SessionIssuer,
		SessionTTL:    appConfig.SessionTTL,
	})
	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SessionSigningKey),
		Issuer:        appConfig.SessionIssuer,
		CookieName:    appConfig.SessionCookieName,
	})
	if err != nil {
		return err
	}

	idProvider := identifier.NewUUIDProvider()

	userService, err := users.NewService(users.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	groupService, err := groups.NewService(groups.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	reportService, err := statusreport.NewService(statusreport.ServiceConfig{
		Database:   db,
		Groups:     groupService,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	faqService, err := faq.NewService(faq.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	antragService, err := antrag.NewService(antrag.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	addressService, err := address.NewService(address.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	mailClient, err := mailer.New(mailer.Config{
		BaseURL: appConfig.MailBaseURL,
		APIKey:  appConfig.MailAPIKey,
		From:    appConfig.MailFrom,
		ReplyTo: appConfig.MailReplyTo,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	progress := server.NewProgressDispatcher()
	newsletterService, err := newsletter.NewService(newsletter.ServiceConfig{
		Database:    db,
		Mailer:      mailClient,
		Admins:      userService,
		Progress:    progress,
		IDProvider:  idProvider,
		ChunkSize:   appConfig.NewsletterChunkSize,
		MaxAttempts: appConfig.NewsletterMaxAttempts,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	blobClient, err := storage.NewClient(storage.ClientConfig{
		BaseURL: appConfig.StorageBaseURL,
		APIKey:  appConfig.StorageAPIKey,
		Bucket:  appConfig.StorageBucket,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	uploadService, err := storage.NewService(storage.ServiceConfig{
		Database:   db,
		Client:     blobClient,
		IDProvider: idProvider,
		MaxBytes:   appConfig.UploadMaxBytes,
		DedupTTL:   appConfig.UploadDedupTTL,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	generator, err := newsletter.NewGenAIGenerator(ctx, appConfig.GenAIAPIKey, appConfig.GenAIModel)
	if err != nil {
		if !errors.Is(err, newsletter.ErrAssistDisabled) {
			return err
		}
		logger.Info("newsletter assist disabled, no model key configured")
		generator = nil
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		SessionValidator: sessionValidator,
		SessionIssuer:    sessionIssuer,
		Users:            userService,
		Groups:           groupService,
		StatusReports:    reportService,
		Faq:              faqService,
		Antraege:         antragService,
		Addresses:        addressService,
		Newsletters:      newsletterService,
		Uploads:          uploadService,
		Generator:        generator,
		Progress:         progress,
		RedirectHosts:    appConfig.RedirectAllowedHosts,
		Logger:           logger,
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
