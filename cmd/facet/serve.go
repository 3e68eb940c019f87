package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/facet-dev/facet/internal/audit"
	"github.com/facet-dev/facet/internal/config"
	"github.com/facet-dev/facet/internal/convert"
	"github.com/facet-dev/facet/internal/entity"
	"github.com/facet-dev/facet/internal/extid"
	"github.com/facet-dev/facet/internal/meta"
	"github.com/facet-dev/facet/internal/repo"
	"github.com/facet-dev/facet/internal/store"
	"github.com/facet-dev/facet/internal/web"
	"github.com/facet-dev/facet/internal/web/server"
)

var servePort int

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Override the configured server port")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST server",
	Long:  "Load configuration, connect to the database, and serve the projection resources",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fatal("failed to load configuration: %v", err)
		}
		if servePort > 0 {
			cfg.Server.Port = servePort
		}

		log, err := buildLogger(cfg.Logging)
		if err != nil {
			return fatal("failed to build logger: %v", err)
		}
		defer log.Sync()

		registry, err := cfg.BuildRegistry()
		if err != nil {
			return fatal("invalid entity model: %v", err)
		}
		resolver := entity.NewResolver(registry)
		resolver.Init()
		log.Info("entity model loaded", zap.Int("classes", registry.Count()))

		dbURL := cfg.DatabaseURL()
		if dbURL == "" {
			return fatal("no database URL configured (set database.url or DATABASE_URL)")
		}
		db, err := sql.Open("pgx", dbURL)
		if err != nil {
			return fatal("failed to open database: %v", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

		pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelPing()
		if err := db.PingContext(pingCtx); err != nil {
			return fatal("database unreachable: %v", err)
		}

		metaSvc := meta.NewService(meta.NewSQLStore(db), log)

		var mapper extid.Mapper
		if cfg.Redis.Addr != "" {
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer client.Close()
			mapper = extid.NewRedisMapper(client)
			log.Info("external-id store: redis", zap.String("addr", cfg.Redis.Addr))
		} else {
			mapper = extid.NewMemoryMapper()
			log.Info("external-id store: in-memory")
		}

		translator := extid.NewTranslator(mapper, metaSvc)
		stamper := audit.NewStamper(func(ctx context.Context) string {
			return cfg.Audit.DefaultUser
		})
		qualifiers := convert.NewQualifierRegistry()

		pg := store.NewPostgres(db, resolver)
		converter := convert.NewConverter(metaSvc, resolver, pg, translator, qualifiers, stamper, log)
		repository := repo.New(metaSvc, resolver, pg, pg, converter, translator, mapper, nil, nil, log)

		if cfg.Metadata.Preload {
			preloadCtx, cancelPreload := context.WithTimeout(context.Background(), 30*time.Second)
			if err := metaSvc.Preload(preloadCtx); err != nil {
				log.Warn("metadata preload failed", zap.Error(err))
			}
			cancelPreload()
		}

		handler := web.NewHandler(repository, metaSvc, log)
		router := web.NewRouter(handler, log, web.RouterConfig{APIPrefix: cfg.Server.APIPrefix})

		srvCfg := server.DefaultConfig()
		srvCfg.Host = cfg.Server.Host
		srvCfg.Port = cfg.Server.Port
		srv := server.New(router, srvCfg, log)

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			if err != nil {
				return fatal("%v", err)
			}
		case sig := <-sigCh:
			log.Info("signal received", zap.String("signal", sig.String()))
			if err := srv.Shutdown(context.Background()); err != nil {
				return fatal("%v", err)
			}
		}

		return nil
	},
}

// buildLogger creates the zap logger from the logging configuration
func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zapCfg := zap.NewProductionConfig()
	if !cfg.JSON {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}

// fatal prints a red error line and returns it for cobra to propagate
func fatal(format string, args ...interface{}) error {
	err := fmt.Errorf(format, args...)
	color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "Error: %v\n", err)
	return err
}
