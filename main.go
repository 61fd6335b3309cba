package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/storage/redis/v3"
	"github.com/gofiber/template/html/v2"
	"github.com/softrlabs/bexgate/internal/audit"
	"github.com/softrlabs/bexgate/internal/common"
	"github.com/softrlabs/bexgate/internal/config"
	"github.com/softrlabs/bexgate/internal/creds"
	"github.com/softrlabs/bexgate/internal/handlers/api"
	"github.com/softrlabs/bexgate/internal/identity"
	"github.com/softrlabs/bexgate/internal/mail"
	"github.com/softrlabs/bexgate/internal/middlewares"
	"github.com/softrlabs/bexgate/internal/store"
	"github.com/softrlabs/bexgate/internal/tokens"
	"github.com/softrlabs/bexgate/internal/upstream"
	"github.com/softrlabs/bexgate/model"
	"github.com/softrlabs/bexgate/params"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"
	"gopkg.in/gomail.v2"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"

	goredis "github.com/redis/go-redis/v9"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	app       *cli.App
	gitCommit string
	gitDate   string
)

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "YAML config file",
		Value: "config.yaml",
	}
	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Enable debug logging",
	}
)

func init() {
	app = cli.NewApp()
	app.EnableBashCompletion = true
	app.Usage = "bexgate - an authentication bridge between Softr apps and the bexio API"
	app.Flags = []cli.Flag{
		configFileFlag,
		debugFlag,
	}
	app.Commands = []*cli.Command{
		{
			Name: "version",
			Action: func(ctx *cli.Context) error {
				fmt.Println(params.VersionWithCommit(gitCommit, gitDate))
				return nil
			},
		},
	}
	app.Action = run
}

func mustInitLogger(debug bool) {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

func mustInitDatabase(dbConfig config.MySQLConfig) *gorm.DB {
	db, err := gorm.Open(mysql.Open(dbConfig.Dsn), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   dbConfig.TablePrefix,
			SingularTable: true,
		},
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if dbConfig.ReplicaDsn != "" {
		err := db.Use(dbresolver.Register(dbresolver.Config{
			Replicas: []gorm.Dialector{mysql.Open(dbConfig.ReplicaDsn)},
		}))
		if err != nil {
			slog.Error("Failed to register read replica", "error", err)
			os.Exit(1)
		}
	}

	if err := model.AutoMigrate(db); err != nil {
		slog.Error("Database migration failed", "error", err)
		os.Exit(1)
	}

	sqlDB, err := db.DB()
	if err == nil {
		if dbConfig.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(dbConfig.MaxIdleConns)
		}
		if dbConfig.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(dbConfig.MaxOpenConns)
		}
		if dbConfig.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Second)
		}
	}
	return db
}

func mustInitRedisStorage(redisCfg config.RedisConfig) *redis.Storage {
	return redis.New(redis.Config{
		URL:           redisCfg.URL,
		PoolSize:      redisCfg.PoolSize,
		IsClusterMode: redisCfg.ClusterMode,
	})
}

func mustInitTokenCipher(cryptoCfg config.CryptoConfig) creds.TokenCipher {
	if cryptoCfg.Backend == "aes" {
		cipher, err := creds.NewAESCipher(cryptoCfg.MasterKey)
		if err != nil {
			slog.Error("Could not initialize token cipher", "error", err)
			os.Exit(1)
		}
		return cipher
	}
	return creds.NewNullCipher()
}

func mustInitSessionVerifier(softrCfg config.SoftrConfig) identity.SessionVerifier {
	switch softrCfg.SessionBackend {
	case "softr":
		if softrCfg.SessionVerifyURL == "" {
			slog.Error("softr session backend requires a verify URL")
			os.Exit(1)
		}
		return identity.NewSoftrVerifier(softrCfg.SessionVerifyURL, softrCfg.APIKey)
	case "jwt":
		if softrCfg.SessionSecret == "" {
			slog.Error("jwt session backend requires a session secret")
			os.Exit(1)
		}
		return identity.NewJWTVerifier(softrCfg.SessionSecret)
	default:
		slog.Error("Unsupported session backend", "backend", softrCfg.SessionBackend)
		os.Exit(1)
		return nil
	}
}

func mustInitNotifier(mailCfg config.MailConfig, baseURL string) tokens.Notifier {
	if mailCfg.Backend == "" {
		return nil
	}
	if mailCfg.Backend != "smtp" {
		slog.Error("Unsupported mail backend", "backend", mailCfg.Backend)
		os.Exit(1)
	}
	if mailCfg.Operator == "" {
		slog.Error("Mail alerts require an operator address")
		os.Exit(1)
	}
	dialer := gomail.NewDialer(mailCfg.SMTP.Host, mailCfg.SMTP.Port, mailCfg.SMTP.Username, mailCfg.SMTP.Password)
	sender := mail.NewSMTPMailSender(dialer, mailCfg.SMTP.From)
	return mail.NewRefreshAlertNotifier(sender, mailCfg.Operator, baseURL)
}

func mustInitHtmlEngine() *html.Engine {
	renderFS, _ := fs.Sub(templateFS, "templates")
	return html.NewFileSystem(http.FS(renderFS), ".html")
}

func newOAuthConfig(bexioCfg config.BexioConfig, baseURL string) *oauth2.Config {
	redirectURL, _ := url.JoinPath(baseURL, "authorize", "callback")
	return &oauth2.Config{
		ClientID:     bexioCfg.ClientID,
		ClientSecret: bexioCfg.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       bexioCfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   bexioCfg.AuthURL,
			TokenURL:  bexioCfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func run(ctx *cli.Context) error {
	cfg, err := config.LoadConfig(ctx.String(configFileFlag.Name))
	if err != nil {
		slog.Error("Could not load config file.", "error", err)
		return err
	}

	mustInitLogger(cfg.Debug || ctx.IsSet(debugFlag.Name))

	db := mustInitDatabase(cfg.MySQL)
	audit.Initialize(audit.NewAuditEventRepository(db))

	var rdb goredis.UniversalClient
	var kvStorage store.Storage
	if cfg.Redis.URL != "" {
		redisStorage := mustInitRedisStorage(cfg.Redis)
		rdb = redisStorage.Conn()
		kvStorage = store.NewRedisStorage(rdb)
	} else {
		slog.Warn("No redis configured, using in-process storage")
		kvStorage = store.NewMemoryStorage()
	}

	// repositories
	var (
		credentialRepo = creds.NewCredentialRepository(db)
		tenantUserRepo = identity.NewTenantUserRepository(db)
	)

	// services
	var (
		tokenCipher  = mustInitTokenCipher(cfg.Crypto)
		credStore    = creds.NewCredentialStore(credentialRepo, tokenCipher)
		notifier     = mustInitNotifier(cfg.Mail, cfg.BaseURL)
		oauthConfig  = newOAuthConfig(cfg.Bexio, cfg.BaseURL)
		tokenService = tokens.NewTokenService(oauthConfig, credStore, kvStorage, notifier)
		resolver     = identity.NewResolver(mustInitSessionVerifier(cfg.Softr), tenantUserRepo)
	)

	var invoker upstream.Invoker = upstream.NewBexioInvoker(cfg.Bexio.APIBase, tokenService)
	if cfg.Cache.Enabled {
		invoker = upstream.NewCachingInvoker(invoker, kvStorage, cfg.Cache.TTL, cfg.Crypto.MasterKey)
	}

	// handlers
	var (
		proxyHandler     = api.NewProxyHandler(resolver, invoker, cfg.Softr.SessionCookie)
		authorizeHandler = api.NewAuthorizeHandler(tokenService)
	)

	router := fiber.New(fiber.Config{
		Prefork:       false,
		CaseSensitive: true,
		BodyLimit:     params.ServerBodyLimit,
		IdleTimeout:   params.ServerIdleTimeout,
		ReadTimeout:   params.ServerReadTimeout,
		WriteTimeout:  params.ServerWriteTimeout,
		Views:         mustInitHtmlEngine(),
		ErrorHandler:  middlewares.ErrorHandler,
	})

	router.Use(recover.New())
	router.Use(logger.New())
	router.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowOrigins, ", "),
		AllowMethods: "GET, POST",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	router.Get("/authorize", authorizeHandler.GetAuthorize)
	router.Get("/authorize/callback", authorizeHandler.GetAuthorizeCallback)
	router.Post("/revoke", authorizeHandler.PostRevoke)
	router.Get("/api/bexio/*", proxyHandler.HandleProxy)
	router.Post("/api/bexio/*", proxyHandler.HandleProxy)

	healthCheckCtx, term := context.WithCancel(ctx.Context)
	done := make(chan struct{})
	go common.StartHealthCheckServer(healthCheckCtx, done, rdb, db)
	defer func() {
		term()
		<-done
	}()
	return router.Listen(cfg.ListenAddr)
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
