package cmd

import (
	"database/sql"
	"net"
	"net/http"

	"github.com/vibast-solutions/ms-go-credentials/app/controller"
	authgrpc "github.com/vibast-solutions/ms-go-credentials/app/grpc"
	"github.com/vibast-solutions/ms-go-credentials/app/middleware"
	"github.com/vibast-solutions/ms-go-credentials/app/notify"
	"github.com/vibast-solutions/ms-go-credentials/app/repository"
	"github.com/vibast-solutions/ms-go-credentials/app/service"
	"github.com/vibast-solutions/ms-go-credentials/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  `Start the HTTP (Echo) API and the gRPC health endpoint of the credentials service.`,
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

type components struct {
	tokens *service.TokenCodec
	resets *service.ResetTokenManager
	auth   *service.AuthService
}

func buildComponents(cfg *config.Config, db repository.DBTX, opts ...service.AuthServiceOption) (*components, error) {
	tokens, err := service.NewTokenCodec(cfg.JWT)
	if err != nil {
		return nil, err
	}

	sink, err := notify.NewSink(cfg.Notification)
	if err != nil {
		return nil, err
	}

	resets := service.NewResetTokenManager(repository.NewResetTokenRepository(db), cfg.Reset.TokenTTL)
	authService := service.NewAuthService(
		repository.NewUserRepository(db),
		service.NewPasswordHasher(cfg.Password.BcryptCost),
		tokens,
		resets,
		sink,
		cfg,
		opts...,
	)

	return &components{tokens: tokens, resets: resets, auth: authService}, nil
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	app, err := buildComponents(cfg, db)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize services")
	}

	go startGRPCServer(cfg, app.tokens)

	startHTTPServer(cfg, app)
}

func newHTTPServer(app *components) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = controller.NewValidator()

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	authController := controller.NewAuthController(app.auth)
	authMiddleware := middleware.NewAuthMiddleware(app.tokens)

	auth := e.Group("/auth")
	auth.POST("/register", authController.Register)
	auth.POST("/login", authController.Login)
	auth.POST("/refresh-token", authController.RefreshToken)
	auth.POST("/request-password-reset", authController.RequestPasswordReset)
	auth.POST("/reset-password", authController.ResetPassword)

	authProtected := auth.Group("")
	authProtected.Use(authMiddleware.RequireAuth)
	authProtected.POST("/change-password", authController.ChangePassword)
	authProtected.GET("/me", authController.Me)

	return e
}

func startHTTPServer(cfg *config.Config, app *components) {
	e := newHTTPServer(app)
	defer e.Close()

	httpAddr := net.JoinHostPort(cfg.HTTPHost, cfg.HTTPPort)
	logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
	if err := e.Start(httpAddr); err != nil {
		logrus.WithError(err).Fatal("Failed to start HTTP server")
	}
}

func startGRPCServer(cfg *config.Config, tokens *service.TokenCodec) {
	grpcAddr := net.JoinHostPort(cfg.GRPCHost, cfg.GRPCPort)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to listen on gRPC port")
	}

	grpcServer, _ := authgrpc.NewServer(tokens)
	defer grpcServer.GracefulStop()

	logrus.WithField("addr", grpcAddr).Info("Starting gRPC server")
	if err := grpcServer.Serve(lis); err != nil {
		logrus.WithError(err).Fatal("Failed to start gRPC server")
	}
}
