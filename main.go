package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"campusdesk_go/config"
	"campusdesk_go/database"
	"campusdesk_go/database/seeders"
	"campusdesk_go/handlers"
	"campusdesk_go/middleware"
	"campusdesk_go/routes"
	"campusdesk_go/services"
	"campusdesk_go/services/attendance"
	"campusdesk_go/services/fines"
	"campusdesk_go/services/notifications"
	"campusdesk_go/services/uploads"
	"campusdesk_go/services/websocket"
	"campusdesk_go/storage"
	"campusdesk_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const version = "1.0.0"

func main() {
	config.LoadConfig()
	setupLogging(config.AppConfig)

	database.Connect()
	defer database.Close()
	if config.AppConfig.Seed {
		seeders.SeedAll()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := make(chan struct{})

	wsHub := websocket.NewHub()
	go wsHub.Run(stop)

	// Notifications
	var logStore notifications.LogStore = notifications.NewGormLogStore(database.DB)
	if mdb := database.GetMongo(); mdb != nil {
		mongoLogs := notifications.NewMongoLogStore(mdb)
		if err := mongoLogs.EnsureIndexes(ctx); err != nil {
			logrus.WithError(err).Warn("failed to create notification log indexes")
		}
		logStore = mongoLogs
	}
	notifService := notifications.NewService(
		notifications.NewGormTokenStore(database.DB),
		notifications.NewProviderFromConfig(ctx, config.AppConfig),
		logStore,
	)
	notifService.SetWebSocketHub(wsHub)
	notifService.SetFeedLimit(config.AppConfig.FeedLimit)
	redisClient := database.GetRedisClient()
	if config.AppConfig.UseRedisNotifications && redisClient != nil {
		notifService.UseQueue(redisClient)
		notifService.StartWorker(stop)
	}

	// Files and uploads
	files, err := storage.NewFromConfig(config.AppConfig)
	if err != nil {
		logrus.WithError(err).Warn("file storage disabled")
	}
	var jobs uploads.JobStore = uploads.NewMemoryJobStore()
	if redisClient != nil {
		jobs = uploads.NewRedisJobStore(redisClient)
	}
	uploadManager := uploads.NewManager(files, jobs, config.AppConfig.UploadWorkers)
	defer uploadManager.Close()

	// Domain services
	attendanceService := attendance.NewService(attendance.NewGormStore(database.DB), notifService)
	fineService := fines.NewService(fines.NewGormStore(database.DB), notifService)
	if config.AppConfig.MidtransServerKey != "" {
		fineService.SetCheckout(fines.NewMidtransCheckout(config.AppConfig.MidtransServerKey, config.AppConfig.MidtransProduction))
	}
	lineService := services.NewLineMessagingService(database.DB, config.AppConfig.LineChannelSecret, config.AppConfig.LineChannelAccessToken)

	var bucket services.ArchiveBucket
	if config.AppConfig.AWSAccessKeyID != "" {
		if b, err := services.NewS3ArchiveBucket(ctx, config.AppConfig.AWSRegion, config.AppConfig.S3BucketName); err != nil {
			logrus.WithError(err).Warn("log archive bucket disabled")
		} else {
			bucket = b
		}
	}
	logArchive := services.NewLogArchiveService(database.DB, redisClient, logStore, bucket)

	scheduler := services.NewNotificationScheduler(
		services.GormReminderSource{DB: database.DB},
		notifService,
		logArchive,
		config.AppConfig.NotificationLogRetentionDays,
	)
	if err := scheduler.Start(); err != nil {
		logrus.WithError(err).Fatal("failed to start scheduler")
	}
	defer scheduler.Stop()

	app := fiber.New(fiber.Config{
		AppName:      "campusdesk " + version,
		ErrorHandler: customErrorHandler,
		BodyLimit:    int(config.AppConfig.MaxFileSize) + 1<<20,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	})

	app.Use(recover.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Signature",
	}))
	app.Use(middleware.MetricsMiddleware())
	app.Use(middleware.LoggerMiddleware())
	app.Use(middleware.LogActivityMiddleware())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	routes.SetupRoutes(app, routes.Deps{
		Hub:           wsHub,
		Notifications: notifService,
		Attendance:    attendanceService,
		Fines:         fineService,
		Uploads:       uploadManager,
		Files:         files,
		Line:          lineService,
		LogArchive:    logArchive,
		Health:        services.NewHealthService("campusdesk", version),
		Payments:      handlers.NewPaymentWebhookHandler(fineService, config.AppConfig.PaymentWebhookSecret, config.AppConfig.MidtransServerKey),
		LineWebhook:   handlers.NewLineWebhookHandler(database.DB, config.AppConfig.LineChannelSecret, lineService.Bot),
	})

	app.Use(func(c *fiber.Ctx) error {
		return utils.Error(c, fiber.StatusNotFound, "Route not found: "+c.Method()+" "+c.Path())
	})

	go func() {
		logrus.WithFields(logrus.Fields{
			"port":        config.AppConfig.Port,
			"environment": config.AppConfig.AppEnv,
			"version":     version,
		}).Info("server starting")
		if err := app.Listen(":" + config.AppConfig.Port); err != nil {
			logrus.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("shutting down")
	close(stop)
	cancel()
	if err := app.ShutdownWithTimeout(15 * time.Second); err != nil {
		logrus.WithError(err).Error("server shutdown failed")
	}
}

// setupLogging configures logrus from LOG_LEVEL and LOG_FILE. Development logs go to stdout.
func setupLogging(cfg *config.Config) {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.AppEnv == "development" || cfg.LogFile == "" {
		logrus.SetOutput(os.Stdout)
		return
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
		logrus.WithError(err).Warn("could not create log directory")
		return
	}
	file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logrus.WithError(err).Warn("could not open log file, logging to stdout")
		return
	}
	logrus.SetOutput(file)
}

// customErrorHandler renders errors that escape the handlers in the response envelope.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}

	logrus.WithFields(logrus.Fields{
		"error":  err.Error(),
		"path":   c.Path(),
		"method": c.Method(),
		"ip":     c.IP(),
		"status": code,
	}).Error("request error")

	return utils.Error(c, code, message)
}
