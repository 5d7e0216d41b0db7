package main

import (
	"academy_backoffice/config"
	"academy_backoffice/controllers"
	"academy_backoffice/database"
	"academy_backoffice/database/seeders"
	"academy_backoffice/middleware"
	"academy_backoffice/routes"
	"academy_backoffice/services"
	"academy_backoffice/services/gateways"
	"academy_backoffice/services/gateways/click"
	"academy_backoffice/services/gateways/payme"
	"academy_backoffice/services/sms"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

func init() {
	// Load configuration
	config.LoadConfig()

	// Initialize logging
	setupLogging()

	// Connect to database
	database.Connect()

	if config.AppConfig.SeedData {
		seeders.SeedAll()
	}
}

func main() {
	cfg := config.AppConfig
	db := database.GetDB()
	rdb := database.GetRedisClient()

	// SMS: Redis queue when available, direct send otherwise
	smsClient := sms.NewClient(sms.Config{
		URL:        cfg.SMSAPIURL,
		Login:      cfg.SMSLogin,
		Password:   cfg.SMSPassword,
		Prefix:     cfg.SMSPrefix,
		Originator: cfg.SMSOriginator,
	})
	smsService := sms.NewService(smsClient, rdb, cfg.UseRedisSMS)
	stopSMS := make(chan struct{})
	if cfg.UseRedisSMS && rdb != nil {
		smsService.StartWorker(stopSMS)
	}

	// Ledger services
	studentService := services.NewStudentService(db)
	enrollmentService := services.NewEnrollmentService(db)
	paymentService := services.NewPaymentService(db, smsService, cfg.PaymentSMSTemplate)
	ledgerService := services.NewLedgerService(db)
	reportService := services.NewReportService(db)

	// Payment gateways
	orders := gateways.NewStudentOrders(db, paymentService)
	clickService := click.NewService(click.Config{
		ServiceIDs: cfg.ClickServiceIDs,
		SecretKey:  cfg.ClickSecretKey,
		MerchantID: cfg.ClickMerchantID,
	}, db, orders)
	paymeService := payme.NewService(payme.Config{
		MerchantKey: cfg.PaymeKey,
		AccountKey:  cfg.PaymeAccountKey,
		MinAmount:   cfg.PaymeMinAmount,
		MaxAmount:   cfg.PaymeMaxAmount,
		Timeout:     cfg.PaymeTimeout,
	}, db, orders, orders)

	healthService := services.NewHealthService(db, rdb, services.HealthFlags{
		Environment:     cfg.AppEnv,
		SkipMigrate:     cfg.SkipMigrate,
		UseRedisSMS:     cfg.UseRedisSMS,
		SMSConfigured:   smsClient.Enabled(),
		ClickConfigured: cfg.ClickSecretKey != "" && len(cfg.ClickServiceIDs) > 0,
		PaymeConfigured: cfg.PaymeKey != "",
		TuitionCron:     cfg.TuitionCron,
	})

	// Start the daily tuition job
	scheduleManager := services.NewScheduleManager(enrollmentService)
	if err := scheduleManager.Start(cfg.TuitionCron); err != nil {
		log.Fatal("Invalid TUITION_CRON:", err)
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    10 * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-User-ID,X-Request-ID",
	}))

	// Custom middleware
	app.Use(middleware.RequestID())
	app.Use(middleware.LoggerMiddleware())

	// API routes
	routes.SetupRoutes(app, routes.Controllers{
		Health:   controllers.NewHealthController(healthService),
		Click:    controllers.NewClickController(clickService),
		Payme:    controllers.NewPaymeController(paymeService),
		Payments: controllers.NewPaymentController(paymentService),
		Ledger:   controllers.NewLedgerController(ledgerService),
		Reports:  controllers.NewReportController(reportService),
		Groups:   controllers.NewGroupController(enrollmentService),
		Students: controllers.NewStudentController(studentService, enrollmentService),
	})

	if cfg.AppEnv == "development" {
		for _, r := range app.Stack() {
			for _, route := range r {
				log.Printf("Registered route: %s %s", route.Method, route.Path)
			}
		}
	}

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":  "Route not found",
			"path":   c.Path(),
			"method": c.Method(),
		})
	})

	// Graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")
		scheduleManager.Stop()
		close(stopSMS)
		if err := app.Shutdown(); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server (listen on all interfaces for Docker/production)
	port := ":" + cfg.Port
	log.Printf("Server starting on port %s", cfg.Port)
	log.Printf("Environment: %s", cfg.AppEnv)

	if err := app.Listen(port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
	paymentService.Wait()
	database.Close()
}

// setupLogging configures the logging system
func setupLogging() {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(config.AppConfig.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	// Log to stdout in development, to file otherwise
	if config.AppConfig.AppEnv == "development" || config.AppConfig.LogFile == "" {
		logrus.SetOutput(os.Stdout)
		return
	}
	if err := os.MkdirAll(filepath.Dir(config.AppConfig.LogFile), 0755); err != nil {
		log.Printf("Warning: Could not create logs directory: %v", err)
	}
	file, err := os.OpenFile(config.AppConfig.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err == nil {
		logrus.SetOutput(file)
	}
}

// customErrorHandler handles application errors
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	// Check if it's a Fiber error
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	entry := logrus.WithFields(logrus.Fields{
		"error":  err.Error(),
		"path":   c.Path(),
		"method": c.Method(),
		"ip":     c.IP(),
		"status": code,
	})
	if code >= fiber.StatusInternalServerError {
		entry.Error("Request error")
	} else {
		entry.Warn("Request rejected")
	}

	return c.Status(code).JSON(fiber.Map{
		"error":  message,
		"code":   code,
		"path":   c.Path(),
		"method": c.Method(),
	})
}
