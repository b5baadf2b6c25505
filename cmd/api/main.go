package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exercise-api/internal/config"
	"github.com/noah-isme/gema-exercise-api/internal/database"
	"github.com/noah-isme/gema-exercise-api/internal/dto"
	"github.com/noah-isme/gema-exercise-api/internal/grading"
	"github.com/noah-isme/gema-exercise-api/internal/handler"
	"github.com/noah-isme/gema-exercise-api/internal/middleware"
	"github.com/noah-isme/gema-exercise-api/internal/repository"
	"github.com/noah-isme/gema-exercise-api/internal/router"
	"github.com/noah-isme/gema-exercise-api/internal/service"
	cloud "github.com/noah-isme/gema-exercise-api/pkg/cloudinary"
	"github.com/noah-isme/gema-exercise-api/pkg/exercisepage"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.AppEnv == "development" {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}
	logger = logger.With().Str("service", cfg.AppName).Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 10*time.Second)
	redisClient, err := database.ConnectRedis(startupCtx, cfg.RedisURL)
	cancelStartup()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()

	var publisher service.EventPublisher
	if cfg.NATSURL != "" {
		conn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer drainNATS(conn, logger)
		publisher = conn
	} else {
		logger.Warn().Msg("nats url not configured, submission events are not published")
	}

	var attachments service.AttachmentStore
	if cfg.CloudinaryEnabled() {
		uploader, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create cloudinary client")
		}
		attachments = uploader
	} else {
		logger.Warn().Msg("cloudinary credentials missing, attachment exercises cannot be created")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := dto.RegisterValidators(validate); err != nil {
		logger.Fatal().Err(err).Msg("failed to register validators")
	}

	signer, err := grading.NewSigner(cfg.SecretKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create async token signer")
	}

	exerciseRepo := repository.NewExerciseRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	deviationRepo := repository.NewDeviationRepository(db)
	studentRepo := repository.NewStudentRepository(db)

	dispatcher := grading.NewDispatcher(
		grading.NewBuilder(signer, cfg.BaseURL),
		exercisepage.New(cfg.ExerciseFetchTimeout, logger),
		exerciseRepo,
		grading.Options{
			ContentRefresh: cfg.ContentRefresh,
			InstanceGUID:   cfg.LTIInstanceGUID,
			InstanceName:   cfg.AppName,
		},
		logger,
	)

	exerciseService := service.NewExerciseService(service.ExerciseServiceDeps{
		Exercises:   exerciseRepo,
		Courses:     courseRepo,
		Submissions: submissionRepo,
		Deviations:  deviationRepo,
		Students:    studentRepo,
		Dispatcher:  dispatcher,
		Cache:       redisClient,
		StatsTTL:    cfg.StatsCacheTTL,
	}, logger)
	submissionService := service.NewSubmissionService(service.SubmissionServiceDeps{
		Exercises:     exerciseRepo,
		Courses:       courseRepo,
		Submissions:   submissionRepo,
		Deviations:    deviationRepo,
		Students:      studentRepo,
		Dispatcher:    dispatcher,
		Publisher:     publisher,
		EventsSubject: cfg.NATSSubject,
	}, logger)
	asyncService := service.NewAsyncGradingService(service.AsyncGradingServiceDeps{
		Exercises:     exerciseRepo,
		Courses:       courseRepo,
		Submissions:   submissionRepo,
		Deviations:    deviationRepo,
		Students:      studentRepo,
		Signer:        signer,
		Validator:     validate,
		Publisher:     publisher,
		EventsSubject: cfg.NATSSubject,
	}, logger)
	adminService := service.NewExerciseAdminService(exerciseRepo, validate, attachments, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    32 << 20,
	})

	middleware.Register(app, logger)
	router.Register(app, cfg, router.Dependencies{
		ExerciseHandler:      handler.NewExerciseHandler(exerciseService, submissionService, logger),
		ExerciseAdminHandler: handler.NewExerciseAdminHandler(adminService, logger),
		AsyncHandler:         handler.NewAsyncHandler(asyncService, logger),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, logger)
}

func drainNATS(conn *nats.Conn, logger zerolog.Logger) {
	if err := conn.Drain(); err != nil {
		logger.Warn().Err(err).Msg("failed to drain nats connection")
	}
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
