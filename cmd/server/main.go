package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/ignatzorin/crm-backend/internal/ai"
	"github.com/ignatzorin/crm-backend/internal/cache"
	"github.com/ignatzorin/crm-backend/internal/config"
	"github.com/ignatzorin/crm-backend/internal/db"
	"github.com/ignatzorin/crm-backend/internal/goroutine"
	httpHandlers "github.com/ignatzorin/crm-backend/internal/http/handlers"
	"github.com/ignatzorin/crm-backend/internal/http/middleware"
	httpRouter "github.com/ignatzorin/crm-backend/internal/http/router"
	"github.com/ignatzorin/crm-backend/internal/logger"
	"github.com/ignatzorin/crm-backend/internal/messaging"
	"github.com/ignatzorin/crm-backend/internal/pdf"
	"github.com/ignatzorin/crm-backend/internal/repository"
	"github.com/ignatzorin/crm-backend/internal/repository/memory"
	"github.com/ignatzorin/crm-backend/internal/search"
	"github.com/ignatzorin/crm-backend/internal/service"
	"github.com/ignatzorin/crm-backend/internal/storage"
	"github.com/ignatzorin/crm-backend/internal/ws"
)

// repositories набор хранилищ, общий для Postgres и резервного режима.
type repositories struct {
	users        service.AuthRepository
	contacts     service.ContactRepository
	stages       service.StageRepository
	deals        service.DealRepository
	activities   service.ActivityRepository
	appointments service.AppointmentRepository
	proposals    service.ProposalRepository
	marketing    service.MarketingRepository
	settings     service.SettingsRepository
	fields       service.FieldConfigRepository
	chat         service.ChatRepository
	attachments  service.AttachmentRepository
}

func postgresRepositories(conn *sqlx.DB) repositories {
	return repositories{
		users:        repository.NewUserRepository(conn),
		contacts:     repository.NewContactRepository(conn),
		stages:       repository.NewStageRepository(conn),
		deals:        repository.NewDealRepository(conn),
		activities:   repository.NewActivityRepository(conn),
		appointments: repository.NewAppointmentRepository(conn),
		proposals:    repository.NewProposalRepository(conn),
		marketing:    repository.NewMarketingRepository(conn),
		settings:     repository.NewSettingsRepository(conn),
		fields:       repository.NewFieldConfigRepository(conn),
		chat:         repository.NewChatRepository(conn),
		attachments:  repository.NewAttachmentRepository(conn),
	}
}

func memoryRepositories(store *memory.Store) repositories {
	return repositories{
		users:        store.Users(),
		contacts:     store.Contacts(),
		stages:       store.Stages(),
		deals:        store.Deals(),
		activities:   store.Activities(),
		appointments: store.Appointments(),
		proposals:    store.Proposals(),
		marketing:    store.Marketing(),
		settings:     store.Settings(),
		fields:       store.Fields(),
		chat:         store.Chat(),
		attachments:  store.Attachments(),
	}
}

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	logLevel := "info"
	if cfg.Env == "development" {
		logLevel = "debug"
		logger.Init(logLevel)
		logger.SetTextFormatter()
	} else {
		logger.Init(logLevel)
	}

	// Подключение к базе и миграции. Без DATABASE_URL работаем в памяти.
	var (
		dbConn *sqlx.DB
		repos  repositories
	)
	if cfg.HasDatabase() {
		dbConn, err = db.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("main: ошибка подключения к базе: %v", err)
		}
		defer safeClose(dbConn)

		if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
			log.Fatalf("main: ошибка миграций: %v", err)
		}
		repos = postgresRepositories(dbConn)
	} else {
		log.Printf("main: DATABASE_URL не задан, используется хранилище в памяти")
		repos = memoryRepositories(memory.NewStore())
	}

	// Кеш и лимитер запросов: Redis, если настроен.
	var (
		redisClient *redis.Client
		dataCache   cache.Cache
	)
	if cfg.RedisURL != "" {
		redisClient, err = cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Printf("main: Redis недоступен, кеш в памяти: %v", err)
			redisClient = nil
		}
	}
	if redisClient != nil {
		defer safeCloseRedis(redisClient)
		dataCache = cache.NewRedisCache(redisClient)
	} else {
		memCache := cache.NewMemoryCache()
		goroutine.SafeGoWithContext(ctx, "cache-cleanup", func(ctx context.Context) {
			memCache.Cleanup(ctx, time.Minute)
		})
		dataCache = memCache
	}
	rateStore := middleware.NewRateLimitStore(redisClient)

	// Поиск по контактам. Без Meilisearch поиск идёт через хранилище.
	var (
		meili         *search.Meili
		contactIndex  service.ContactIndex
		searchChecker httpHandlers.SearchChecker
	)
	if cfg.MeiliURL != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliAPIKey)
		contactIndex = meili
		searchChecker = meili
	}

	// Файловое хранилище.
	var (
		objects   storage.ObjectStorage
		mediaRoot string
	)
	if cfg.Blob.Enabled() {
		blob, err := storage.NewMinioStorage(ctx, storage.MinioConfig{
			Endpoint:  cfg.Blob.Endpoint,
			AccessKey: cfg.Blob.AccessKey,
			SecretKey: cfg.Blob.SecretKey,
			Bucket:    cfg.Blob.Bucket,
			UseSSL:    cfg.Blob.UseSSL,
			PublicURL: cfg.Blob.PublicURL,
		}, cfg.MaxUploadSizeMB)
		if err != nil {
			log.Fatalf("main: не удалось подключить объектное хранилище: %v", err)
		}
		objects = blob
	} else {
		local, err := storage.NewLocalStorage(cfg.MediaStoragePath, "/media", cfg.MaxUploadSizeMB)
		if err != nil {
			log.Fatalf("main: не удалось подготовить файловое хранилище: %v", err)
		}
		objects = local
		mediaRoot = local.Root()
	}

	// Внешние каналы.
	var emailSender service.EmailSender = messaging.LogEmailSender{}
	smtpCfg := messaging.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     strconv.Itoa(cfg.SMTP.Port),
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		FromName: cfg.SMTP.FromName,
	}
	if smtpCfg.Configured() {
		emailSender = messaging.NewSMTPSender(smtpCfg)
	} else {
		log.Printf("main: SMTP не настроен, письма только пишутся в лог")
	}
	whatsApp := messaging.NewWhatsAppClient(cfg.WhatsApp.APIURL, cfg.WhatsApp.Token)
	renderer := pdf.NewRenderer(cfg.ChromePath, cfg.PDFTimeout)
	aiClient := ai.NewClient(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model)
	if !aiClient.Available() {
		log.Printf("main: AI ключ не задан, ассистент работает в резервном режиме")
	}

	// Вебсокеты.
	hub := ws.NewHub()
	goroutine.SafeGoWithContext(ctx, "ws-hub", hub.Run)

	// Сервисы.
	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	authService := service.NewAuthService(repos.users, tokenManager)
	settingsService := service.NewSettingsService(repos.settings, objects, cfg.DefaultCurrency)
	fieldService := service.NewFieldService(repos.fields)
	pipelineService := service.NewPipelineService(repos.stages, repos.deals)

	contactService := service.NewContactService(service.ContactServiceDeps{
		Contacts:     repos.contacts,
		Deals:        repos.deals,
		Activities:   repos.activities,
		Appointments: repos.appointments,
		Proposals:    repos.proposals,
		Fields:       fieldService,
		Index:        contactIndex,
	})
	if meili != nil {
		// Индекс догоняет хранилище при старте и после каждого восстановления Meilisearch.
		reindex := func(ctx context.Context) {
			if _, err := contactService.ReindexContacts(ctx); err != nil {
				log.Printf("main: не удалось перестроить индекс контактов: %v", err)
			}
		}
		meili.OnRecover(reindex)
		goroutine.SafeGoWithContext(ctx, "meili-reindex", reindex)
		goroutine.SafeGoWithContext(ctx, "meili-watch", func(ctx context.Context) {
			meili.Watch(ctx, 30*time.Second)
		})
	}
	dealService := service.NewDealService(service.DealServiceDeps{
		Deals:      repos.deals,
		Stages:     repos.stages,
		Contacts:   repos.contacts,
		Activities: repos.activities,
		Fields:     fieldService,
		Currency:   settingsService,
		Events:     hub,
	})
	activityService := service.NewActivityService(repos.activities, repos.contacts, repos.deals)
	appointmentService := service.NewAppointmentService(repos.appointments, repos.contacts, repos.deals, hub)
	proposalService := service.NewProposalService(service.ProposalServiceDeps{
		Proposals:  repos.proposals,
		Contacts:   repos.contacts,
		Deals:      repos.deals,
		Activities: repos.activities,
		Settings:   settingsService,
		Currency:   settingsService,
		Email:      emailSender,
		Renderer:   renderer,
		Objects:    objects,
		Events:     hub,
		PublicURL:  cfg.PublicAppURL,
	})
	marketingService := service.NewMarketingService(repos.marketing, emailSender, whatsApp)
	reportService := service.NewReportService(service.ReportServiceDeps{
		Contacts:     repos.contacts,
		Deals:        repos.deals,
		Activities:   repos.activities,
		Appointments: repos.appointments,
		Stages:       pipelineService,
		Cache:        dataCache,
		AI:           aiClient,
	})
	aiService := service.NewAIService(service.AIServiceDeps{
		Chat:     repos.chat,
		Reports:  reportService,
		Contacts: repos.contacts,
		Deals:    repos.deals,
		Settings: settingsService,
		AI:       aiClient,
	})
	mediaService := service.NewMediaService(repos.attachments, objects)
	seedService := service.NewSeedService(service.SeedDeps{
		Contacts:     repos.contacts,
		Stages:       pipelineService,
		Deals:        repos.deals,
		Activities:   repos.activities,
		Appointments: repos.appointments,
		Marketing:    repos.marketing,
		Index:        contactService,
	}, time.Now().UnixNano())

	admin, err := authService.EnsureSeedAdmin(ctx, cfg.SeedAdminEmail, cfg.SeedAdminPassword)
	if err != nil {
		log.Printf("main: не удалось создать администратора: %v", err)
	} else if admin != nil {
		log.Printf("main: создан администратор %s", admin.Email)
	}
	if dbConn == nil {
		var ownerID *uuid.UUID
		if admin != nil {
			ownerID = &admin.ID
		}
		if _, err := seedService.SeedDemo(ctx, ownerID, 20); err != nil {
			log.Printf("main: не удалось создать демо-данные: %v", err)
		}
	}

	// Фоновая отправка запланированных кампаний.
	scheduler := service.NewCampaignScheduler(marketingService, cfg.CampaignSchedulerInterval)
	goroutine.SafeGoWithContext(ctx, "campaign-scheduler", scheduler.Run)

	// HTTP хэндлеры.
	var cacheChecker httpHandlers.CacheChecker = dataCache
	handlers := httpRouter.Handlers{
		Auth:         httpHandlers.NewAuthHandler(authService),
		Contacts:     httpHandlers.NewContactHandler(contactService),
		Activities:   httpHandlers.NewActivityHandler(activityService),
		Pipeline:     httpHandlers.NewPipelineHandler(pipelineService),
		Deals:        httpHandlers.NewDealHandler(dealService),
		Proposals:    httpHandlers.NewProposalHandler(proposalService),
		Marketing:    httpHandlers.NewMarketingHandler(marketingService),
		Appointments: httpHandlers.NewAppointmentHandler(appointmentService),
		Settings:     httpHandlers.NewSettingsHandler(settingsService, fieldService),
		Reports:      httpHandlers.NewReportHandler(reportService),
		AI:           httpHandlers.NewAIHandler(aiService),
		Media:        httpHandlers.NewMediaHandler(mediaService),
		WS:           httpHandlers.NewWSHandler(hub, tokenManager, cfg.AllowedOrigins),
		Health:       httpHandlers.NewHealthHandler(dbConn, cacheChecker, searchChecker),
		Seed:         httpHandlers.NewSeedHandler(seedService),
	}

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, handlers, tokenManager, rateStore, mediaRoot)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	log.Printf("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}

func safeCloseRedis(client *redis.Client) {
	if err := client.Close(); err != nil {
		log.Printf("main: ошибка закрытия Redis: %v", err)
	}
}
