// Package container wires every module's concrete collaborators into
// the interfaces the duplex protocol, the HTTP surface, and the job
// handlers depend on, following the teacher's Container/NewContainer/
// Get* pattern (a single struct holding config, infra clients, repos,
// services and middleware, built once at startup).
package container

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	jobsdomain "chronicle/server/jobs/domain"
	jobsinfra "chronicle/server/jobs/infrastructure"

	conversationinfra "chronicle/server/modules/conversation/infrastructure"
	conversationrepos "chronicle/server/modules/conversation/infrastructure/repositories"
	conversationhandlers "chronicle/server/modules/conversation/interfaces/http/handlers"
	conversationroutes "chronicle/server/modules/conversation/interfaces/http/routes"

	"chronicle/server/modules/conversation"
	"chronicle/server/modules/pipeline"

	sessiondomain "chronicle/server/modules/session/domain"
	sessioninfra "chronicle/server/modules/session/infrastructure"

	"chronicle/server/modules/speech"
	"chronicle/server/modules/transcription/domain/streaming"

	"chronicle/server/modules/transcription/infrastructure/providers"
	duplexhandlers "chronicle/server/modules/transcription/interfaces/http/handlers"
	transcriptionroutes "chronicle/server/modules/transcription/interfaces/http/routes"

	"chronicle/server/modules/user/interfaces/http/middleware"

	"chronicle/server/seedwork/infrastructure/bus"
	"chronicle/server/seedwork/infrastructure/config"
	"chronicle/server/seedwork/infrastructure/database"
)

// Container holds every wired dependency the engine's HTTP server and
// asynq worker server are built from.
type Container struct {
	Config *config.Config
	Logger zerolog.Logger

	RedisClient *redis.Client
	AsynqClient *asynq.Client
	Bus         bus.Bus
	Registry    sessiondomain.Registry
	AudioMirror *pipeline.GCSAudioMirror // nil unless Storage.GCSBucket is configured

	ConnectionTracker *sessioninfra.ConnectionTracker
	ConversationStore conversationrepos.ConversationRepository
	JobRepo           jobsdomain.Repository
	Scheduler         *jobsinfra.Scheduler
	JobEnqueuer       *jobsinfra.ConversationAdapter

	Pipeline     *pipeline.Handlers
	Mux          *asynq.ServeMux
	SpeechDetect *jobsinfra.SpeechDetectHandler

	AuthResolver   *middleware.HeaderResolver
	AuthMiddleware *middleware.PrincipalMiddleware

	DuplexHandlers       *duplexhandlers.DuplexHandlers
	ConversationHandlers *conversationhandlers.ConversationHandlers
	UploadHandlers       *conversationhandlers.UploadHandlers

	TranscriptionRoutes *transcriptionroutes.TranscriptionRoutes
	ConversationRoutes  *conversationroutes.ConversationRoutes
}

// NewContainer loads configuration, connects to Postgres and Redis, and
// wires every module's concrete adapters together. It does not run
// migrations or start any server — callers (cmd/chronicle-engine) do
// that explicitly so tests can build a Container against an
// already-migrated test database.
func NewContainer(ctx context.Context, logger zerolog.Logger) (*Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := database.Initialize(); err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	streamBus := bus.NewRedisBus(redisClient)
	registry := sessioninfra.NewRedisRegistry(redisClient)
	tracker := sessioninfra.NewConnectionTracker()

	conversationStore := conversationrepos.NewGormConversationRepository()
	jobRepo := jobsinfra.NewGormRepository()
	scheduler := jobsinfra.NewScheduler(jobRepo, asynqClient)
	jobEnqueuer := jobsinfra.NewConversationAdapter(scheduler, cfg.Jobs)

	sessionView := conversationinfra.NewSessionViewAdapter(registry, streamBus, tracker)

	batchProvider := providers.NewAssemblyAIBatchProvider(cfg.Providers.AssemblyAIAPIKey)

	// liveProvider is declared as the interface type (not the concrete
	// *WhisperStreamingProvider) so an unconfigured deployment stores a
	// true nil interface in DuplexHandlers.LiveProvider — assigning a nil
	// concrete pointer to that field would make its "!= nil" check in
	// duplex_websocket_handler.go true even though nothing is configured.
	var liveProvider streaming.StreamingTranscriptionProvider
	if cfg.Providers.WhisperModelPath != "" {
		liveProvider = providers.NewWhisperStreamingProvider(cfg.Providers.WhisperModelPath)
	}

	var speakerService pipeline.SpeakerRecognitionService
	if cfg.Providers.SpeakerServiceURL != "" {
		speakerService = pipeline.NewHTTPSpeakerRecognitionService(cfg.Providers.SpeakerServiceURL, cfg.Providers.SpeakerAPIKey)
	}

	var llmClient *pipeline.AnyLLMClient
	if cfg.Providers.LLMProvider != "" {
		llmClient, err = pipeline.NewAnyLLMClient(cfg.Providers.LLMProvider, cfg.Providers.LLMModel, cfg.Providers.LLMAPIKey)
		if err != nil {
			return nil, fmt.Errorf("build llm client: %w", err)
		}
	}

	var gcsMirror *pipeline.GCSAudioMirror
	var audioMirror pipeline.AudioMirror
	if cfg.Storage.GCSBucket != "" {
		gcsMirror, err = pipeline.NewGCSAudioMirror(ctx, cfg.Storage.GCSBucket)
		if err != nil {
			return nil, fmt.Errorf("build audio mirror: %w", err)
		}
		audioMirror = gcsMirror
	}

	var memoryProvider pipeline.MemoryProvider
	if cfg.Providers.MemoryDatabaseURL != "" && llmClient != nil {
		memPool, err := pipeline.NewPgvectorMemoryPool(ctx, cfg.Providers.MemoryDatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect memory store: %w", err)
		}
		embedder := pipeline.NewHTTPEmbedder(cfg.Providers.EmbeddingServiceURL, cfg.Providers.EmbeddingAPIKey)
		memoryProvider, err = pipeline.NewPgvectorMemoryProvider(ctx, memPool, llmClient, embedder, cfg.Providers.MemoryEmbeddingDims)
		if err != nil {
			return nil, fmt.Errorf("build memory provider: %w", err)
		}
	}

	pipelineHandlers := &pipeline.Handlers{
		Store:     conversationStore,
		Scheduler: scheduler,
		Jobs:      cfg.Jobs,
		Batch:     batchProvider,
		Speaker:   speakerService,
		Memory:    memoryProvider,
		// Primary is left nil: no pack repo or configuration surface
		// supplies a concrete PrimarySpeakers allowlist source, and
		// HandleMemoryExtract already treats a nil Primary as "skip the
		// primary-speaker filter" (§4.I).
		Primary: nil,
		LLM:     llmClient,
		Crop:    pipeline.WAVCropper{},
		Mirror:  audioMirror,
	}

	speechDetectHandler := &jobsinfra.SpeechDetectHandler{
		Bus:             streamBus,
		SessionRegistry: registry,
		SessionView:     sessionView,
		ConvStore:       conversationStore,
		JobEnqueuer:     jobEnqueuer,
		ConvConfig:      conversationConfig(cfg),
		Thresholds:      speech.Thresholds{WMin: cfg.Speech.WMin, CMin: cfg.Speech.CMin, DMin: cfg.Speech.DMin},
	}

	mux := jobsinfra.BuildMux(pipelineHandlers, speechDetectHandler)

	resolver := middleware.NewHeaderResolver()
	authMiddleware := middleware.NewPrincipalMiddleware(resolver)

	duplex := duplexhandlers.NewDuplexHandlers(
		registry,
		tracker,
		streamBus,
		jobEnqueuer,
		conversationStore,
		liveProvider,
		cfg.Storage.ChunkDir,
		cfg.Providers.DiarizationServiceURL != "",
		logger,
	)

	convHandlers := conversationhandlers.NewConversationHandlers(conversationStore, jobEnqueuer)
	uploadHandlers := conversationhandlers.NewUploadHandlers(conversationStore, jobEnqueuer, cfg.Storage.ChunkDir)

	return &Container{
		Config:      cfg,
		Logger:      logger,
		RedisClient: redisClient,
		AsynqClient: asynqClient,
		Bus:         streamBus,
		Registry:    registry,
		AudioMirror: gcsMirror,

		ConnectionTracker: tracker,
		ConversationStore: conversationStore,
		JobRepo:           jobRepo,
		Scheduler:         scheduler,
		JobEnqueuer:       jobEnqueuer,

		Pipeline:     pipelineHandlers,
		Mux:          mux,
		SpeechDetect: speechDetectHandler,

		AuthResolver:   resolver,
		AuthMiddleware: authMiddleware,

		DuplexHandlers:       duplex,
		ConversationHandlers: convHandlers,
		UploadHandlers:       uploadHandlers,

		TranscriptionRoutes: transcriptionroutes.NewTranscriptionRoutes(duplex, authMiddleware),
		ConversationRoutes:  conversationroutes.NewConversationRoutes(convHandlers, uploadHandlers, authMiddleware),
	}, nil
}

// conversationConfig adapts the engine-wide SessionConfig into the
// Conversation Controller's own Config, keeping DefaultConfig's
// TickInterval (not separately exposed as an env var, per §5) while
// taking every timing threshold from configuration.
func conversationConfig(cfg *config.Config) conversation.Config {
	c := conversation.DefaultConfig()
	c.MaxRuntime = cfg.Session.MaxRuntime
	c.InactivityThreshold = cfg.Session.InactivityThreshold
	c.AudioFileWait = cfg.Session.AudioFileWait
	c.WaitForQueueDrain = cfg.Session.WaitForQueueDrain
	return c
}

// Close releases the container's long-lived connections. Called once
// on graceful shutdown.
func (c *Container) Close() error {
	if c.AudioMirror != nil {
		if err := c.AudioMirror.Close(); err != nil {
			return err
		}
	}
	if err := c.AsynqClient.Close(); err != nil {
		return err
	}
	return c.RedisClient.Close()
}
