package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the engine. It is loaded once at
// startup by container.NewContainer and held on the Container; nothing
// reloads it.
type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Server    ServerConfig
	Providers ProvidersConfig
	Speech    SpeechConfig
	Session   SessionConfig
	Jobs      JobsConfig
	Storage   StorageConfig
}

// DatabaseConfig holds Postgres connection configuration for the
// Conversation Store.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// RedisConfig holds connection configuration for the stream bus, the
// session registry, and the job scheduler's broker.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string
	Env  string
}

// ProvidersConfig gathers capability endpoints for the pluggable provider
// interfaces described in §6. Each is optional: with no live provider the
// Live Transcription Worker does not run, with no speaker service job S
// is a no-op, and with no memory store or LLM client jobs M and U
// complete with the error recorded in their job metadata.
type ProvidersConfig struct {
	AssemblyAIAPIKey      string
	WhisperModelPath      string
	WhisperLanguage       string
	LLMProvider           string // e.g. "openai", "anthropic", "ollama" — passed through to any-llm-go
	LLMModel              string
	LLMAPIKey             string
	MemoryDatabaseURL     string // pgvector-backed store DSN
	MemoryEmbeddingDims   int
	EmbeddingServiceURL   string
	EmbeddingAPIKey       string
	SpeakerServiceURL     string
	SpeakerAPIKey         string
	DiarizationServiceURL string
}

// SpeechConfig holds the meaningful-speech thresholds for §4.F.
type SpeechConfig struct {
	WMin int           // minimum qualifying word count
	CMin float64       // minimum per-word confidence
	DMin time.Duration // minimum speech duration span
}

// SessionConfig holds the Conversation Controller's timing parameters
// from §4.G and §5.
type SessionConfig struct {
	MaxRuntime           time.Duration
	InactivityThreshold  time.Duration
	AudioFileWait        time.Duration
	WaitForQueueDrain    bool // "test drain mode", §9 — never a production default
	ContextPadding       time.Duration
	MinSegmentDuration   time.Duration
}

// JobsConfig holds per-function timeouts and retention from §5.
type JobsConfig struct {
	TranscribeTimeout      time.Duration
	SpeakerRecognizeTimeout time.Duration
	CropTimeout            time.Duration
	MemoryTimeout          time.Duration
	TitleSummaryTimeout    time.Duration
	// SpeechDetectTimeout bounds the Speech-Detection Controller plus the
	// Conversation Controller it hands off to on qualification — the same
	// asynq task runs both, so this must cover a full conversation's
	// lifetime, not just the detection wait.
	SpeechDetectTimeout time.Duration
	ResultTTL           time.Duration
	MaxRetries          int
}

// StorageConfig configures where finalized WAV files live.
type StorageConfig struct {
	ChunkDir    string
	GCSBucket   string // optional remote mirror; empty disables it
}

// Load reads configuration from environment variables, loading a local
// .env file first if one is present.
func Load() (*Config, error) {
	godotenv.Load()

	return &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "chronicle"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("APP_ENV", "development"),
		},
		Providers: ProvidersConfig{
			AssemblyAIAPIKey:      getEnv("ASSEMBLYAI_API_KEY", ""),
			WhisperModelPath:      getEnv("WHISPER_MODEL_PATH", ""),
			WhisperLanguage:       getEnv("WHISPER_LANGUAGE", "en"),
			LLMProvider:           getEnv("LLM_PROVIDER", ""),
			LLMModel:              getEnv("LLM_MODEL", ""),
			LLMAPIKey:             getEnv("LLM_API_KEY", ""),
			MemoryDatabaseURL:     getEnv("MEMORY_DATABASE_URL", ""),
			MemoryEmbeddingDims:   getEnvInt("MEMORY_EMBEDDING_DIMS", 1536),
			EmbeddingServiceURL:   getEnv("EMBEDDING_SERVICE_URL", ""),
			EmbeddingAPIKey:       getEnv("EMBEDDING_API_KEY", ""),
			SpeakerServiceURL:     getEnv("SPEAKER_SERVICE_URL", ""),
			SpeakerAPIKey:         getEnv("SPEAKER_API_KEY", ""),
			DiarizationServiceURL: getEnv("DIARIZATION_SERVICE_URL", ""),
		},
		Speech: SpeechConfig{
			WMin: getEnvInt("SPEECH_W_MIN", 5),
			CMin: getEnvFloat("SPEECH_C_MIN", 0.5),
			DMin: getEnvDuration("SPEECH_D_MIN", 10*time.Second),
		},
		Session: SessionConfig{
			MaxRuntime:          getEnvDuration("SESSION_MAX_RUNTIME", 3*time.Hour-60*time.Second),
			InactivityThreshold: getEnvDuration("SESSION_INACTIVITY_THRESHOLD", 60*time.Second),
			AudioFileWait:       getEnvDuration("SESSION_AUDIO_FILE_WAIT", 30*time.Second),
			WaitForQueueDrain:   getEnvBool("WAIT_FOR_AUDIO_QUEUE_DRAIN", false),
			ContextPadding:      getEnvDuration("CROP_CONTEXT_PADDING", 500*time.Millisecond),
			MinSegmentDuration:  getEnvDuration("CROP_MIN_SEGMENT_DURATION", 200*time.Millisecond),
		},
		Jobs: JobsConfig{
			TranscribeTimeout:       getEnvDuration("JOB_TRANSCRIBE_TIMEOUT", 600*time.Second),
			SpeakerRecognizeTimeout: getEnvDuration("JOB_SPEAKER_TIMEOUT", 600*time.Second),
			CropTimeout:             getEnvDuration("JOB_CROP_TIMEOUT", 300*time.Second),
			MemoryTimeout:           getEnvDuration("JOB_MEMORY_TIMEOUT", 1800*time.Second),
			TitleSummaryTimeout:     getEnvDuration("JOB_TITLE_SUMMARY_TIMEOUT", 300*time.Second),
			SpeechDetectTimeout:     getEnvDuration("JOB_SPEECH_DETECT_TIMEOUT", 3*time.Hour),
			ResultTTL:               getEnvDuration("JOB_RESULT_TTL", 24*time.Hour),
			MaxRetries:              getEnvInt("JOB_MAX_RETRIES", 3),
		},
		Storage: StorageConfig{
			ChunkDir:  getEnv("CHUNK_DIR", "./data/audio_chunks"),
			GCSBucket: getEnv("GCS_BUCKET", ""),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
