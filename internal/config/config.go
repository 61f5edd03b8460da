package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// CasdoorConfig holds the Casdoor identity provider settings.
type CasdoorConfig struct {
	Endpoint     string
	ClientID     string
	ClientSecret string
	Cert         string
	Organization string
	Application  string
}

// GenAIConfig holds the generative content service settings.
type GenAIConfig struct {
	BaseURL string
	APIKey  string

	// Per-call deadlines. A timed-out call is treated like any other
	// failure (fallback question set, missing media).
	QuestionTimeout time.Duration
	ImageTimeout    time.Duration
	SpeechTimeout   time.Duration
}

// ExamConfig holds exam session policy settings.
type ExamConfig struct {
	QuestionsPerSet  int
	FullExamMinutes  int
	SkillExamMinutes int

	// AdminEmail is granted a 3-month plan on first sign-in.
	AdminEmail    string
	FreeExamCount int

	// SpokenOptionMarkers are substrings used to detect the
	// "select what you hear" listening variant when the generative
	// schema omits the explicit flag.
	SpokenOptionMarkers []string
}

type Config struct {
	Environment string
	Port        string
	LogLevel    slog.Level

	DatabaseURL string
	RedisURL    string

	KafkaBrokers []string

	Casdoor CasdoorConfig
	GenAI   GenAIConfig
	Exam    ExamConfig
}

// LoadConfig reads configuration from the environment, with an optional
// .env file for local development.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Port:        getEnv("PORT", "8080"),
		LogLevel:    parseLogLevel(getEnv("LOG_LEVEL", "info")),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		Casdoor: CasdoorConfig{
			Endpoint:     getEnv("CASDOOR_ENDPOINT", ""),
			ClientID:     getEnv("CASDOOR_CLIENT_ID", ""),
			ClientSecret: getEnv("CASDOOR_CLIENT_SECRET", ""),
			Cert:         getEnv("CASDOOR_CERT", ""),
			Organization: getEnv("CASDOOR_ORGANIZATION", ""),
			Application:  getEnv("CASDOOR_APPLICATION", ""),
		},
		GenAI: GenAIConfig{
			BaseURL:         getEnv("GENAI_BASE_URL", ""),
			APIKey:          getEnv("GENAI_API_KEY", ""),
			QuestionTimeout: getEnvDuration("GENAI_QUESTION_TIMEOUT", 30*time.Second),
			ImageTimeout:    getEnvDuration("GENAI_IMAGE_TIMEOUT", 20*time.Second),
			SpeechTimeout:   getEnvDuration("GENAI_SPEECH_TIMEOUT", 20*time.Second),
		},
		Exam: ExamConfig{
			QuestionsPerSet:  getEnvInt("EXAM_QUESTIONS_PER_SET", 20),
			FullExamMinutes:  getEnvInt("EXAM_FULL_MINUTES", 50),
			SkillExamMinutes: getEnvInt("EXAM_SKILL_MINUTES", 25),
			AdminEmail:       getEnv("ADMIN_EMAIL", ""),
			FreeExamCount:    getEnvInt("FREE_EXAM_COUNT", 3),
			SpokenOptionMarkers: getEnvList("SPOKEN_OPTION_MARKERS",
				[]string{"들리는", "select what you hear", "듣고 고르"}),
		},
	}

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
