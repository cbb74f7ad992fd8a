// Package config provides configuration for the study assistant mesh.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the mesh configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Storage
	DatabaseURL string
	IndexPath   string

	// Bus: "memory" or "redis"
	Bus       string
	RedisAddr string

	// LLM collaborator (OpenAI-compatible endpoint)
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
	EmbedModel string
	LLMTimeout time.Duration

	// Course source
	CanvasBaseURL  string
	CourseFilesDir string

	// Retrieval
	ChunkSize    int
	ChunkOverlap int
	RetrieveTopK int

	// Workflow
	MaxSolveAttempts int
	SubmitTimeout    time.Duration
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:         getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:      getEnv("DATABASE_URL", "file:assistant.db?cache=shared&mode=rwc"),
		IndexPath:        getEnv("INDEX_PATH", "file:knowledge.db?cache=shared&mode=rwc"),
		Bus:              getEnv("BUS", "memory"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		LLMBaseURL:       getEnv("LLM_BASE_URL", "http://localhost:4000"),
		LLMAPIKey:        getEnv("LLM_API_KEY", ""),
		LLMModel:         getEnv("LLM_MODEL", "gpt-4"),
		EmbedModel:       getEnv("EMBED_MODEL", "text-embedding-3-small"),
		LLMTimeout:       time.Duration(getEnvInt("LLM_TIMEOUT_MS", 120000)) * time.Millisecond,
		CanvasBaseURL:    getEnv("CANVAS_BASE_URL", "https://canvas.instructure.com/api/v1"),
		CourseFilesDir:   getEnv("COURSE_FILES_DIR", "course_files"),
		ChunkSize:        getEnvInt("CHUNK_SIZE", 500),
		ChunkOverlap:     getEnvInt("CHUNK_OVERLAP", 50),
		RetrieveTopK:     getEnvInt("RETRIEVE_TOP_K", 4),
		MaxSolveAttempts: getEnvInt("MAX_SOLVE_ATTEMPTS", 2),
		SubmitTimeout:    time.Duration(getEnvInt("SUBMIT_TIMEOUT_MS", 100000)) * time.Millisecond,
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
