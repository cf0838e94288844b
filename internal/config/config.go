package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Detector DetectorConfig
	Dedup    DedupConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	Storage  StorageConfig
	Render   RenderConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Environment  string
}

type DetectorConfig struct {
	Backend        string // http | onnx
	URL            string
	ModelPath      string
	ClassNames     []string
	Timeout        time.Duration
	MaxConcurrency int
	MinConfidence  float64
	WarmupInterval time.Duration
}

type DedupConfig struct {
	Backend  string // memory | redis
	TTL      time.Duration
	Capacity int
	KeyName  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RabbitMQConfig struct {
	URL      string
	Exchange string
}

type StorageConfig struct {
	MaxFileSize    int64
	MaxImagePixels int64
	AllowedTypes   []string
}

type RenderConfig struct {
	JPEGQuality int
	MaxSide     int
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getDuration("READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDuration("WRITE_TIMEOUT", 60*time.Second),
			Environment:  getEnv("ENVIRONMENT", "development"),
		},
		Detector: DetectorConfig{
			Backend:        getEnv("DETECTOR_BACKEND", "http"),
			URL:            getEnv("DETECTOR_URL", "http://localhost:8000"),
			ModelPath:      getEnv("DETECTOR_MODEL_PATH", "./models/best.onnx"),
			ClassNames:     getEnvAsList("DETECTOR_CLASS_NAMES", nil),
			Timeout:        getDuration("DETECTOR_TIMEOUT", 30*time.Second),
			MaxConcurrency: getEnvAsInt("DETECTOR_MAX_CONCURRENCY", 4),
			MinConfidence:  getEnvAsFloat("DETECTOR_MIN_CONFIDENCE", 0.25),
			WarmupInterval: getDuration("DETECTOR_WARMUP_INTERVAL", 10*time.Second),
		},
		Dedup: DedupConfig{
			Backend:  getEnv("DEDUP_BACKEND", "memory"),
			TTL:      getDuration("DEDUP_TTL", time.Hour),
			Capacity: getEnvAsInt("DEDUP_CAPACITY", 10000),
			KeyName:  getEnv("DEDUP_REDIS_KEY", "damage:fingerprints"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      getEnv("RABBITMQ_URL", ""),
			Exchange: getEnv("RABBITMQ_EXCHANGE", "damage.analysis"),
		},
		Storage: StorageConfig{
			MaxFileSize:    getEnvAsInt64("MAX_FILE_SIZE", 10*1024*1024), // 10MB
			MaxImagePixels: getEnvAsInt64("MAX_IMAGE_PIXELS", 50_000_000),
			AllowedTypes: getEnvAsList("ALLOWED_IMAGE_TYPES", []string{
				"image/jpeg", "image/jpg", "image/png", "image/webp", "image/gif", "image/bmp", "image/tiff",
			}),
		},
		Render: RenderConfig{
			JPEGQuality: getEnvAsInt("RENDER_JPEG_QUALITY", 90),
			MaxSide:     getEnvAsInt("RENDER_MAX_SIDE", 0),
		},
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsList(key string, defaultVal []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}
