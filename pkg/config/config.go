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
	Port                    string
	Env                     string
	LogLevel                string
	FirebaseCredentialsPath string
	FirebaseProjectID       string
	FirebaseStorageBucket   string
	Backend                 string
	MongoURI                string
	MongoDatabase           string
	SessionStore            string
	PostgresConnStr         string
	RedisURL                string
	DeviceID                string
	SessionSecret           string
	SessionTTL              time.Duration
	ImageStorage            string
	S3Region                string
	S3Endpoint              string
	S3AccessKey             string
	S3SecretKey             string
	S3Bucket                string
	FeedPageSize            int
	AlertDuration           time.Duration
	PushEnabled             bool
}

// Load reads the configuration from the environment, after loading .env
// when one is present.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, assuming environment variables are set.")
	}

	return &Config{
		Port:                    getEnv("PORT", "8080"),
		Env:                     getEnv("ENV", "development"),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", "./firebase_credentials.json"),
		FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseStorageBucket:   getEnv("FIREBASE_STORAGE_BUCKET", ""),
		Backend:                 strings.ToLower(getEnv("BACKEND", "firestore")),
		MongoURI:                getEnv("MONGO_URI", ""),
		MongoDatabase:           getEnv("MONGO_DATABASE", "socialmedia"),
		SessionStore:            strings.ToLower(getEnv("SESSION_STORE", "memory")),
		PostgresConnStr:         getEnv("POSTGRES_CONN_STR", ""),
		RedisURL:                getEnv("REDIS_URL", "redis://localhost:6379/0"),
		DeviceID:                getEnv("DEVICE_ID", hostname()),
		SessionSecret:           getEnv("SESSION_SECRET", "supersecretjwtkey"),
		SessionTTL:              getDuration("SESSION_TTL", 72*time.Hour),
		ImageStorage:            strings.ToLower(getEnv("IMAGE_STORAGE", "firebase")),
		S3Region:                getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:              getEnv("S3_ENDPOINT", ""),
		S3AccessKey:             getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:             getEnv("S3_SECRET_KEY", ""),
		S3Bucket:                getEnv("S3_BUCKET", ""),
		FeedPageSize:            getInt("FEED_PAGE_SIZE", 10),
		AlertDuration:           getDuration("ALERT_DURATION", 2*time.Second),
		PushEnabled:             getBool("PUSH_ENABLED", false),
	}
}

// NeedsFirebase reports whether a configured store or the push sender
// depends on Firebase. Sign-in always does.
func (c *Config) NeedsFirebase() bool {
	return c.Backend == "firestore" || c.ImageStorage == "firebase" || c.PushEnabled
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}

func getBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "local"
	}
	return h
}
