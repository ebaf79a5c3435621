package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port               int
	LogDirectory       string
	AdminToken         string
	PublicBaseURL      string
	DefaultCameraID    string
	FrameTTL           time.Duration
	FrameSweepInterval time.Duration // 0 keeps eviction lazy (sweep on put only)
	MaxFrameBytes      int64
	CamerasPort        int               // UDP ingest port, 0 disables it
	CameraNames        map[string]string // sender IP -> camera id

	AlertStreakThreshold int
	AlertCooldown        time.Duration
	AlertHistoryLimit    int
	NotifyTimeout        time.Duration

	StateBackend string // file, sqlite, postgres or memory
	StateFile    string
	SQLitePath   string
	DatabaseURL  string

	Notifier         string // twilio, mqtt or log
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	TwilioToNumber   string
	TwilioBaseURL    string
	MQTTBroker       string
	MQTTTopic        string
}

// Load reads an optional .env file and then builds the Config from the environment.
func Load(envFiles ...string) *Config {
	_ = godotenv.Load(envFiles...)

	return &Config{
		Port:               getEnvAsInt("PORT", 8080),
		LogDirectory:       getEnv("LOG_DIR", filepath.Join(".", "logs")),
		AdminToken:         getEnv("ADMIN_TOKEN", ""),
		PublicBaseURL:      strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		DefaultCameraID:    getEnv("DEFAULT_CAMERA_ID", "default"),
		FrameTTL:           getEnvAsDuration("FRAME_TTL", 5*time.Second),
		FrameSweepInterval: getEnvAsDuration("FRAME_SWEEP_INTERVAL", 0),
		MaxFrameBytes:      getEnvAsInt64("MAX_FRAME_BYTES", 10<<20),
		CamerasPort:        getEnvAsInt("CAMERAS_PORT", 0),
		CameraNames:        parseCameraNames(getEnv("CAMERA_NAMES", "")),

		AlertStreakThreshold: getEnvAsInt("ALERT_STREAK_THRESHOLD", 3),
		AlertCooldown:        getEnvAsDuration("ALERT_COOLDOWN", 60*time.Second),
		AlertHistoryLimit:    getEnvAsInt("ALERT_HISTORY_LIMIT", 100),
		NotifyTimeout:        getEnvAsDuration("NOTIFY_TIMEOUT", 10*time.Second),

		StateBackend: strings.ToLower(getEnv("STATE_BACKEND", "file")),
		StateFile:    getEnv("STATE_FILE", filepath.Join(".", ".sms-state.json")),
		SQLitePath:   getEnv("SQLITE_PATH", filepath.Join(".", "data", "camwatch.db")),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		Notifier:         strings.ToLower(getEnv("NOTIFIER", "log")),
		TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber: getEnv("TWILIO_FROM_NUMBER", ""),
		TwilioToNumber:   getEnv("TWILIO_TO_NUMBER", ""),
		TwilioBaseURL:    getEnv("TWILIO_BASE_URL", "https://api.twilio.com"),
		MQTTBroker:       getEnv("MQTT_BROKER", "localhost:1883"),
		MQTTTopic:        getEnv("MQTT_TOPIC", "camwatch/alerts"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go duration strings ("5s") or a bare number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

func parseCameraNames(raw string) map[string]string {
	names := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		ip, name, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found {
			continue
		}
		ip, name = strings.TrimSpace(ip), strings.TrimSpace(name)
		if ip == "" || name == "" {
			continue
		}
		names[ip] = name
	}
	return names
}
