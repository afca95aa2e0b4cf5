package config

import (
	"os"
	"strconv"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

// OAuthApp holds the registered app credentials of one platform.
type OAuthApp struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

type Publishing struct {
	ImagePollInterval time.Duration
	ImagePollTimeout  time.Duration
	VideoPollInterval time.Duration
	VideoPollTimeout  time.Duration
	CarouselItemDelay time.Duration
	Concurrency       int
	MaxRetries        int
	RetryInitial      time.Duration
	RetryMax          time.Duration
	HTTPTimeout       time.Duration
}

type Config struct {
	LinkedIn        OAuthApp
	Facebook        OAuthApp
	Instagram       OAuthApp
	Twitter         OAuthApp
	Google          OAuthApp
	WhatsApp        OAuthApp
	GraphAPIVersion string
	LinkedInVersion string
	Publishing      Publishing
	PostgresURI     string
	RedisURI        string
	FrontendURL     string
	ListenAddr      string
	R2              R2
	SecretKey       string
	CookieName      string
}

func LoadConfig() *Config {
	return &Config{
		LinkedIn:  loadApp("LINKEDIN"),
		Facebook:  loadApp("FACEBOOK"),
		Instagram: loadApp("INSTAGRAM"),
		Twitter:   loadApp("TWITTER"),
		Google:    loadApp("GOOGLE"),
		WhatsApp:  loadApp("WHATSAPP"),

		GraphAPIVersion: getEnv("GRAPH_API_VERSION", "v21.0"),
		LinkedInVersion: getEnv("LINKEDIN_API_VERSION", "202401"),
		Publishing: Publishing{
			ImagePollInterval: getEnvDuration("IMAGE_POLL_INTERVAL", 2*time.Second),
			ImagePollTimeout:  getEnvDuration("IMAGE_POLL_TIMEOUT", time.Minute),
			VideoPollInterval: getEnvDuration("VIDEO_POLL_INTERVAL", 5*time.Second),
			VideoPollTimeout:  getEnvDuration("VIDEO_POLL_TIMEOUT", 5*time.Minute),
			CarouselItemDelay: getEnvDuration("CAROUSEL_ITEM_DELAY", time.Second),
			Concurrency:       getEnvInt("PUBLISH_CONCURRENCY", 10),
			MaxRetries:        getEnvInt("PUBLISH_MAX_RETRIES", 3),
			RetryInitial:      getEnvDuration("PUBLISH_RETRY_INITIAL", 2*time.Second),
			RetryMax:          getEnvDuration("PUBLISH_RETRY_MAX", 30*time.Second),
			HTTPTimeout:       getEnvDuration("PROVIDER_HTTP_TIMEOUT", 60*time.Second),
		},

		PostgresURI: getEnv("POSTGRES_URI", ""),
		RedisURI:    getEnv("REDIS_URI", "localhost:6379"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
		ListenAddr:  getEnv("LISTEN_ADDR", ":3000"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  getEnv("R2_PUBLIC_URL", ""),
		},
		SecretKey:  getEnv("SECRET_KEY", ""),
		CookieName: getEnv("COOKIE_NAME", "crosspost_session"),
	}
}

func loadApp(prefix string) OAuthApp {
	return OAuthApp{
		ClientID:     getEnv(prefix+"_CLIENT_ID", ""),
		ClientSecret: getEnv(prefix+"_CLIENT_SECRET", ""),
		RedirectURI:  getEnv(prefix+"_REDIRECT_URI", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
