package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	HTTPAddr string

	// State persistence
	StateBackend  string // sqlite | mysql | redis | memory
	SQLitePath    string
	DBDSN         string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	StateKey      string
	StateSecret   string

	// API surface
	AuthSecret  string
	CORSOrigins []string

	// Provider gateway. When GatewayURL is set the playground talks to a
	// remote gateway instead of dispatching in-process.
	GatewayURL       string
	GatewayToken     string
	OpenAIBaseURL    string
	AnthropicBaseURL string
	AnthropicVersion string
	ModelCatalogPath string
	DefaultStreaming bool

	// run log
	RunLogEnabled     bool
	RabbitURL         string
	RabbitQueue       string
	WorkerConcurrency int
}

func Load() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("STATE_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	sqlitePath := os.Getenv("SQLITE_PATH")
	if sqlitePath == "" {
		sqlitePath = "playground.db"
	}

	// DSN demo：
	// app:apppass@tcp(127.0.0.1:3306)/prompt_playground?charset=utf8mb4&parseTime=true&loc=Local
	dsn := os.Getenv("DB_DSN")

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "127.0.0.1:6379"
	}

	redisDB := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			redisDB = n
		}
	}

	stateKey := os.Getenv("STATE_KEY")
	if stateKey == "" {
		stateKey = "playground_chats"
	}

	var origins []string
	for _, o := range strings.Split(os.Getenv("CORS_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	openAIBaseURL := os.Getenv("OPENAI_BASE_URL")
	if openAIBaseURL == "" {
		openAIBaseURL = "https://api.openai.com/v1"
	}
	anthropicBaseURL := os.Getenv("ANTHROPIC_BASE_URL")
	if anthropicBaseURL == "" {
		anthropicBaseURL = "https://api.anthropic.com/v1"
	}
	anthropicVersion := os.Getenv("ANTHROPIC_VERSION")
	if anthropicVersion == "" {
		anthropicVersion = "2023-06-01"
	}

	streaming := true
	if v := os.Getenv("DEFAULT_STREAMING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			streaming = b
		}
	}

	runLog := true
	if v := os.Getenv("RUNLOG_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			runLog = b
		}
	}

	rabbitQueue := os.Getenv("RABBIT_QUEUE")
	if rabbitQueue == "" {
		rabbitQueue = "playground_runs"
	}

	concurrency := 2
	if v := os.Getenv("WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			concurrency = n
		}
	}
	if concurrency > 50 {
		concurrency = 50
	}

	return Config{
		HTTPAddr: addr,

		StateBackend:  backend,
		SQLitePath:    sqlitePath,
		DBDSN:         dsn,
		RedisAddr:     redisAddr,
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,
		StateKey:      stateKey,
		StateSecret:   os.Getenv("STATE_SECRET"),

		AuthSecret:  os.Getenv("AUTH_SECRET"),
		CORSOrigins: origins,

		GatewayURL:       strings.TrimRight(os.Getenv("GATEWAY_URL"), "/"),
		GatewayToken:     os.Getenv("GATEWAY_TOKEN"),
		OpenAIBaseURL:    openAIBaseURL,
		AnthropicBaseURL: anthropicBaseURL,
		AnthropicVersion: anthropicVersion,
		ModelCatalogPath: os.Getenv("MODEL_CATALOG_PATH"),
		DefaultStreaming: streaming,

		RunLogEnabled:     runLog,
		RabbitURL:         os.Getenv("RABBIT_URL"),
		RabbitQueue:       rabbitQueue,
		WorkerConcurrency: concurrency,
	}
}
