package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"challengerunner/executor"

	"github.com/joho/godotenv"
)

type Config struct {
	MaxWorkers     int
	JobCount       int
	Ratelimit      float64 // requests per second per client
	RatelimitBurst int
	Port           string
	NatsURL        string
	NatsSubject    string

	Environment string
	LogLevel    string
	RunnerLog   string
	AppLog      string

	// sandbox
	Image          string
	MemoryLimitMB  int
	CPULimit       float64
	Timeout        time.Duration
	NetworkMode    string
	PoolSize       int
	WorkspaceRoot  string
	ChallengesRoot string
	MaxCodeLength  int
	SweepInterval  time.Duration

	BetterStackUploadURL   string
	BetterStackSourceToken string
}

func LoadConfig() Config {
	err := godotenv.Load(".env")
	if err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	defaults := executor.DefaultDockerConfig()

	return Config{
		MaxWorkers:     getEnvInt("MAXWORKERS", 4),
		JobCount:       getEnvInt("JOBCOUNT", 16),
		Ratelimit:      getEnvFloat("RATELIMIT", 2),
		RatelimitBurst: getEnvInt("RATELIMITBURST", 5),
		Port:           getEnv("PORT", "8080"),
		NatsURL:        getEnv("NATSURL", "nats://localhost:4222"),
		NatsSubject:    getEnv("NATSSUBJECT", "challenges.verify.request"),

		Environment: getEnv("ENVIRONMENT", "production"),
		LogLevel:    getEnv("LOGLEVEL", "info"),
		RunnerLog:   getEnv("RUNNERLOG", "logs/container.log"),
		AppLog:      getEnv("APPLOG", "app.log"),

		Image:          getEnv("SANDBOXIMAGE", defaults.Image),
		MemoryLimitMB:  getEnvInt("MEMORYLIMITMB", int(defaults.MemoryLimit/(1024*1024))),
		CPULimit:       getEnvFloat("CPULIMIT", defaults.CPULimit),
		Timeout:        getEnvDuration("TIMEOUT", defaults.Timeout),
		NetworkMode:    getEnv("NETWORKMODE", defaults.NetworkMode.String()),
		PoolSize:       getEnvInt("POOLSIZE", defaults.PoolSize),
		WorkspaceRoot:  getEnv("WORKSPACEROOT", ""),
		ChallengesRoot: getEnv("CHALLENGESROOT", "challenges"),
		MaxCodeLength:  getEnvInt("MAXCODELENGTH", 10000),
		SweepInterval:  getEnvDuration("SWEEPINTERVAL", 10*time.Minute),

		BetterStackUploadURL:   getEnv("BETTERSTACKUPLOADURL", ""),
		BetterStackSourceToken: getEnv("BETTERSTACKSOURCETOKEN", ""),
	}
}

// DockerConfig derives the sandbox policy. The result is not validated;
// executor.NewRunner does that.
func (c Config) DockerConfig() (executor.DockerConfig, error) {
	mode, err := executor.ParseNetworkMode(c.NetworkMode)
	if err != nil {
		return executor.DockerConfig{}, err
	}
	return executor.DockerConfig{
		Image:       c.Image,
		MemoryLimit: int64(c.MemoryLimitMB) * 1024 * 1024,
		CPULimit:    c.CPULimit,
		Timeout:     c.Timeout,
		NetworkMode: mode,
		PoolSize:    c.PoolSize,
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("45s") or plain seconds ("45").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
