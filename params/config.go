package params

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Server struct {
	ListenAddr string
	// SnapshotDepth is the default number of price levels per side in
	// orderbook responses.
	SnapshotDepth int
}

type Storage struct {
	// DBPath is the Pebble directory. Empty selects the in-memory store
	// (state is lost on restart; meant for local experiments).
	DBPath string
}

type Config struct {
	Server  Server
	Storage Storage
	LogFile string
	// AdminAPIKey seeds the admin account on first start. Generated and
	// logged when empty.
	AdminAPIKey string
}

func Default() Config {
	return Config{
		Server: Server{
			ListenAddr:    ":8080",
			SnapshotDepth: 10,
		},
		Storage: Storage{
			DBPath: "data/exchange.db",
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	if addr := os.Getenv("LISTEN"); addr != "" {
		cfg.Server.ListenAddr = addr
	}
	if depth := os.Getenv("ORDERBOOK_DEPTH"); depth != "" {
		if n, err := strconv.Atoi(depth); err == nil && n > 0 {
			cfg.Server.SnapshotDepth = n
		}
	}
	if path, ok := os.LookupEnv("DB_PATH"); ok {
		cfg.Storage.DBPath = path
	}
	if logFile := os.Getenv("LOG_FILE"); logFile != "" {
		cfg.LogFile = logFile
	}
	if key := os.Getenv("ADMIN_API_KEY"); key != "" {
		cfg.AdminAPIKey = key
	}

	return cfg
}
