package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Catalog  Catalog  `yaml:"catalog"`
	Storage  Storage  `yaml:"storage"`
	Transfer Transfer `yaml:"transfer"`
	Watch    Watch    `yaml:"watch"`
}

type Catalog struct {
	BaseURL    string        `yaml:"base_url" env:"CLIPSTASH_CATALOG_URL" env-default:"http://localhost:8080"`
	AccessCode string        `yaml:"access_code" env:"CLIPSTASH_ACCESS_CODE"`
	Timeout    time.Duration `yaml:"timeout" env-default:"30s"`
}

type Storage struct {
	DataDir  string `yaml:"data_dir" env:"CLIPSTASH_DATA_DIR" env-default:".clipstash"`
	MediaDir string `yaml:"media_dir" env:"CLIPSTASH_MEDIA_DIR" env-default:"media"`
	DBFile   string `yaml:"db_file" env-default:"clipstash.db"`
}

type Transfer struct {
	ChunkSizeBytes  int64         `yaml:"chunk_size_bytes" env-default:"4194304"`
	SegmentWorkers  int           `yaml:"segment_workers" env-default:"3"`
	MaxActiveVideos int           `yaml:"max_active_videos" env-default:"2"`
	RetryAttempts   int           `yaml:"retry_attempts" env-default:"3"`
	RetryBackoff    time.Duration `yaml:"retry_backoff" env-default:"500ms"`
	Timeout         time.Duration `yaml:"timeout" env-default:"3m"`
	KATimeout       time.Duration `yaml:"keep_alive_timeout" env-default:"90s"`
	UserAgent       string        `yaml:"user_agent" env-default:"clipstash"`
}

type Watch struct {
	SyncInterval       time.Duration `yaml:"sync_interval" env-default:"5m"`
	OptimizingInterval time.Duration `yaml:"optimizing_interval" env-default:"30s"`
}

// Load reads the config file at path, falling back to env vars and
// defaults when the file does not exist. An empty path means env-only.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return nil, err
			}
			return &cfg, nil
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DBPath returns the bolt database location under the data dir.
func (c *Config) DBPath() string {
	return filepath.Join(c.Storage.DataDir, c.Storage.DBFile)
}

// SegmentDir returns the root directory for temporary segment files.
func (c *Config) SegmentDir() string {
	return filepath.Join(c.Storage.DataDir, "segments")
}
