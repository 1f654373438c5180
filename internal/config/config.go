package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultAPIURL     = "http://127.0.0.1:7480"
	DefaultDBFileName = ".admincc.db"
	DefaultLogLevel   = "info"

	DefaultImageMaxWidth  = 1280
	DefaultImageMaxHeight = 1280
	DefaultImageQuality   = 75
	DefaultImageFormat    = "webp"

	DefaultUploadMaxBytes            int64 = 5 * 1024 * 1024
	DefaultUploadMultipartMaxMemory  int64 = 8 * 1024 * 1024
	DefaultStorageChunkSize                = 255 * 1024
	DefaultRecompressPerBlobTimeoutS       = 120
	DefaultRecompressPageSize              = 100
	DefaultRecompressLockFileName          = ".admincc-recompress.lock"

	configFileName           = ".admincc.toml"
	configDirEnvKey          = "ADMINCC_CONFIG_DIR"
	trustProjectConfigEnvKey = "ADMINCC_TRUST_PROJECT_CONFIG"

	apiURLEnvKey = "ADMINCC_API_URL"
	dbPathEnvKey = "ADMINCC_DB"

	recompressLimitEnvKey     = "RECOMPRESS_LIMIT"
	recompressMaxWidthEnvKey  = "RECOMPRESS_MAX_W"
	recompressMaxHeightEnvKey = "RECOMPRESS_MAX_H"
	recompressQualityEnvKey   = "RECOMPRESS_QUALITY"
	recompressFormatEnvKey    = "RECOMPRESS_FORMAT"
)

// ImageConfig is the transcode policy applied to uploads.
type ImageConfig struct {
	MaxWidth  int    `toml:"max_width"`
	MaxHeight int    `toml:"max_height"`
	Quality   int    `toml:"quality"`
	Format    string `toml:"format"`
}

// UploadConfig bounds incoming uploads.
type UploadConfig struct {
	MaxUploadBytes     int64 `toml:"max_upload_bytes"`
	MultipartMaxMemory int64 `toml:"multipart_max_memory"`
}

// StorageConfig tunes the blob store.
type StorageConfig struct {
	ChunkSize        int `toml:"chunk_size"`
	ReadyWaitSeconds int `toml:"ready_wait_seconds"`
}

// RecompressConfig is the policy of the recompression job.
type RecompressConfig struct {
	MaxWidth              int    `toml:"max_width"`
	MaxHeight             int    `toml:"max_height"`
	Quality               int    `toml:"quality"`
	Format                string `toml:"format"`
	Limit                 int    `toml:"limit"`
	PerBlobTimeoutSeconds int    `toml:"per_blob_timeout_seconds"`
	PageSize              int    `toml:"page_size"`
	LockPath              string `toml:"lock_path"`
}

// Config defines runtime configuration for admincc.
type Config struct {
	APIURL                   string           `toml:"api_url"`
	DBPath                   string           `toml:"db_path"`
	LogLevel                 string           `toml:"log_level"`
	Images                   ImageConfig      `toml:"images"`
	Uploads                  UploadConfig     `toml:"uploads"`
	Storage                  StorageConfig    `toml:"storage"`
	Recompress               RecompressConfig `toml:"recompress"`
	TrustedProjectConfigPath string           `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		DBPath:   "",
		LogLevel: DefaultLogLevel,
		Images: ImageConfig{
			MaxWidth:  DefaultImageMaxWidth,
			MaxHeight: DefaultImageMaxHeight,
			Quality:   DefaultImageQuality,
			Format:    DefaultImageFormat,
		},
		Uploads: UploadConfig{
			MaxUploadBytes:     DefaultUploadMaxBytes,
			MultipartMaxMemory: DefaultUploadMultipartMaxMemory,
		},
		Storage: StorageConfig{
			ChunkSize: DefaultStorageChunkSize,
		},
		Recompress: RecompressConfig{
			MaxWidth:              DefaultImageMaxWidth,
			MaxHeight:             DefaultImageMaxHeight,
			Quality:               DefaultImageQuality,
			Format:                DefaultImageFormat,
			PerBlobTimeoutSeconds: DefaultRecompressPerBlobTimeoutS,
			PageSize:              DefaultRecompressPageSize,
		},
	}
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"api_url",
	"db_path",
	"log_level",
	"images.max_width",
	"images.max_height",
	"images.quality",
	"images.format",
	"uploads.max_upload_bytes",
	"uploads.multipart_max_memory",
	"storage.chunk_size",
	"storage.ready_wait_seconds",
	"recompress.max_width",
	"recompress.max_height",
	"recompress.quality",
	"recompress.format",
	"recompress.limit",
	"recompress.per_blob_timeout_seconds",
	"recompress.page_size",
	"recompress.lock_path",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "db_path":
		return c.DBPath, nil
	case "log_level":
		return c.LogLevel, nil
	case "images.max_width":
		return strconv.Itoa(c.Images.MaxWidth), nil
	case "images.max_height":
		return strconv.Itoa(c.Images.MaxHeight), nil
	case "images.quality":
		return strconv.Itoa(c.Images.Quality), nil
	case "images.format":
		return c.Images.Format, nil
	case "uploads.max_upload_bytes":
		return strconv.FormatInt(c.Uploads.MaxUploadBytes, 10), nil
	case "uploads.multipart_max_memory":
		return strconv.FormatInt(c.Uploads.MultipartMaxMemory, 10), nil
	case "storage.chunk_size":
		return strconv.Itoa(c.Storage.ChunkSize), nil
	case "storage.ready_wait_seconds":
		return strconv.Itoa(c.Storage.ReadyWaitSeconds), nil
	case "recompress.max_width":
		return strconv.Itoa(c.Recompress.MaxWidth), nil
	case "recompress.max_height":
		return strconv.Itoa(c.Recompress.MaxHeight), nil
	case "recompress.quality":
		return strconv.Itoa(c.Recompress.Quality), nil
	case "recompress.format":
		return c.Recompress.Format, nil
	case "recompress.limit":
		return strconv.Itoa(c.Recompress.Limit), nil
	case "recompress.per_blob_timeout_seconds":
		return strconv.Itoa(c.Recompress.PerBlobTimeoutSeconds), nil
	case "recompress.page_size":
		return strconv.Itoa(c.Recompress.PageSize), nil
	case "recompress.lock_path":
		return c.Recompress.LockPath, nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, configFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, configFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	if cfg.DBPath == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.DBPath = filepath.Join(cwd, DefaultDBFileName)
		}
	}

	if apiURL := os.Getenv(apiURLEnvKey); apiURL != "" {
		cfg.APIURL = apiURL
	}
	if dbPath := os.Getenv(dbPathEnvKey); dbPath != "" {
		cfg.DBPath = dbPath
	}
	cfg.applyRecompressEnv()

	cfg.normalizeDefaults()

	return &cfg, nil
}

// applyRecompressEnv honours the RECOMPRESS_* variables. Unparseable values
// are ignored.
func (c *Config) applyRecompressEnv() {
	if v, ok := intEnv(recompressLimitEnvKey); ok && v >= 0 {
		c.Recompress.Limit = v
	}
	if v, ok := intEnv(recompressMaxWidthEnvKey); ok && v > 0 {
		c.Recompress.MaxWidth = v
	}
	if v, ok := intEnv(recompressMaxHeightEnvKey); ok && v > 0 {
		c.Recompress.MaxHeight = v
	}
	if v, ok := intEnv(recompressQualityEnvKey); ok && v > 0 {
		c.Recompress.Quality = v
	}
	if raw := strings.TrimSpace(os.Getenv(recompressFormatEnvKey)); raw != "" {
		c.Recompress.Format = raw
	}
}

func intEnv(key string) (int, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "uploads.max_upload_bytes", "uploads.multipart_max_memory":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "images.max_width", "images.max_height", "images.quality",
		"recompress.max_width", "recompress.max_height", "recompress.quality",
		"recompress.per_blob_timeout_seconds", "recompress.page_size", "storage.chunk_size":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return int64(parsed), nil
	case "recompress.limit", "storage.ready_wait_seconds":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("%s must be a non-negative integer", key)
		}
		return int64(parsed), nil
	case "images.format", "recompress.format":
		switch strings.ToLower(value) {
		case "webp", "jpeg", "jpg", "avif":
			return strings.ToLower(value), nil
		default:
			return nil, fmt.Errorf("%s must be one of webp, jpeg, avif", key)
		}
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func (c *Config) normalizeDefaults() {
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	normalizeImage(&c.Images.MaxWidth, &c.Images.MaxHeight, &c.Images.Quality, &c.Images.Format)
	normalizeImage(&c.Recompress.MaxWidth, &c.Recompress.MaxHeight, &c.Recompress.Quality, &c.Recompress.Format)

	if c.Uploads.MaxUploadBytes <= 0 {
		c.Uploads.MaxUploadBytes = DefaultUploadMaxBytes
	}
	if c.Uploads.MultipartMaxMemory <= 0 {
		c.Uploads.MultipartMaxMemory = DefaultUploadMultipartMaxMemory
	}
	if c.Storage.ChunkSize <= 0 {
		c.Storage.ChunkSize = DefaultStorageChunkSize
	}
	if c.Storage.ReadyWaitSeconds < 0 {
		c.Storage.ReadyWaitSeconds = 0
	}
	if c.Recompress.Limit < 0 {
		c.Recompress.Limit = 0
	}
	if c.Recompress.PerBlobTimeoutSeconds <= 0 {
		c.Recompress.PerBlobTimeoutSeconds = DefaultRecompressPerBlobTimeoutS
	}
	if c.Recompress.PageSize <= 0 {
		c.Recompress.PageSize = DefaultRecompressPageSize
	}
	if strings.TrimSpace(c.Recompress.LockPath) == "" && c.DBPath != "" {
		c.Recompress.LockPath = filepath.Join(filepath.Dir(c.DBPath), DefaultRecompressLockFileName)
	}
}

// normalizeImage falls back to the defaults for out-of-range values.
func normalizeImage(maxWidth, maxHeight, quality *int, format *string) {
	if *maxWidth <= 0 {
		*maxWidth = DefaultImageMaxWidth
	}
	if *maxHeight <= 0 {
		*maxHeight = DefaultImageMaxHeight
	}
	if *quality < 1 || *quality > 100 {
		*quality = DefaultImageQuality
	}
	*format = strings.ToLower(strings.TrimSpace(*format))
	if *format == "" {
		*format = DefaultImageFormat
	}
}
