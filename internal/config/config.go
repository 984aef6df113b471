// Package config loads forge's layered configuration: compiled-in
// defaults, an optional user config, a project config, and environment
// overrides, in that order of increasing precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ContentStoreProvider names which content.Provider backend a Config
// selects.
type ContentStoreProvider string

const (
	ContentStoreMemory ContentStoreProvider = "memory"
	ContentStoreLocal  ContentStoreProvider = "local"
	ContentStoreGRPC   ContentStoreProvider = "grpc"
	ContentStoreHTTP   ContentStoreProvider = "http"
)

// Config is forge's complete configuration.
type Config struct {
	Version      int                `yaml:"version" json:"version"`
	ContentStore ContentStoreConfig `yaml:"content_store" json:"content_store"`
	Compilers    CompilersConfig    `yaml:"compilers" json:"compilers"`
	BuildIndex   BuildIndexConfig   `yaml:"build_index" json:"build_index"`
	Core         CoreConfig         `yaml:"core" json:"core"`
	Server       ServerConfig       `yaml:"server" json:"server"`
}

// ContentStoreConfig selects and tunes the content.Provider backend stack.
// Provider selection and the tee/upload buffer sizes can be overridden
// wholesale by the CONTENT_STORE_CONFIG env var, which names an alternate
// YAML file to layer over this section only (e.g. for a CI job pointing at
// a shared gRPC store without touching the rest of the config).
type ContentStoreConfig struct {
	// Provider selects the backend: "memory", "local", "grpc", or "http".
	Provider ContentStoreProvider `yaml:"provider" json:"provider"`

	// LocalDir is the directory a "local" provider stores blobs under.
	LocalDir string `yaml:"local_dir" json:"local_dir"`

	// CacheDir, if set, wraps a "grpc" or "http" provider in a
	// CachingProvider backed by a "local" provider rooted here (tees remote
	// reads into a local cache). It has no effect on "memory" or "local".
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// GRPCAddress and GRPCDataSpace configure a "grpc" provider.
	GRPCAddress   string `yaml:"grpc_address" json:"grpc_address"`
	GRPCDataSpace string `yaml:"grpc_data_space" json:"grpc_data_space"`

	// UploadBaseURL configures an "http" presigned-URL provider.
	UploadBaseURL string `yaml:"upload_base_url" json:"upload_base_url"`

	// InlineThreshold overrides contentid's default inline-content cutoff.
	InlineThreshold int `yaml:"inline_threshold" json:"inline_threshold"`

	// TeeBufferSize bounds the buffered channel a CachingProvider's tee
	// read uses to fan a remote read out to the caller and the local
	// cache writer concurrently.
	TeeBufferSize int `yaml:"tee_buffer_size" json:"tee_buffer_size"`

	// UploadBufferSize bounds the duplex pipe an HTTP presigned-URL
	// upload writer streams through.
	UploadBufferSize int `yaml:"upload_buffer_size" json:"upload_buffer_size"`
}

// CompilersConfig configures compiler discovery.
type CompilersConfig struct {
	// SearchPaths are scanned, in order, for compiler executables.
	SearchPaths []string `yaml:"search_paths" json:"search_paths"`
}

// BuildIndexConfig configures the persistent build-graph database.
type BuildIndexConfig struct {
	// Path is the build index's SQLite file path.
	Path string `yaml:"path" json:"path"`

	// ProjectIndexPath is the project resource index a freshly created
	// build index is bound to.
	ProjectIndexPath string `yaml:"project_index_path" json:"project_index_path"`
}

// CoreConfig names the core version compilers and the build index are
// validated against.
type CoreConfig struct {
	// VersionOverride, if set, takes precedence over the compiled-in
	// core version (also overridable via CORE_DATA_BUILD_VERSION, which
	// takes precedence over this field so tests can pin a version
	// without touching a config file).
	VersionOverride string `yaml:"version_override" json:"version_override"`
}

// ServerConfig configures the content-store daemon.
type ServerConfig struct {
	// Transport is the daemon's listen mechanism: "unix" (default) or
	// "grpc".
	Transport string `yaml:"transport" json:"transport"`

	// SocketPath is the unix socket path for "unix" transport.
	SocketPath string `yaml:"socket_path" json:"socket_path"`

	// LogLevel is the slog level name: "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// NewConfig returns a Config populated with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		ContentStore: ContentStoreConfig{
			Provider:         ContentStoreLocal,
			LocalDir:         defaultContentStoreDir(),
			InlineThreshold:  64,
			TeeBufferSize:    32 * 1024,
			UploadBufferSize: 64 * 1024,
		},
		Compilers: CompilersConfig{
			SearchPaths: defaultCompilerSearchPaths(),
		},
		BuildIndex: BuildIndexConfig{
			Path:             filepath.Join(defaultDataDir(), "build_index.db"),
			ProjectIndexPath: "project.json",
		},
		Server: ServerConfig{
			Transport:  "unix",
			SocketPath: filepath.Join(defaultDataDir(), "forge.sock"),
			LogLevel:   "info",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".forge")
	}
	return filepath.Join(home, ".forge")
}

func defaultContentStoreDir() string {
	return filepath.Join(defaultDataDir(), "content")
}

func defaultCompilerSearchPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{filepath.Join(home, ".forge", "compilers")}
}

// GetUserConfigPath returns the user/global configuration file path,
// following the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/forge/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/forge/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "forge", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "forge", "config.yaml")
	}
	return filepath.Join(home, ".config", "forge", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// Load loads configuration for the project rooted at dir, applying layers
// in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/forge/config.yaml)
//  3. Project config (.forge.yaml in dir, or the path named by FORGE_CONFIG)
//  4. Environment variable overrides (FORGE_*, CONTENT_STORE_CONFIG, CORE_DATA_BUILD_VERSION)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	if err := cfg.loadContentStoreOverride(); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads .forge.yaml/.forge.yml from dir, or the file named by
// FORGE_CONFIG if set.
func (c *Config) loadFromFile(dir string) error {
	if explicit := os.Getenv("FORGE_CONFIG"); explicit != "" {
		if !fileExists(explicit) {
			return fmt.Errorf("FORGE_CONFIG points to missing file: %s", explicit)
		}
		return c.loadYAML(explicit)
	}

	yamlPath := filepath.Join(dir, ".forge.yaml")
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}
	ymlPath := filepath.Join(dir, ".forge.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}
	return nil
}

// loadContentStoreOverride layers the file named by CONTENT_STORE_CONFIG
// over the content-store section only, leaving the rest of the config as
// already resolved.
func (c *Config) loadContentStoreOverride() error {
	path := os.Getenv("CONTENT_STORE_CONFIG")
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read CONTENT_STORE_CONFIG file %s: %w", path, err)
	}
	var override struct {
		ContentStore ContentStoreConfig `yaml:"content_store"`
	}
	if err := yaml.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("failed to parse CONTENT_STORE_CONFIG file %s: %w", path, err)
	}
	c.mergeContentStore(&override.ContentStore)
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	c.mergeContentStore(&other.ContentStore)

	if len(other.Compilers.SearchPaths) > 0 {
		c.Compilers.SearchPaths = other.Compilers.SearchPaths
	}

	if other.BuildIndex.Path != "" {
		c.BuildIndex.Path = other.BuildIndex.Path
	}
	if other.BuildIndex.ProjectIndexPath != "" {
		c.BuildIndex.ProjectIndexPath = other.BuildIndex.ProjectIndexPath
	}

	if other.Core.VersionOverride != "" {
		c.Core.VersionOverride = other.Core.VersionOverride
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.SocketPath != "" {
		c.Server.SocketPath = other.Server.SocketPath
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

func (c *Config) mergeContentStore(other *ContentStoreConfig) {
	if other.Provider != "" {
		c.ContentStore.Provider = other.Provider
	}
	if other.LocalDir != "" {
		c.ContentStore.LocalDir = other.LocalDir
	}
	if other.CacheDir != "" {
		c.ContentStore.CacheDir = other.CacheDir
	}
	if other.GRPCAddress != "" {
		c.ContentStore.GRPCAddress = other.GRPCAddress
	}
	if other.GRPCDataSpace != "" {
		c.ContentStore.GRPCDataSpace = other.GRPCDataSpace
	}
	if other.UploadBaseURL != "" {
		c.ContentStore.UploadBaseURL = other.UploadBaseURL
	}
	if other.InlineThreshold != 0 {
		c.ContentStore.InlineThreshold = other.InlineThreshold
	}
	if other.TeeBufferSize != 0 {
		c.ContentStore.TeeBufferSize = other.TeeBufferSize
	}
	if other.UploadBufferSize != 0 {
		c.ContentStore.UploadBufferSize = other.UploadBufferSize
	}
}

// applyEnvOverrides applies FORGE_* and the two spec-named env vars
// (CONTENT_STORE_CONFIG is handled earlier, as a file layer; the
// provider/search-path/log-level scalars below are simple overrides).
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("FORGE_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("FORGE_CONTENT_STORE_PROVIDER"); v != "" {
		c.ContentStore.Provider = ContentStoreProvider(v)
	}
	if v := os.Getenv("FORGE_COMPILER_SEARCH_PATHS"); v != "" {
		c.Compilers.SearchPaths = strings.Split(v, string(os.PathListSeparator))
	}
	if v := os.Getenv("FORGE_BUILD_INDEX_PATH"); v != "" {
		c.BuildIndex.Path = v
	}
	if v := os.Getenv("CORE_DATA_BUILD_VERSION"); v != "" {
		c.Core.VersionOverride = v
	}
	if v := os.Getenv("FORGE_INLINE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.ContentStore.InlineThreshold = n
		}
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	validProviders := map[ContentStoreProvider]bool{
		ContentStoreMemory: true, ContentStoreLocal: true, ContentStoreGRPC: true, ContentStoreHTTP: true,
	}
	if !validProviders[c.ContentStore.Provider] {
		return fmt.Errorf("content_store.provider must be memory, local, grpc, or http, got %q", c.ContentStore.Provider)
	}
	if c.ContentStore.Provider == ContentStoreGRPC && c.ContentStore.GRPCAddress == "" {
		return fmt.Errorf("content_store.grpc_address is required when provider is grpc")
	}
	if c.ContentStore.Provider == ContentStoreHTTP && c.ContentStore.UploadBaseURL == "" {
		return fmt.Errorf("content_store.upload_base_url is required when provider is http")
	}
	if c.ContentStore.InlineThreshold < 0 {
		return fmt.Errorf("content_store.inline_threshold must be non-negative, got %d", c.ContentStore.InlineThreshold)
	}

	validTransports := map[string]bool{"unix": true, "grpc": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be unix or grpc, got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be debug, info, warn, or error, got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

// FindProjectRoot finds the project root directory by walking up from
// startDir looking for a .git directory or a .forge.yaml/.yml file.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}
		if fileExists(filepath.Join(currentDir, ".forge.yaml")) ||
			fileExists(filepath.Join(currentDir, ".forge.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
