package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the workspace configuration file.
const DefaultFileName = "nimp.yaml"

// Config holds all nimp configuration.
type Config struct {
	// Nim toolchain
	Nim NimConfig `yaml:"nim"`

	// Call generation
	Generation GenerationConfig `yaml:"generation"`

	// Knowledge base persistence
	Knowledge KnowledgeConfig `yaml:"knowledge"`

	// Unknown-type resolution
	Resolver ResolverConfig `yaml:"resolver"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// NimConfig locates the Nim installation and the scratch files the pipeline writes.
type NimConfig struct {
	Root           string   `yaml:"root"`            // Nim checkout; bin/nim and lib/ live below it
	Binary         string   `yaml:"binary"`          // overrides <root>/bin/nim
	StagingPath    string   `yaml:"staging_path"`    // generated compilation unit
	OutputPath     string   `yaml:"output_path"`     // compiled binary (discarded)
	DocPath        string   `yaml:"doc_path"`        // jsondoc output
	Defines        []string `yaml:"defines"`         // -d: flags passed to nim c
	CompileTimeout string   `yaml:"compile_timeout"` // "0" disables the timeout
	DocTimeout     string   `yaml:"doc_timeout"`
	MaxOutputBytes int64    `yaml:"max_output_bytes"`
}

// GenerationConfig configures the call generator and repair loop.
type GenerationConfig struct {
	Imports       []string `yaml:"imports"`        // preamble imports
	Repair        bool     `yaml:"repair"`         // run the compile-feedback loop
	MaxIterations int      `yaml:"max_iterations"` // 0 = until convergence
}

// KnowledgeConfig selects the knowledge store backend.
type KnowledgeConfig struct {
	Backend   string `yaml:"backend"`    // file, sqlite, memory
	Path      string `yaml:"path"`       // snapshot file or database
	SQLDriver string `yaml:"sql_driver"` // sqlite3 (cgo) or sqlite (pure Go)
}

// ResolverConfig configures how unknown types get classified.
type ResolverConfig struct {
	Mode        string            `yaml:"mode"`  // prompt, tui, default, gemini
	Seeds       map[string]string `yaml:"seeds"` // type name -> "ref", "object" or "literal: <expr>"
	GeminiModel string            `yaml:"gemini_model"`
	APIKey      string            `yaml:"api_key"`
	Timeout     string            `yaml:"timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Nim: NimConfig{
			Root:           "",
			StagingPath:    filepath.Join(os.TempDir(), "dummy_code.nim"),
			OutputPath:     filepath.Join(os.TempDir(), "dummy_nim"),
			DocPath:        filepath.Join(os.TempDir(), "nimdoc.json"),
			Defines:        []string{"nimCoroutines", "release", "ssl"},
			CompileTimeout: "0",
			DocTimeout:     "0",
			MaxOutputBytes: 4 * 1024 * 1024,
		},

		Generation: GenerationConfig{
			Imports: []string{
				"os", "tables", "strutils", "times", "heapqueue", "lists",
				"options", "asyncstreams", "nativesockets", "net", "deques",
			},
			Repair:        true,
			MaxIterations: 0,
		},

		Knowledge: KnowledgeConfig{
			Backend:   "file",
			Path:      filepath.Join(".nimp", "knowledge.json"),
			SQLDriver: "sqlite3",
		},

		Resolver: ResolverConfig{
			Mode:        "prompt",
			GeminiModel: "gemini-2.5-flash",
			Timeout:     "60s",
		},

		Logging: LoggingConfig{
			Level:     "info",
			DebugMode: false,
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if root := os.Getenv("NIMP_NIMPATH"); root != "" {
		c.Nim.Root = root
	}
	if p := os.Getenv("NIMP_KB_PATH"); p != "" {
		c.Knowledge.Path = p
	}
	if b := os.Getenv("NIMP_KB_BACKEND"); b != "" {
		c.Knowledge.Backend = b
	}
	if mode := os.Getenv("NIMP_RESOLVER"); mode != "" {
		c.Resolver.Mode = mode
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Resolver.APIKey = key
	}
}

// NimBinary returns the nim executable path.
func (c *Config) NimBinary() string {
	if c.Nim.Binary != "" {
		return c.Nim.Binary
	}
	if c.Nim.Root == "" {
		return "nim"
	}
	return filepath.Join(c.Nim.Root, "bin", "nim")
}

// LibraryPath maps a library identifier such as "pure/strutils" to its source file.
func (c *Config) LibraryPath(lib string) string {
	p := lib
	if !strings.HasSuffix(p, ".nim") {
		p += ".nim"
	}
	if filepath.IsAbs(p) || c.Nim.Root == "" {
		return p
	}
	return filepath.Join(c.Nim.Root, "lib", p)
}

// GetCompileTimeout returns the compiler timeout; zero means none.
func (c *Config) GetCompileTimeout() time.Duration {
	return parseDurationOr(c.Nim.CompileTimeout, 0)
}

// GetDocTimeout returns the jsondoc timeout; zero means none.
func (c *Config) GetDocTimeout() time.Duration {
	return parseDurationOr(c.Nim.DocTimeout, 0)
}

// GetResolverTimeout returns the timeout applied to one LLM classification.
func (c *Config) GetResolverTimeout() time.Duration {
	return parseDurationOr(c.Resolver.Timeout, 60*time.Second)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" || s == "0" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// ValidBackends lists all supported knowledge store backends.
var ValidBackends = []string{"file", "sqlite", "memory"}

// ValidResolverModes lists all supported resolver modes.
var ValidResolverModes = []string{"prompt", "tui", "default", "gemini"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !contains(ValidBackends, c.Knowledge.Backend) {
		return fmt.Errorf("invalid knowledge backend: %s (valid: %v)", c.Knowledge.Backend, ValidBackends)
	}
	if c.Knowledge.Backend == "sqlite" && c.Knowledge.SQLDriver != "sqlite3" && c.Knowledge.SQLDriver != "sqlite" {
		return fmt.Errorf("invalid sql driver: %s (valid: sqlite3, sqlite)", c.Knowledge.SQLDriver)
	}
	if !contains(ValidResolverModes, c.Resolver.Mode) {
		return fmt.Errorf("invalid resolver mode: %s (valid: %v)", c.Resolver.Mode, ValidResolverModes)
	}
	if c.Resolver.Mode == "gemini" && c.Resolver.APIKey == "" {
		return fmt.Errorf("gemini resolver requires an API key (set GEMINI_API_KEY)")
	}
	if c.Nim.StagingPath == "" {
		return fmt.Errorf("nim.staging_path must be set")
	}
	if c.Generation.MaxIterations < 0 {
		return fmt.Errorf("generation.max_iterations must be >= 0, got %d", c.Generation.MaxIterations)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
