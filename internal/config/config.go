package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const (
	defaultWorkspaceName = "default"
	defaultCollection    = "lifelogs"
	defaultOrdering      = "order-key"
	defaultPolicy        = "drop"
	defaultLogLevel      = "info"
	defaultChannel       = "lifelog:commits"
)

var ValidOrderings = map[string]bool{
	"order-key":   true,
	"linked-list": true,
}

var ValidPolicies = map[string]bool{
	"drop":  true,
	"queue": true,
}

var ValidLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

type BroadcastConfig struct {
	RedisURL string `yaml:"redis_url" json:"redis_url"`
	Channel  string `yaml:"channel"   json:"channel"`
}

type BackupConfig struct {
	Bucket    string `yaml:"bucket"     json:"bucket"`
	Prefix    string `yaml:"prefix"     json:"prefix"`
	Region    string `yaml:"region"     json:"region"`
	Endpoint  string `yaml:"endpoint"   json:"endpoint"`
	AccessKey string `yaml:"access_key" json:"access_key"`
	SecretKey string `yaml:"secret_key" json:"secret_key"`
}

type SearchConfig struct {
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// Workspace is one named set of stores and collection settings. Database and
// Remote accept a SQLite path, a postgres:// URL, or "memory".
type Workspace struct {
	Database    string            `yaml:"database"     json:"database"`
	Remote      string            `yaml:"remote"       json:"remote"`
	Collection  string            `yaml:"collection"   json:"collection"`
	Ordering    string            `yaml:"ordering"     json:"ordering"`
	Orderings   map[string]string `yaml:"orderings"    json:"orderings"`
	BatchPolicy string            `yaml:"batch_policy" json:"batch_policy"`
	Broadcast   BroadcastConfig   `yaml:"broadcast"    json:"broadcast"`
	Backup      BackupConfig      `yaml:"backup"       json:"backup"`
	Search      SearchConfig      `yaml:"search"       json:"search"`
}

type Config struct {
	Workspaces       map[string]*Workspace `yaml:"workspaces"        json:"workspaces"`
	CurrentWorkspace string                `yaml:"current_workspace" json:"current_workspace"`
	LogLevel         string                `yaml:"log_level"         json:"log_level"`

	home   string     `yaml:"-"`
	active *Workspace `yaml:"-"`
}

// Settings is the active workspace with environment and flag overrides
// applied. It is never written back to the config file.
type Settings struct {
	Workspace   string
	Driver      string
	Database    string
	Remote      string
	Collection  string
	Ordering    string
	BatchPolicy string
	LogLevel    string
	Broadcast   BroadcastConfig
	Backup      BackupConfig
	CacheSize   int
}

func newWorkspace() *Workspace {
	return &Workspace{
		Collection:  defaultCollection,
		Ordering:    defaultOrdering,
		Orderings:   make(map[string]string),
		BatchPolicy: defaultPolicy,
		Broadcast:   BroadcastConfig{Channel: defaultChannel},
	}
}

func (ws *Workspace) ensureDefaults() {
	ws.Collection = strings.TrimSpace(ws.Collection)
	if ws.Collection == "" {
		ws.Collection = defaultCollection
	}
	if ws.Ordering == "" {
		ws.Ordering = defaultOrdering
	}
	if ws.Orderings == nil {
		ws.Orderings = make(map[string]string)
	}
	if ws.BatchPolicy == "" {
		ws.BatchPolicy = defaultPolicy
	}
	if ws.Broadcast.Channel == "" {
		ws.Broadcast.Channel = defaultChannel
	}
}

func (ws *Workspace) validate() error {
	if !ValidOrderings[ws.Ordering] {
		return fmt.Errorf("invalid ordering: %q. Please choose from 'order-key' or 'linked-list'.", ws.Ordering)
	}
	for coll, ordering := range ws.Orderings {
		if !ValidOrderings[ordering] {
			return fmt.Errorf("invalid ordering %q for collection %q", ordering, coll)
		}
	}
	if !ValidPolicies[ws.BatchPolicy] {
		return fmt.Errorf("invalid batch policy: %q. Please choose from 'drop' or 'queue'.", ws.BatchPolicy)
	}
	return nil
}

// OrderingFor returns the sibling encoding configured for collection.
func (ws *Workspace) OrderingFor(collection string) string {
	if o, ok := ws.Orderings[collection]; ok && o != "" {
		return o
	}
	return ws.Ordering
}

func Load(home string) (*Config, error) {
	path := GetConfigPath(home)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if len(strings.TrimSpace(string(data))) != 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}
	cfg.home = home

	if err := cfg.ensureInitialized(); err != nil {
		return nil, err
	}

	ws, err := cfg.ActiveWorkspace()
	if err != nil {
		return nil, err
	}
	if err := ws.validate(); err != nil {
		return nil, err
	}
	if cfg.LogLevel != "" && !ValidLogLevels[cfg.LogLevel] {
		return nil, fmt.Errorf("invalid log level: %q", cfg.LogLevel)
	}

	return cfg, nil
}

func (cfg *Config) ensureInitialized() error {
	if cfg.Workspaces == nil {
		cfg.Workspaces = make(map[string]*Workspace)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}

	if cfg.CurrentWorkspace == "" {
		if len(cfg.Workspaces) == 0 {
			cfg.Workspaces[defaultWorkspaceName] = newWorkspace()
			cfg.CurrentWorkspace = defaultWorkspaceName
		} else {
			cfg.CurrentWorkspace = cfg.WorkspaceNames()[0]
		}
	}

	return cfg.setActiveWorkspace(cfg.CurrentWorkspace)
}

func (cfg *Config) setActiveWorkspace(name string) error {
	if name == "" {
		return fmt.Errorf("workspace name cannot be empty")
	}
	ws, ok := cfg.Workspaces[name]
	if !ok {
		return fmt.Errorf("workspace %q does not exist", name)
	}
	if ws == nil {
		ws = newWorkspace()
		cfg.Workspaces[name] = ws
	}

	ws.ensureDefaults()
	cfg.CurrentWorkspace = name
	cfg.active = ws
	return nil
}

func (cfg *Config) ActiveWorkspace() (*Workspace, error) {
	if cfg.active != nil {
		return cfg.active, nil
	}

	if cfg.CurrentWorkspace == "" {
		return nil, fmt.Errorf("no workspace is currently selected")
	}

	if err := cfg.setActiveWorkspace(cfg.CurrentWorkspace); err != nil {
		return nil, err
	}

	return cfg.active, nil
}

// Settings resolves the active workspace against viper. Keys "database",
// "remote_url", "redis_url" and "collection" are bound to LIFELOG_* environment
// variables and the --collection flag by the caller.
func (cfg *Config) Settings() (Settings, error) {
	ws, err := cfg.ActiveWorkspace()
	if err != nil {
		return Settings{}, err
	}

	s := Settings{
		Workspace:   cfg.CurrentWorkspace,
		Database:    ws.Database,
		Remote:      ws.Remote,
		Collection:  ws.Collection,
		BatchPolicy: ws.BatchPolicy,
		LogLevel:    cfg.LogLevel,
		Broadcast:   ws.Broadcast,
		Backup:      ws.Backup,
		CacheSize:   ws.Search.CacheSize,
	}
	if v := strings.TrimSpace(viper.GetString("database")); v != "" {
		s.Database = v
	}
	if v := strings.TrimSpace(viper.GetString("remote_url")); v != "" {
		s.Remote = v
	}
	if v := strings.TrimSpace(viper.GetString("redis_url")); v != "" {
		s.Broadcast.RedisURL = v
	}
	if v := strings.TrimSpace(viper.GetString("collection")); v != "" {
		s.Collection = v
	}
	s.Ordering = ws.OrderingFor(s.Collection)

	if s.Database == "" {
		s.Database = filepath.Join(cfg.dir(), cfg.CurrentWorkspace+".db")
	}
	s.Driver = DriverFor(s.Database)
	return s, nil
}

// DriverFor classifies a Database or Remote value.
func DriverFor(target string) string {
	switch {
	case target == DriverMemory:
		return DriverMemory
	case strings.HasPrefix(target, "postgres://"), strings.HasPrefix(target, "postgresql://"):
		return DriverPostgres
	default:
		return DriverSQLite
	}
}

func (cfg *Config) WorkspaceNames() []string {
	names := make([]string, 0, len(cfg.Workspaces))
	for name := range cfg.Workspaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (cfg *Config) SwitchWorkspace(name string) error {
	if err := cfg.setActiveWorkspace(name); err != nil {
		return err
	}
	return cfg.Save()
}

func (cfg *Config) ActivateWorkspace(name string) error {
	return cfg.setActiveWorkspace(name)
}

func (cfg *Config) AddWorkspace(name string, ws *Workspace, makeCurrent bool) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("workspace name cannot be empty")
	}

	if cfg.Workspaces == nil {
		cfg.Workspaces = make(map[string]*Workspace)
	}

	if _, exists := cfg.Workspaces[trimmed]; exists {
		return fmt.Errorf("workspace %q already exists", trimmed)
	}

	if ws == nil {
		ws = newWorkspace()
	}
	ws.ensureDefaults()
	if err := ws.validate(); err != nil {
		return err
	}
	cfg.Workspaces[trimmed] = ws

	if cfg.CurrentWorkspace == "" || makeCurrent {
		if err := cfg.setActiveWorkspace(trimmed); err != nil {
			return err
		}
	}

	return cfg.Save()
}

func (cfg *Config) RemoveWorkspace(name string) error {
	if len(cfg.Workspaces) <= 1 {
		return fmt.Errorf("cannot remove the last workspace")
	}

	if _, exists := cfg.Workspaces[name]; !exists {
		return fmt.Errorf("workspace %q does not exist", name)
	}

	delete(cfg.Workspaces, name)

	if cfg.CurrentWorkspace == name {
		cfg.active = nil
		cfg.CurrentWorkspace = ""
		if err := cfg.ensureInitialized(); err != nil {
			return err
		}
	}

	return cfg.Save()
}

func (cfg *Config) ChangeOrdering(collection, ordering string) error {
	if !ValidOrderings[ordering] {
		return fmt.Errorf("invalid ordering: %q. Please choose from 'order-key' or 'linked-list'.", ordering)
	}

	ws, err := cfg.ActiveWorkspace()
	if err != nil {
		return err
	}

	if collection == "" || collection == ws.Collection {
		ws.Ordering = ordering
	} else {
		ws.Orderings[collection] = ordering
	}
	return cfg.Save()
}

func (cfg *Config) dir() string {
	home := cfg.home
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Dir(GetConfigPath(home))
}

func (cfg *Config) GetConfigPath() string {
	home := cfg.home
	if home == "" {
		var err error
		if home, err = os.UserHomeDir(); err != nil {
			return ""
		}
	}
	return GetConfigPath(home)
}

func (cfg *Config) Save() error {
	ws, err := cfg.ActiveWorkspace()
	if err != nil {
		return err
	}
	if err := ws.validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	configPath := cfg.GetConfigPath()
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0o644)
}
