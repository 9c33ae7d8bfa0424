package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/Paintersrp/lifelog/internal/backup"
	"github.com/Paintersrp/lifelog/internal/broadcast"
	"github.com/Paintersrp/lifelog/internal/command"
	"github.com/Paintersrp/lifelog/internal/config"
	"github.com/Paintersrp/lifelog/internal/constants"
	"github.com/Paintersrp/lifelog/internal/docstore"
	"github.com/Paintersrp/lifelog/internal/replica"
	indexsvc "github.com/Paintersrp/lifelog/internal/services/index"
	"github.com/Paintersrp/lifelog/internal/tree"
	"github.com/Paintersrp/lifelog/internal/txn"
)

// EnvKeys are the viper keys bound to LIFELOG_* environment variables.
var EnvKeys = []string{"database", "remote_url", "redis_url", "collection"}

type State struct {
	Config        *config.Config
	Settings      config.Settings
	WorkspaceName string
	Home          string
	Logger        *slog.Logger
	Store         docstore.Store
	Tree          *tree.Tree
	Coordinator   *txn.Coordinator
	Dispatcher    *command.Dispatcher
	Index         *indexsvc.Service
	Broadcast     *broadcast.Redis
	Watcher       *StoreWatcher

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	seenHead string
}

func NewState(workspaceOverride string) (*State, error) {
	s := &State{}
	if err := s.Load(workspaceOverride); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads the config file and wires every component into s. It is used by
// the root command once flags are parsed.
func (s *State) Load(workspaceOverride string) error {
	home, err := GetHomeDir()
	if err != nil {
		return err
	}

	cfg, err := LoadConfig(home)
	if err != nil {
		return err
	}

	if workspaceOverride != "" {
		if err := cfg.ActivateWorkspace(workspaceOverride); err != nil {
			return err
		}
	}

	settings, err := cfg.Settings()
	if err != nil {
		return err
	}

	if err := s.open(context.Background(), settings, NewLogger(settings.LogLevel)); err != nil {
		return err
	}
	s.Config = cfg
	s.Home = home
	return nil
}

func GetHomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory. err: %s", err)
	}

	return home, nil
}

func LoadConfig(home string) (*config.Config, error) {
	viper.AddConfigPath(home + constants.ConfigDir)
	viper.SetConfigName(constants.ConfigFile)
	viper.SetConfigType(constants.ConfigFileType)
	viper.SetEnvPrefix(constants.EnvPrefix)
	for _, key := range EnvKeys {
		if err := viper.BindEnv(key); err != nil {
			return nil, err
		}
	}
	viper.ReadInConfig()

	err := config.EnsureConfigExists(home)
	if err != nil {
		return nil, err
	}

	return config.Load(home)
}

// NewLogger builds the process logger: text on stderr at the configured
// level.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// OpenStore opens the store named by target: "memory", a postgres:// URL, or
// a SQLite path.
func OpenStore(ctx context.Context, target string, logger *slog.Logger) (docstore.Store, error) {
	switch config.DriverFor(target) {
	case config.DriverMemory:
		return docstore.NewMemoryWithLogger(logger), nil
	case config.DriverPostgres:
		return docstore.OpenPostgres(ctx, target, logger)
	default:
		return docstore.OpenSQLite(ctx, target, logger)
	}
}

// Open wires every component for settings. Background work (Redis listener,
// file watcher) runs until Close.
func Open(ctx context.Context, settings config.Settings, logger *slog.Logger) (*State, error) {
	s := &State{}
	if err := s.open(ctx, settings, logger); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *State) open(ctx context.Context, settings config.Settings, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	ordering, err := tree.ParseOrdering(settings.Ordering)
	if err != nil {
		return err
	}
	policy, err := txn.ParsePolicy(settings.BatchPolicy)
	if err != nil {
		return err
	}

	store, err := OpenStore(ctx, settings.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.Settings = settings
	s.WorkspaceName = settings.Workspace
	s.Logger = logger
	s.Store = store
	s.Tree = tree.New(tree.NewDocs(store, settings.Collection), ordering)

	origin := uuid.NewString()
	opts := []txn.Option{
		txn.WithPolicy(policy),
		txn.WithLogger(logger),
		txn.WithOrigin(origin),
	}

	if settings.Broadcast.RedisURL != "" {
		rdb, err := broadcast.NewRedis(settings.Broadcast.RedisURL, settings.Broadcast.Channel, origin, logger)
		if err != nil {
			_ = s.Close()
			return err
		}
		s.Broadcast = rdb
		opts = append(opts, txn.WithAnnouncer(rdb))
	}

	s.Coordinator = txn.New(store, opts...)
	s.Dispatcher = command.New(s.Coordinator, s.Tree, uuid.NewString)
	s.Index = indexsvc.NewService(store, logger)
	s.Index.SetCacheSize(settings.CacheSize)

	if s.Broadcast != nil {
		if err := s.listen(ctx); err != nil {
			_ = s.Close()
			return err
		}
	}

	if settings.Driver == config.DriverSQLite {
		watcher, err := NewStoreWatcher(settings.Database)
		if err != nil {
			logger.Warn("store watcher disabled", "path", settings.Database, "error", err)
		} else {
			s.Watcher = watcher
			watcher.OnChange(func() { s.ExternalChange(s.ctx) })
			watcher.OnError(func(err error) { logger.Warn("store watcher", "error", err) })
			watcher.Start()
		}
	}

	return nil
}

// Loaded reports whether the store is open.
func (s *State) Loaded() bool {
	return s != nil && s.Store != nil
}

// UseCollection points the tree and dispatcher at another collection in the
// same store.
func (s *State) UseCollection(collection string) error {
	if collection == "" || collection == s.Settings.Collection {
		return nil
	}

	name := s.Settings.Ordering
	if s.Config != nil {
		if ws, err := s.Config.ActiveWorkspace(); err == nil {
			name = ws.OrderingFor(collection)
		}
	}
	ordering, err := tree.ParseOrdering(name)
	if err != nil {
		return err
	}

	s.Settings.Collection = collection
	s.Settings.Ordering = name
	s.Tree = tree.New(tree.NewDocs(s.Store, collection), ordering)
	s.Dispatcher = command.New(s.Coordinator, s.Tree, uuid.NewString)
	return nil
}

func (s *State) listen(ctx context.Context) error {
	listener, err := s.Broadcast.Listen(ctx)
	if err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer listener.Close()
		err := listener.Run(s.ctx, func(m broadcast.Message) {
			s.Logger.Debug("remote commit", "token", m.Token, "origin", m.Origin)
			s.abortInFlight(m.Token)
			s.Store.Notify(m.Collections...)
			s.Index.Invalidate()
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.Logger.Warn("broadcast listener stopped", "error", err)
		}
	}()
	return nil
}

// ExternalChange reacts to a store write that may have come from another
// process. When the version head names a token this process did not commit,
// a batch still in flight here is aborted, subscribers of every collection
// are refreshed and the search index is rebuilt on next use.
func (s *State) ExternalChange(ctx context.Context) bool {
	head, err := txn.Head(ctx, s.Store)
	if err != nil {
		s.Logger.Warn("reading version head", "error", err)
		return false
	}

	s.mu.Lock()
	seen := head == s.seenHead
	s.seenHead = head
	s.mu.Unlock()
	if head == "" || seen || s.Coordinator.Versions().IsOwn(head) {
		return false
	}

	s.abortInFlight(head)

	colls, err := s.Store.Collections(ctx)
	if err != nil {
		s.Logger.Warn("listing collections", "error", err)
		return false
	}
	s.Store.Notify(colls...)
	s.Index.Invalidate()
	return true
}

// abortInFlight cancels a local batch that was built against the state a
// foreign commit has just replaced.
func (s *State) abortInFlight(token string) {
	if s.Coordinator.Abort() {
		s.Logger.Info("in-flight batch aborted by external commit", "token", token)
	}
}

// Remote opens the configured remote store.
func (s *State) Remote(ctx context.Context) (docstore.Store, error) {
	if s.Settings.Remote == "" {
		return nil, errors.New("no remote configured. Set remote in the workspace or LIFELOG_REMOTE_URL")
	}
	return OpenStore(ctx, s.Settings.Remote, s.Logger)
}

// Syncer pairs the local store with remote. An empty collections list
// mirrors every collection.
func (s *State) Syncer(remote docstore.Store, collections []string) *replica.Syncer {
	return &replica.Syncer{
		Local:       s.Store,
		Remote:      remote,
		Collections: collections,
		Logger:      s.Logger,
	}
}

// Backup builds the S3 snapshot client for the workspace.
func (s *State) Backup(ctx context.Context) (*backup.S3, error) {
	b := s.Settings.Backup
	return backup.NewS3(ctx, s.Store, backup.Options{
		Bucket:    b.Bucket,
		Prefix:    b.Prefix,
		Region:    b.Region,
		Endpoint:  b.Endpoint,
		AccessKey: b.AccessKey,
		SecretKey: b.SecretKey,
	}, s.Logger)
}

// Close releases resources associated with the state, including the store
// watcher, broadcast client, and shared index service.
func (s *State) Close() error {
	if s == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	var errs []error
	if s.Watcher != nil {
		if err := s.Watcher.Close(); err != nil {
			errs = append(errs, err)
		}
		s.Watcher = nil
	}
	s.wg.Wait()
	if s.Broadcast != nil {
		if err := s.Broadcast.Close(); err != nil {
			errs = append(errs, err)
		}
		s.Broadcast = nil
	}
	if s.Index != nil {
		if err := s.Index.Close(); err != nil && !errors.Is(err, indexsvc.ErrClosed) {
			errs = append(errs, err)
		}
		s.Index = nil
	}
	if s.Store != nil {
		if err := s.Store.Close(); err != nil && !errors.Is(err, docstore.ErrClosed) {
			errs = append(errs, err)
		}
		s.Store = nil
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
