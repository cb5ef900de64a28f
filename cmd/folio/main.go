package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pevans/folio/config"
	"github.com/pevans/folio/feed"
	"github.com/pevans/folio/session"
	"github.com/pevans/folio/store"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	subcommand := os.Args[1]
	args := os.Args[2:]

	switch subcommand {
	case "help", "--help", "-h":
		printUsage()
		return
	case "init":
		handleInit(args)
		return
	}

	cfg, err := config.Load(config.LoadOptions{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	var handler func(*config.Config, *zap.Logger, []string) error
	switch subcommand {
	case "serve":
		handleServe(cfg, logger, args)
		return
	case "token":
		handleToken(cfg, args)
		return
	case "list":
		handler = handleList
	case "show":
		handler = handleShow
	case "add":
		handler = handleAdd
	case "edit":
		handler = handleEdit
	case "delete":
		handler = handleDelete
	case "import":
		handler = handleImport
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}

	// Handlers release the engine and store before returning, so the exit
	// below never skips their cleanup.
	if err := handler(cfg, logger, args); err != nil {
		logger.Sync()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("folio - Blog and project feeds")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  folio <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  init       Write the default config file")
	fmt.Println("  serve      Run the collection API server")
	fmt.Println("  token      Issue a session token")
	fmt.Println("  list       List a collection as a feed")
	fmt.Println("  show       Show one item")
	fmt.Println("  add        Add an item")
	fmt.Println("  edit       Edit an item")
	fmt.Println("  delete     Delete an item")
	fmt.Println("  import     Import items from an RSS or Atom feed")
	fmt.Println("  help       Show this help message")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  FOLIO_STORAGE_TYPE      memory, sqlite or file (default: sqlite)")
	fmt.Println("  FOLIO_STORAGE_DSN       Database path or directory (default: folio.db)")
	fmt.Println("  FOLIO_SQLITE_DRIVER     sqlite3 (cgo) or sqlite (pure Go) (default: sqlite3)")
	fmt.Println("  FOLIO_ADDR              Listen address for serve (default: localhost:8080)")
	fmt.Println("  FOLIO_REMOTE_URL        Use a running folio server instead of local storage")
	fmt.Println("  FOLIO_TOKEN             Session token for the remote server")
	fmt.Println("  FOLIO_JWT_SECRET        Secret for signing session tokens")
	fmt.Println("  FOLIO_ADMIN_EMAILS      Comma-separated admin e-mails")
	fmt.Println("  FOLIO_LOG_LEVEL         debug, info, warn or error (default: info)")
	fmt.Println("  FOLIO_MUTATION_TIMEOUT  Timeout for saves and deletes (default: 10s)")
	fmt.Println("  FOLIO_APPLY_CONFIRMED   Apply saves locally before the next push")
}

// newLogger builds a production logger at level.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.Encoding = "console"
	zc.OutputPaths = []string{"stderr"}
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// openStore opens the configured backend. A remote URL takes precedence
// over local storage.
func openStore(cfg *config.Config, logger *zap.Logger) store.Store {
	opts := store.Options{
		Type:   cfg.StorageType,
		DSN:    cfg.StorageDSN,
		Driver: cfg.StorageDriver,
		Logger: logger,
	}
	if cfg.RemoteURL != "" {
		opts.Type = "remote"
		opts.DSN = cfg.RemoteURL
		opts.Token = cfg.Token
	}

	st, err := store.Open(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open store: %v\n", err)
		os.Exit(1)
	}
	return st
}

// cliRole is the role the CLI acts with. Local storage belongs to whoever
// runs the CLI; a remote server is addressed with the role in the token.
func cliRole(cfg *config.Config) session.Role {
	if cfg.RemoteURL == "" {
		return session.RoleAdmin
	}
	if cfg.Token == "" {
		return session.RoleNone
	}
	claims, err := session.Inspect(cfg.Token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: ignoring token: %v\n", err)
		return session.RoleNone
	}
	return claims.Role
}

// lookupCollection resolves a collection path or exits.
func lookupCollection(cfg *config.Config, path string) feed.Collection {
	cc, ok := cfg.Collection(path)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown collection: %s\n", path)
		os.Exit(1)
	}
	return cc.FeedCollection()
}
