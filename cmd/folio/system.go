package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pevans/folio/api"
	"github.com/pevans/folio/config"
	"github.com/pevans/folio/session"
)

const shutdownTimeout = 5 * time.Second

func handleInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite an existing config file")
	fs.Parse(args)

	fmt.Println("Initializing folio...")
	fmt.Println()

	initSucceeded := true

	// Create default config file as the first step
	created, err := config.WriteDefaultConfigFile(*force)
	configPath, _ := config.ConfigFilePath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "  ✗ Failed to create config file: %v\n", err)
		initSucceeded = false
	} else if created {
		fmt.Printf("  ✓ Config file: %s\n", configPath)
	} else {
		fmt.Printf("  Config file: %s (already exists)\n", configPath)
	}

	if initSucceeded {
		cfg, err := config.Load(config.LoadOptions{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "  ✗ Failed to load config: %v\n", err)
			initSucceeded = false
		} else {
			// Opening the store creates the database or directory
			local := *cfg
			local.RemoteURL = ""
			st := openStore(&local, zap.NewNop())
			st.Close()
			fmt.Printf("  ✓ Storage (%s): %s\n", cfg.StorageType, cfg.StorageDSN)
		}
	}

	fmt.Println()

	if !initSucceeded {
		fmt.Println("✗ Initialization failed")
		os.Exit(1)
	}

	fmt.Println("✓ folio initialized successfully")
	fmt.Println()
	fmt.Println("You can now:")
	fmt.Println("  - Add items with 'folio add'")
	fmt.Println("  - Serve collections with 'folio serve'")
}

func handleServe(cfg *config.Config, logger *zap.Logger, args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", cfg.Addr, "Listen address")
	fs.Parse(args)

	local := *cfg
	local.RemoteURL = ""
	st := openStore(&local, logger)
	defer st.Close()

	var tokens *session.Tokens
	if cfg.JWTSecret != "" {
		t, err := session.NewTokens(cfg.JWTSecret, 0)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		tokens = t
	} else {
		logger.Warn("No JWT secret configured; writes are disabled")
	}

	server := api.NewServer(st, api.Options{
		Collections: cfg.FeedCollections(),
		Tokens:      tokens,
		Logger:      logger,
	})
	defer server.Close()

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           server.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting folio API server", zap.String("addr", "http://"+*addr+"/api/v1"))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", zap.Error(err))
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
		// Ending subscriptions first lets websocket handlers return
		server.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown failed", zap.Error(err))
		}
	}
}

func handleToken(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	email := fs.String("email", "", "E-mail of the user to sign in")
	uid := fs.String("uid", "", "User id (default: random)")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime")
	fs.Parse(args)

	if *email == "" {
		fmt.Fprintf(os.Stderr, "Error: --email is required\n")
		fs.Usage()
		os.Exit(1)
	}
	if *uid == "" {
		*uid = uuid.NewString()
	}

	tokens, err := session.NewTokens(cfg.JWTSecret, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v (set FOLIO_JWT_SECRET)\n", err)
		os.Exit(1)
	}

	user := session.New(cfg.AdminEmails).SignIn(session.User{UID: *uid, Email: *email})
	token, err := tokens.Issue(user)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "✓ Issued %s token for %s (expires in %s)\n", user.Role, user.Email, *ttl)
	fmt.Println(token)
}
