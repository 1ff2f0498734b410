// Command switchboardd is the Switchboard relay daemon. It loads the
// YAML config, wires the bus, connectors, encryption, archive, and the
// HTTP server, then runs until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoCodeAlone/switchboard/archive"
	"github.com/GoCodeAlone/switchboard/comms"
	"github.com/GoCodeAlone/switchboard/config"
	"github.com/GoCodeAlone/switchboard/connector"
	"github.com/GoCodeAlone/switchboard/crypt"
	"github.com/GoCodeAlone/switchboard/internal/version"
	"github.com/GoCodeAlone/switchboard/server"
)

var configPath = flag.String("config", "switchboard.yaml", "path to config file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config %s: %v", *configPath, err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("starting switchboardd",
		"version", version.Version,
		"commit", version.Commit,
	)

	keyring, err := buildKeyring(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to set up encryption: %v", err)
	}

	srv := server.New(*cfg, version.Version, logger)

	var store archive.Store
	if cfg.Archive.Enabled {
		st, err := archive.NewSQLiteStore(cfg.Archive.Path)
		if err != nil {
			log.Fatalf("Failed to open archive %s: %v", cfg.Archive.Path, err)
		}
		defer st.Close()
		store = st
		srv.SetArchive(store)
		logger.Info("archive enabled", "path", cfg.Archive.Path)
	}

	bus := comms.New(
		comms.WithLogger(logger),
		comms.WithCompletedCap(cfg.Bus.CompletedCap),
		comms.WithCompletionHook(func(c *comms.Completion) {
			if store != nil {
				if err := store.Record(c); err != nil {
					logger.Error("archive record", "err", err)
				}
			}
			srv.BroadcastEvent("completion", c)
		}),
	)
	srv.SetBus(bus)

	ctx, cancel := context.WithCancel(context.Background())
	for _, ac := range cfg.Agents {
		conn := buildConnector(ac)
		if err := conn.Connect(ctx, ""); err != nil {
			logger.Error("agent connect", "agent", ac.ID, "err", err)
			continue
		}
		bus.Register(ac.ID, conn)
	}

	dispatcher := comms.NewDispatcher(bus, keyring, crypt.Mode(cfg.Encryption.Mode), cfg.Bus.Workers)
	dispatcher.Start(ctx)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	addr := cfg.Server.Addr
	if addr == "" {
		addr = ":8765"
	}
	fmt.Printf("Switchboard relay running on http://localhost%s\n", addr)
	fmt.Printf("Version: %s (%s)\n", version.Version, version.Commit)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("Shutting down...")
	cancel()
	dispatcher.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("server stop error", "error", err)
	}
	fmt.Println("Shutdown complete")
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildKeyring prepares key material when encryption is enabled. A
// missing secret key gets a generated ephemeral one so a dev setup
// works out of the box.
func buildKeyring(cfg *config.Config, logger *slog.Logger) (*crypt.Keyring, error) {
	if !cfg.Encryption.Enabled {
		return nil, nil
	}
	keyring := crypt.NewKeyring()

	if cfg.Encryption.SecretKey != "" {
		key, err := crypt.ParseSecretKey(cfg.Encryption.SecretKey)
		if err != nil {
			return nil, err
		}
		keyring.SetSecret(key)
	} else {
		key, err := crypt.NewSecretKey()
		if err != nil {
			return nil, err
		}
		keyring.SetSecret(key)
		logger.Warn("no secret_key configured, generated an ephemeral key",
			"key", key.Encode())
	}

	if crypt.Mode(cfg.Encryption.Mode) == crypt.ModeAsymmetric {
		pair, err := keyring.GeneratePair()
		if err != nil {
			return nil, err
		}
		logger.Info("generated relay key pair", "public_key", pair.PublicEncoded())
	}
	return keyring, nil
}

// buildConnector creates the connector for one configured agent: HTTP
// when a URL is set, scripted otherwise.
func buildConnector(ac config.AgentConfig) connector.Connector {
	if ac.URL != "" {
		return connector.NewHTTP(connector.HTTPConfig{
			AgentID:   ac.ID,
			AgentType: ac.Type,
			Endpoint:  ac.URL,
		})
	}
	return connector.NewScript(ac.ID, ac.Type, ac.Replies...)
}
