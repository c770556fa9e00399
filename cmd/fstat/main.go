package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/chzyer/readline"

	"github.com/KevoDB/filestats/pkg/common/log"
	"github.com/KevoDB/filestats/pkg/config"
	"github.com/KevoDB/filestats/pkg/grpc/transport"
)

// Flags holds the command line options
type Flags struct {
	ConfigPath  string
	ServerMode  bool
	ListenAddr  string
	SnapshotDir string
	LogLevel    string
	TLSEnabled  bool
	TLSCertFile string
	TLSKeyFile  string
	TLSCAFile   string
}

func main() {
	flags := parseFlags()

	cfg, err := loadConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %s\n", err)
		os.Exit(1)
	}

	level, _ := log.ParseLevel(cfg.LogLevel)
	logger := log.NewStandardLogger(log.WithLevel(level))
	log.SetDefaultLogger(logger)

	server, err := NewServer(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	if flags.ServerMode {
		runServer(server, flags)
		return
	}

	runInteractive(server)
}

// parseFlags parses command line flags
func parseFlags() Flags {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "fstat - per-file I/O heat maps\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: fstat [options]\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "By default, fstat runs an interactive shell over an in-memory registry.\n")
		fmt.Fprintf(flag.CommandLine.Output(), "If -server flag is provided, fstat exposes the registry over gRPC.\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(flag.CommandLine.Output(), "\nFor the shell commands, start fstat and type .help\n")
	}

	var f Flags
	flag.StringVar(&f.ConfigPath, "config", "", "Configuration file (.json or .yaml)")
	flag.BoolVar(&f.ServerMode, "server", false, "Run in server mode, exposing a gRPC API")
	flag.StringVar(&f.ListenAddr, "address", "", "Address to listen on in server mode")
	flag.StringVar(&f.SnapshotDir, "snapshots", "", "Directory for statistics snapshots")
	flag.StringVar(&f.LogLevel, "log-level", "", "Log level: debug, info, warn, error")

	flag.BoolVar(&f.TLSEnabled, "tls", false, "Enable TLS for secure connections")
	flag.StringVar(&f.TLSCertFile, "cert", "", "TLS certificate file path")
	flag.StringVar(&f.TLSKeyFile, "key", "", "TLS private key file path")
	flag.StringVar(&f.TLSCAFile, "ca", "", "TLS CA certificate file for client verification")

	flag.Parse()
	return f
}

// loadConfig resolves the configuration: file or defaults, then the
// environment, then explicit flags.
func loadConfig(f Flags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if f.ConfigPath != "" {
		cfg, err = config.LoadConfig(f.ConfigPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.NewDefaultConfig(filepath.Join(os.TempDir(), "fstat"))
	}

	cfg.LoadFromEnv()
	cfg.Update(func(c *config.Config) {
		if f.ListenAddr != "" {
			c.ListenAddr = f.ListenAddr
		}
		if f.SnapshotDir != "" {
			c.SnapshotDir = f.SnapshotDir
		}
		if f.LogLevel != "" {
			c.LogLevel = f.LogLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServer(server *Server, f Flags) {
	err := server.Start(true, transport.ServerOptions{
		TLSEnabled: f.TLSEnabled,
		CertFile:   f.TLSCertFile,
		KeyFile:    f.TLSKeyFile,
		CAFile:     f.TLSCAFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start server: %s\n", err)
		os.Exit(1)
	}

	fmt.Println("fstat server started. Press Ctrl+C to stop.")
	waitForShutdown(server)
}

// waitForShutdown blocks until SIGINT or SIGTERM, then shuts the server down
func waitForShutdown(server *Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	fmt.Printf("\nReceived signal %v, shutting down...\n", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error shutting down: %s\n", err)
		os.Exit(1)
	}
}

func runInteractive(server *Server) {
	fmt.Println("fstat version 1.0.0")
	fmt.Println("Enter .help for usage hints.")

	if err := server.Start(false, transport.ServerOptions{}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error shutting down: %s\n", err)
		}
	}()

	historyFile := filepath.Join(os.TempDir(), ".fstat_history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "fstat> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %s\n", err)
		return
	}
	defer rl.Close()

	sh := &shell{
		registry: server.registry,
		exporter: server.exporter,
		store:    server.store,
		out:      rl.Stdout(),
	}

	for {
		if n := sh.registry.Len(); n > 0 {
			rl.SetPrompt(fmt.Sprintf("fstat[%d]> ", n))
		} else {
			rl.SetPrompt("fstat> ")
		}

		line, readErr := rl.Readline()
		if readErr != nil {
			if readErr == readline.ErrInterrupt {
				if len(line) == 0 {
					break
				}
				continue
			} else if readErr == io.EOF {
				fmt.Println("Goodbye!")
				break
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %s\n", readErr)
			continue
		}

		if sh.execute(line) {
			break
		}
	}
}
