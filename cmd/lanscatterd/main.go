// Command lanscatterd runs the swarm master coordinator: it scans a
// directory, accepts peer websocket connections, plans transfers between
// them, and serves blob byte ranges for peers to pull from the master and
// from each other.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lanscatter/masterd/build"
	"github.com/lanscatter/masterd/cliutil"
	"github.com/lanscatter/masterd/config"
	"github.com/lanscatter/masterd/fileserver"
	"github.com/lanscatter/masterd/master"
	"github.com/lanscatter/masterd/persist"
	"github.com/lanscatter/masterd/ratelimit"
	"github.com/lanscatter/masterd/scanner"
	"github.com/lanscatter/masterd/session"
	tg "github.com/lanscatter/masterd/sync"
	"github.com/lanscatter/masterd/swarm"
)

var cfg = config.Defaults

func main() {
	root := &cobra.Command{
		Use:   "lanscatterd",
		Short: "lanscatterd v" + build.Version,
		Long:  "lanscatterd v" + build.Version + " - LAN-scoped peer-assisted file distribution master",
		RunE:  run,
	}

	flags := root.Flags()
	flags.StringVar(&cfg.Dir, "dir", config.Defaults.Dir, "directory to share")
	flags.IntVar(&cfg.Port, "port", config.Defaults.Port, "port to listen on")
	flags.Float64Var(&cfg.ULLimit, "ul-limit", config.Defaults.ULLimit, "upload bandwidth cap in bytes/sec (0 = unlimited)")
	flags.IntVar(&cfg.ConcurrentUploads, "concurrent-uploads", config.Defaults.ConcurrentUploads, "max concurrent uploads the master itself will serve")
	flags.DurationVar(&cfg.RescanInterval, "rescan-interval", config.Defaults.RescanInterval, "how often to rescan the shared directory")
	flags.Int64Var(&cfg.ChunkSize, "chunk-size", config.Defaults.ChunkSize, "chunk size in bytes")
	flags.IntVar(&cfg.MaxWorkers, "max-workers", config.Defaults.MaxWorkers, "accepted but not used: the directory scan runs on a single goroutine")
	flags.BoolVar(&cfg.Debug, "debug", false, "enable debug logging")
	flags.BoolVar(&cfg.JSON, "json", false, "reserved for a future JSON status stream")
	flags.StringVar(&cfg.TLSCert, "tls-cert", "", "TLS certificate file (enables HTTPS)")
	flags.StringVar(&cfg.TLSKey, "tls-key", "", "TLS key file (enables HTTPS)")
	flags.IntVar(&cfg.HashTasksPerChunk, "hash-tasks-per-chunk", config.Defaults.HashTasksPerChunk, "reserved for a future parallel hashing pool")
	flags.BoolVar(&cfg.NoCompress, "no-compress", false, "disable LZ4 compression on blob transfers")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	persist.SetDebug(cfg.Debug)

	logDir := filepath.Join(cfg.Dir, ".lanscatterd")
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return err
	}
	logger, err := persist.NewLogger(filepath.Join(logDir, "lanscatterd.log"))
	if err != nil {
		return err
	}
	defer logger.Close()

	reporter := cliutil.NewReporter(logger, cfg.Debug)
	reporter.Info(fmt.Sprintf("lanscatterd v%s starting, sharing %s on port %d", build.Version, cfg.Dir, cfg.Port))

	if cfg.ULLimit > 0 {
		ratelimit.SetLimits(0, int64(cfg.ULLimit), 1<<16)
	}

	coordinator := swarm.NewCoordinator(nil)
	dirScanner := scanner.New(cfg.Dir, cfg.ChunkSize)
	threads := &tg.ThreadGroup{}

	fs := fileserver.New(cfg.Dir, nil, logger)
	fs.NoCompress = cfg.NoCompress

	loopCfg := master.Config{
		MasterName:           "master",
		RescanInterval:       cfg.RescanInterval,
		PlannerTick:          config.PlannerTick,
		SeedMaxConcurrentULs: cfg.ConcurrentUploads,
	}
	loop, err := master.New(loopCfg, coordinator, dirScanner, fs, logger)
	if err != nil {
		return err
	}
	fs.Batch = loop.BatchSource

	if err := loop.Run(threads); err != nil {
		return err
	}

	sessionCfg := session.Config{
		MasterVersion: build.Version,
		QueueCapacity: 32,
		PingInterval:  config.PeerHeartbeat,
		PongWait:      2 * config.PeerHeartbeat,
		WriteWait:     10 * time.Second,
	}
	srv := master.NewServer(loop, coordinator, sessionCfg, fs.Handle)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Handler,
		ReadHeaderTimeout: 30 * time.Second,
	}

	serverErrs := make(chan error, 1)
	go func() {
		var err error
		if cfg.TLSCert != "" && cfg.TLSKey != "" {
			err = httpServer.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			serverErrs <- err
			return
		}
		serverErrs <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrs:
		if err != nil {
			reporter.Errorln("http server exited:", err)
		}
	case sig := <-sigCh:
		reporter.Info(fmt.Sprintf("received signal %s, shutting down", sig))
		httpServer.Close()
	}

	threads.Stop()
	reporter.Info("lanscatterd stopped")
	return nil
}
