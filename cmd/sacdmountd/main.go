// Command sacdmountd hosts the Overlay Layer (spec.md §4.7): it watches a
// host directory for ".iso" files and exposes each as a browsable tree of
// synthesized DSF tracks through the Driver interface in driver.go. Binding
// that tree to an actual FUSE or WinFSP mount point is out of scope (spec.md
// §1) and left to an external caller of Driver; this binary's own job ends
// at serving Lookup/ReadDir/ReadAt/WriteAt correctly in-process.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sacdfs/sacdfs/discreader"
	fixturereader "github.com/sacdfs/sacdfs/discreader/fixture"
	dstfixture "github.com/sacdfs/sacdfs/dstdecoder/fixture"
	"github.com/sacdfs/sacdfs/id3render"
	"github.com/sacdfs/sacdfs/internal/logging"
	"github.com/sacdfs/sacdfs/mtpipeline"
	"github.com/sacdfs/sacdfs/overlay"
)

func main() {
	configFile := flag.String("config", "", "path to sacdmountd config file (default: ./sacdmountd.yaml)")
	demo := flag.Bool("demo", false, "serve a synthetic fixture disc instead of real ISOs — exercises the full stack without SACD media, since real SACD/ISO9660 sector parsing is an external collaborator this repository does not implement")
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sacdmountd: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Init(cfg.Logging.Dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sacdmountd: init logging: %v\n", err)
		os.Exit(1)
	}

	factory, err := discFactory(*demo)
	if err != nil {
		logger.Error("no disc reader factory available", logging.Err(err))
		os.Exit(1)
	}

	pool := mtpipeline.NewPool(cfg.Worker.Count)
	mounts := overlay.NewMounts(factory, dstfixture.NewFactory(), id3render.New(), pool, cfg.Mounts.MaxOpen, cfg.Mounts.IdleTimeout)
	driver := NewInProcessDriver(cfg.Root.HostDir, mounts)

	logger.Info("sacdmountd started",
		slog.String("host_dir", cfg.Root.HostDir),
		slog.Int("worker_count", cfg.Worker.Count),
		slog.Duration("idle_timeout", cfg.Mounts.IdleTimeout),
		slog.Bool("demo", *demo),
	)

	_ = driver // the driver is exercised by an external FUSE/WinFSP binding; this
	// process's remaining job is the lifecycle below (flush-all on shutdown).

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("sacdmountd shutting down, flushing mounts")
	if err := mounts.Shutdown(); err != nil {
		logger.Error("shutdown flush encountered an error", logging.Err(err))
	}
}

// discFactory selects the disc reader factory this process drives. A real
// SACD/ISO9660 sector reader is an external collaborator per spec.md §1 and
// is not implemented in this repository; -demo substitutes the deterministic
// fixture reader so the overlay/vfscontext/vfile stack can be exercised end
// to end from this binary without real media.
func discFactory(demo bool) (discreader.Factory, error) {
	if !demo {
		return nil, fmt.Errorf("no production SACD disc reader is linked into this binary; rerun with -demo, or link a real discreader.Factory implementation")
	}
	disc := &fixturereader.Disc{
		AlbumTitle:  "Demo Album",
		AlbumArtist: "sacdmountd",
		Areas: map[discreader.Area]fixturereader.AreaSpec{
			discreader.AreaStereo: {
				Channels:   2,
				SampleRate: 2822400,
				Format:     discreader.DST,
				Tracks: []fixturereader.Track{
					{StartFrame: 0, EndFrame: 2000, Title: "Track One"},
					{StartFrame: 2000, EndFrame: 4000, Title: "Track Two"},
				},
			},
		},
	}
	return fixturereader.NewFactory(disc), nil
}
