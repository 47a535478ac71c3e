package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/saworbit/patchbay/internal/metrics"
	"github.com/saworbit/patchbay/internal/platform"
	"github.com/saworbit/patchbay/internal/version"
	"github.com/saworbit/patchbay/pkg/cache"
	"github.com/saworbit/patchbay/pkg/codec"
	"github.com/saworbit/patchbay/pkg/config"
	"github.com/saworbit/patchbay/pkg/diff"
	"github.com/saworbit/patchbay/pkg/manifest"
	"github.com/saworbit/patchbay/pkg/patch"
	"github.com/spf13/cobra"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "patchbay",
		Short:   "patchbay - binary patch generation and application",
		Version: version.Version,
	}

	root.AddCommand(newDiffCmd(), newApplyCmd(), newWatchCmd())
	return root
}

type diffOptions struct {
	out          string
	compress     string
	minMatch     int
	cacheDir     string
	manifestPath string
	showStats    bool
}

func newDiffCmd() *cobra.Command {
	var opts diffOptions

	cmd := &cobra.Command{
		Use:   "diff <old> <new>",
		Short: "Generate a binary patch transforming old into new",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.out == "" {
				return fmt.Errorf("out path is required")
			}
			return runDiff(args[0], args[1], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Destination path for the patch")
	cmd.Flags().StringVar(&opts.compress, "compress", "", "Compress the emitted patch (none, zstd, xz)")
	cmd.Flags().IntVar(&opts.minMatch, "min-match", 0, "Minimum match length for the diff engine")
	cmd.Flags().StringVar(&opts.cacheDir, "cache-dir", "", "Directory for the content-addressed patch cache")
	cmd.Flags().StringVar(&opts.manifestPath, "manifest", "", "Write a chunked integrity manifest of the new payload")
	cmd.Flags().BoolVar(&opts.showStats, "stats", false, "Print size statistics after generation")
	return cmd
}

func newApplyCmd() *cobra.Command {
	var out string
	var verifyPath string

	cmd := &cobra.Command{
		Use:   "apply <old> <patch>",
		Short: "Apply a patch to old data to reconstruct the new payload",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return fmt.Errorf("out path is required")
			}
			return runApply(args[0], args[1], out, verifyPath)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Destination path for the reconstructed payload")
	cmd.Flags().StringVar(&verifyPath, "verify", "", "Verify the result against an integrity manifest")
	return cmd
}

func newWatchCmd() *cobra.Command {
	var out string
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch <old> <new>",
		Short: "Regenerate the patch whenever either input changes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return fmt.Errorf("out path is required")
			}
			return runWatch(args[0], args[1], out, metricsAddr)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Destination path for the patch")
	cmd.Flags().StringVar(&metricsAddr, "metrics", "", "Serve Prometheus metrics on this address")
	return cmd
}

func newService(cfg *config.Config) (*patch.Service, func(), error) {
	enc, err := diff.NewEncoder(cfg.Engine)
	if err != nil {
		return nil, nil, err
	}

	svc := patch.NewService(enc)
	svc.MinMatch = cfg.MinMatchLength

	cleanup := func() {}
	if cfg.CacheDir != "" {
		store, err := cache.Open(cfg.CacheDir)
		if err != nil {
			return nil, nil, err
		}
		svc.Cache = store
		cleanup = func() {
			if err := store.Close(); err != nil {
				log.Printf("[cache] close failed: %v", err)
			}
		}
	}

	return svc, cleanup, nil
}

func checkInput(path string, maxBytes int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if err := ensureReadable(path, info); err != nil {
		return err
	}

	if maxBytes > 0 && info.Size() > maxBytes {
		return fmt.Errorf("input %s is %d bytes, exceeding the configured limit of %d", path, info.Size(), maxBytes)
	}

	return nil
}

func runDiff(oldPath, newPath string, opts diffOptions) error {
	cfg := config.LoadFromEnv()
	if opts.minMatch > 0 {
		cfg.MinMatchLength = opts.minMatch
	}
	if opts.compress != "" {
		cfg.Compression = opts.compress
	}
	if opts.cacheDir != "" {
		cfg.CacheDir = opts.cacheDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	codecName, err := codec.Parse(cfg.Compression)
	if err != nil {
		return err
	}

	oldPath = platform.LongPathname(oldPath)
	newPath = platform.LongPathname(newPath)

	if err := checkInput(oldPath, cfg.MaxInputBytes); err != nil {
		return err
	}
	if err := checkInput(newPath, cfg.MaxInputBytes); err != nil {
		return err
	}

	svc, cleanup, err := newService(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	p, err := svc.FromFiles(oldPath, newPath)
	if err != nil {
		return err
	}

	encoded, err := codec.Encode(p, codecName)
	if err != nil {
		return fmt.Errorf("compress patch: %w", err)
	}

	if err := os.WriteFile(opts.out, encoded, 0o644); err != nil {
		return fmt.Errorf("write patch %s: %w", opts.out, err)
	}

	if opts.manifestPath != "" {
		if err := writeManifest(newPath, opts.manifestPath); err != nil {
			return err
		}
	}

	if opts.showStats {
		printStats(oldPath, newPath, len(p), len(encoded))
	}

	return nil
}

func writeManifest(newPath, manifestPath string) error {
	newData, err := os.ReadFile(newPath)
	if err != nil {
		return fmt.Errorf("read new payload for manifest: %w", err)
	}

	m, err := manifest.Build(newData, manifest.DefaultChunkSize)
	if err != nil {
		return fmt.Errorf("build manifest: %w", err)
	}

	payload, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	if err := os.WriteFile(manifestPath, payload, 0o644); err != nil {
		return fmt.Errorf("write manifest %s: %w", manifestPath, err)
	}

	return nil
}

func printStats(oldPath, newPath string, patchLen, encodedLen int) {
	oldInfo, oldErr := os.Stat(oldPath)
	newInfo, newErr := os.Stat(newPath)
	if oldErr != nil || newErr != nil {
		return
	}

	ratio := 0.0
	if newInfo.Size() > 0 {
		ratio = float64(patchLen) / float64(newInfo.Size())
	}

	log.Printf("[diff] old=%d new=%d patch=%d written=%d ratio=%.4f",
		oldInfo.Size(), newInfo.Size(), patchLen, encodedLen, ratio)
}

func runApply(oldPath, patchPath, out, verifyPath string) error {
	cfg := config.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		return err
	}

	oldPath = platform.LongPathname(oldPath)

	if err := checkInput(oldPath, 0); err != nil {
		return err
	}

	rawPatch, err := os.ReadFile(patchPath)
	if err != nil {
		return fmt.Errorf("read patch %s: %w", patchPath, err)
	}

	patchData, err := codec.Decode(rawPatch)
	if err != nil {
		return fmt.Errorf("decode patch %s: %w", patchPath, err)
	}

	svc, cleanup, err := newService(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	oldSrc, err := patch.AcquireFile(oldPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := oldSrc.Release(); err != nil {
			log.Printf("[apply] release old source: %v", err)
		}
	}()

	result, err := svc.ApplyBuffers(oldSrc.Bytes(), patchData)
	if err != nil {
		return err
	}

	if verifyPath != "" {
		if err := verifyAgainstManifest(result, verifyPath); err != nil {
			return err
		}
	}

	if err := os.WriteFile(out, result, 0o644); err != nil {
		return fmt.Errorf("write result %s: %w", out, err)
	}

	return nil
}

func verifyAgainstManifest(result []byte, manifestPath string) error {
	payload, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("read manifest %s: %w", manifestPath, err)
	}

	var m manifest.Manifest
	if err := json.Unmarshal(payload, &m); err != nil {
		return fmt.Errorf("decode manifest %s: %w", manifestPath, err)
	}

	if err := manifest.Verify(result, &m); err != nil {
		return fmt.Errorf("integrity verification failed: %w", err)
	}

	return nil
}

func runWatch(oldPath, newPath, out, metricsAddr string) error {
	cfg := config.LoadFromEnv()
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	codecName, err := codec.Parse(cfg.Compression)
	if err != nil {
		return err
	}

	oldAbs, err := filepath.Abs(oldPath)
	if err != nil {
		return err
	}
	newAbs, err := filepath.Abs(newPath)
	if err != nil {
		return err
	}

	svc, cleanup, err := newService(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, nil); err != nil {
				log.Printf("[metrics] endpoint failed: %v", err)
			}
		}()
	}
	metrics.SetUp(true)
	defer metrics.SetUp(false)

	regenerate := func() {
		p, err := svc.FromFiles(oldAbs, newAbs)
		if err != nil {
			log.Printf("[watch] generation failed: %v", err)
			return
		}

		encoded, err := codec.Encode(p, codecName)
		if err != nil {
			log.Printf("[watch] compress failed: %v", err)
			return
		}

		if err := os.WriteFile(out, encoded, 0o644); err != nil {
			log.Printf("[watch] write %s failed: %v", out, err)
			return
		}

		log.Printf("[watch] wrote %s (%d bytes)", out, len(encoded))
	}

	regenerate()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("init watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the parent directories; editors typically replace files via
	// rename, which drops a watch placed on the file itself.
	dirs := map[string]struct{}{
		filepath.Dir(oldAbs): {},
		filepath.Dir(newAbs): {},
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	// Debounce regeneration so a burst of writes triggers one encode.
	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if evt.Name != oldAbs && evt.Name != newAbs {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(100*time.Millisecond, func() {
				metrics.ObserveWatchRegeneration()
				regenerate()
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[watch] watcher error: %v", err)
		}
	}
}
