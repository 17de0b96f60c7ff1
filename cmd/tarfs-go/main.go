// Command tarfs-go mounts a GNU tar archive (optionally gzip or bzip2
// compressed) as a read/write FUSE filesystem, per spec.md §6's CLI
// surface.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bazil.org/fuse"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/archfs/tarfs/fusefs"
	"github.com/archfs/tarfs/internal/zstore"
	"github.com/archfs/tarfs/tarfs"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "tarfs-go ARCHIVE MOUNTPOINT",
		Short: "mount a tar archive as a read/write FUSE filesystem",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v, args[0], args[1])
		},
	}

	flags := cmd.Flags()
	flags.BoolP("gzip", "z", false, "the archive is gzip-compressed")
	flags.BoolP("bzip2", "j", false, "the archive is bzip2-compressed")
	flags.BoolP("readonly", "r", false, "mount read-only")
	flags.BoolP("writable", "w", false, "mount read/write (default)")
	flags.BoolP("volatile", "v", false, "writable in memory only, never synced back to the archive")
	flags.BoolP("create", "c", false, "create the archive file if it does not already exist")
	flags.BoolP("no-timeout", "t", false, "accepted for compatibility; has no effect")
	flags.StringP("debug", "D", "", "write debug log output to FILE instead of stderr")
	flags.DurationP("sync", "s", 0, "periodically sync back to the archive every SECONDS (e.g. 30s)")
	flags.Bool("allow-other", false, "allow other users to access the mount")

	v.BindPFlags(flags)
	v.SetEnvPrefix("TARFS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	return cmd
}

func run(v *viper.Viper, archivePath, mountPoint string) error {
	log, closeLog, err := newLogger(v.GetString("debug"))
	if err != nil {
		return err
	}
	defer closeLog()

	kind := zstore.KindPlain
	switch {
	case v.GetBool("gzip"):
		kind = zstore.KindGzip
	case v.GetBool("bzip2"):
		kind = zstore.KindBzip2
	}

	opts := tarfs.Options{
		Kind:     kind,
		ReadOnly: v.GetBool("readonly") && !v.GetBool("writable"),
		Volatile: v.GetBool("volatile"),
		Create:   v.GetBool("create"),
	}

	fs, err := tarfs.Open(archivePath, opts, log)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	var mountOpts []fuse.MountOption
	if v.GetBool("allow-other") {
		mountOpts = append(mountOpts, fuse.AllowOther())
	}
	if opts.ReadOnly {
		mountOpts = append(mountOpts, fuse.ReadOnly())
	}

	mount, err := fusefs.Mount(mountPoint, fs, log, mountOpts...)
	if err != nil {
		return fmt.Errorf("mount: %w", err)
	}

	stopSync := startSyncTicker(fs, v.GetDuration("sync"), log)
	defer stopSync()

	watchSighup(fs, log)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	log.Info("received signal, unmounting", "signal", sig.String())

	if err := mount.Close(); err != nil {
		return fmt.Errorf("unmount: %w", err)
	}
	return nil
}

// startSyncTicker implements spec.md §6's --sync SECONDS: a background
// goroutine calling Filesystem.SyncFS on the given interval, relying on
// SyncFS's own fileLock to serialize with any sync already in flight or
// with GoAway's final sync at unmount.
func startSyncTicker(fs *tarfs.Filesystem, interval time.Duration, log *slog.Logger) func() {
	if interval <= 0 {
		return func() {}
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := fs.SyncFS(); err != nil {
					log.Warn("periodic sync failed", "err", err)
				}
			case <-done:
				return
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
	}
}

// watchSighup makes a SIGHUP flush the filesystem's current state back to
// the archive immediately, without tearing the mount down. It does not
// reopen the store, and the read-only/volatile options of a live mount
// cannot be changed this way; that takes a remount.
func watchSighup(fs *tarfs.Filesystem, log *slog.Logger) {
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			log.Info("SIGHUP received, syncing archive")
			if err := fs.SyncFS(); err != nil {
				log.Warn("SIGHUP sync failed", "err", err)
			}
		}
	}()
}

func newLogger(debugFile string) (*slog.Logger, func(), error) {
	if debugFile == "" {
		return slog.New(slog.NewTextHandler(os.Stderr, nil)), func() {}, nil
	}
	f, err := os.OpenFile(debugFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open debug log: %w", err)
	}
	return slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})), func() { f.Close() }, nil
}
