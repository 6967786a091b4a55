package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"syscall"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/spf13/cobra"

	"github.com/paulpr0/pgfs/internal/config"
	"github.com/paulpr0/pgfs/internal/fs"
	"github.com/paulpr0/pgfs/internal/oninterrupt"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "pgfs",
	Short: "Mount PostgreSQL table rows as a FUSE filesystem",
	Long: `pgfs mounts one directory per configured table, with one file per
row. Reads and writes are translated into SQL against the database;
the TOML file named by --config sets up the per-table wiring.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mount(cfgFile)
	},
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "config.toml", "path to the pgfs TOML configuration file")
}

// Execute runs the root command, printing any error to stderr and setting
// the process exit code (spec.md §6).
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func mount(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("pgfs: loading config: %w", err)
	}

	logger := log.New(os.Stderr, "pgfs: ", log.LstdFlags)

	fsImpl, err := fs.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("pgfs: opening filesystem: %w", err)
	}

	server := fuseutil.NewFileSystemServer(fsImpl)

	mfs, err := fuse.Mount(cfg.Mountpoint, server, fs.MountOptions())
	if err != nil {
		fsImpl.Close()
		return fmt.Errorf("pgfs: mounting at %s: %w", cfg.Mountpoint, err)
	}

	// SIGINT triggers a clean unmount, which in turn causes mfs.Join below
	// to return.
	oninterrupt.Register(func() {
		syscall.Unmount(cfg.Mountpoint, 0)
	})

	joinErr := mfs.Join(context.Background())
	closeErr := fsImpl.Close()
	if joinErr != nil {
		return fmt.Errorf("pgfs: serving filesystem: %w", joinErr)
	}
	if closeErr != nil {
		return fmt.Errorf("pgfs: closing database: %w", closeErr)
	}
	return nil
}
