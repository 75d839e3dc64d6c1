package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/lms-log-explorer/internal/config"
	"github.com/Zuo-Peng/lms-log-explorer/internal/index"
	"github.com/Zuo-Peng/lms-log-explorer/internal/scan"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Self-check: verify the log root and the index, and show stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			setupLogging(cfg.LogLevel)

			home, _ := os.UserHomeDir()
			fmt.Println("=== Config ===")
			checkFile("Config file", config.Path(home))

			fmt.Println("\n=== Log root ===")
			checkDir("Root", cfg.LogRoot)

			fmt.Println("\n=== File Scan ===")
			files, err := scan.New(cfg.LogRoot).Discover(ctx)
			if err != nil {
				fmt.Printf("  scan error: %v\n", err)
			} else {
				var total int64
				for _, f := range files {
					total += f.Size
				}
				fmt.Printf("  Log files: %d (%s)\n", len(files), humanize.Bytes(uint64(total)))
				if latest, ok := scan.Latest(files); ok {
					fmt.Printf("  Latest:    %s (modified %s)\n", latest.Path,
						humanize.Time(time.UnixMilli(latest.Mtime)))
				}
			}

			fmt.Println("\n=== Database ===")
			fmt.Printf("  Path: %s\n", cfg.DBPath)
			if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
				fmt.Println("  Status: NOT FOUND (run 'lmx index' first)")
				return nil
			}

			db, err := index.OpenDB(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()

			ver, err := db.SchemaVersion(ctx)
			if err != nil {
				return fmt.Errorf("schema version: %w", err)
			}
			sessionCount, err := db.SessionCount(ctx)
			if err != nil {
				return fmt.Errorf("count sessions: %w", err)
			}
			fileCount, err := db.FileCount(ctx)
			if err != nil {
				return fmt.Errorf("count files: %w", err)
			}

			fmt.Printf("  Schema:   v%s\n", ver)
			fmt.Printf("  Sessions: %s\n", humanize.Comma(int64(sessionCount)))
			fmt.Printf("  Files:    %d\n", fileCount)

			if files != nil {
				stored, err := db.ListIndexedFiles(ctx)
				if err != nil {
					return fmt.Errorf("list files: %w", err)
				}
				stale := 0
				for _, f := range files {
					rec, ok := stored[f.Path]
					if !ok || rec.MtimeMs != f.Mtime || rec.SizeBytes != f.Size {
						stale++
					}
				}
				if stale == 0 {
					fmt.Println("  Status:   OK (up to date)")
				} else {
					fmt.Printf("  Status:   %d file(s) changed since last index\n", stale)
				}
			}

			if info, err := os.Stat(cfg.DBPath); err == nil {
				fmt.Printf("\n=== DB Size: %s ===\n", humanize.Bytes(uint64(info.Size())))
			}
			return nil
		},
	}
}

func checkDir(name, path string) {
	if info, err := os.Stat(path); err != nil {
		fmt.Printf("  %s: %s (NOT FOUND)\n", name, path)
	} else if !info.IsDir() {
		fmt.Printf("  %s: %s (NOT A DIRECTORY)\n", name, path)
	} else {
		fmt.Printf("  %s: %s (OK)\n", name, path)
	}
}

func checkFile(name, path string) {
	if _, err := os.Stat(path); err != nil {
		fmt.Printf("  %s: %s (not present, using defaults)\n", name, path)
	} else {
		fmt.Printf("  %s: %s (OK)\n", name, path)
	}
}
