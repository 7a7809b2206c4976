package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cardgen-go/internal/config"
	"cardgen-go/internal/storage"
)

func main() {
	mode := flag.String("mode", "", "operation mode: export | import | verify")
	filePath := flag.String("file", "", "file path for export/import/verify (default: stdout/stdin)")
	configPath := flag.String("config", "", "path to configuration file")
	timeout := flag.Duration("timeout", 30*time.Second, "operation timeout")
	flag.Parse()

	if *mode == "" {
		fail(fmt.Errorf("missing -mode (export|import|verify)"))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail(fmt.Errorf("load configuration: %w", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	docs, err := storage.NewFromConfig(ctx, cfg.Storage)
	if err != nil {
		fail(fmt.Errorf("open document store: %w", err))
	}
	defer docs.Close()

	switch strings.ToLower(*mode) {
	case "export":
		snap, err := exportSnapshot(ctx, docs)
		if err != nil {
			fail(err)
		}
		if err := withOutput(*filePath, func(w io.Writer) error { return writeSnapshot(w, snap) }); err != nil {
			fail(err)
		}
	case "import":
		snap, err := readSnapshotFrom(*filePath)
		if err != nil {
			fail(err)
		}
		n, err := importSnapshot(ctx, docs, snap)
		if err != nil {
			fail(err)
		}
		fmt.Fprintf(os.Stderr, "imported %d document(s)\n", n)
	case "verify":
		snap, err := readSnapshotFrom(*filePath)
		if err != nil {
			fail(err)
		}
		diff, err := verifySnapshot(ctx, docs, snap)
		if err != nil {
			fail(err)
		}
		if len(diff) > 0 {
			fmt.Println("storage diverges from reference snapshot:", strings.Join(diff, ", "))
			os.Exit(1)
		}
		fmt.Println("storage matches reference snapshot")
	default:
		fail(fmt.Errorf("unknown mode %q (expected export|import|verify)", *mode))
	}
}

func withOutput(path string, fn func(io.Writer) error) error {
	if path == "" {
		return fn(os.Stdout)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("open export file: %w", err)
	}
	defer f.Close()
	return fn(f)
}

func readSnapshotFrom(path string) (Snapshot, error) {
	var r io.Reader = os.Stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return readSnapshot(r)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "storageutil:", err)
	os.Exit(1)
}
