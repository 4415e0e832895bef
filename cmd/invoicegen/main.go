// Command invoicegen renders an invoice PDF from a JSON order snapshot
// without a database, e.g. for previewing layout changes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/invoice"
	"github.com/storefront/backend/internal/infrastructure/config"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/infrastructure/printing"
)

// snapshot is the input document: a render request plus the order it belongs to
type snapshot struct {
	OrderID uuid.UUID `json:"order_id"`
	invoice.Request
}

func main() {
	var (
		inPath     string
		outDir     string
		configPath string
		logLevel   string
	)
	flag.StringVar(&inPath, "in", "-", "Order snapshot JSON file, - for stdin")
	flag.StringVar(&outDir, "out", ".", "Directory the invoice is written to")
	flag.StringVar(&configPath, "config", "", "TOML configuration file (default: built-in settings)")
	flag.StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	flag.Parse()

	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: "15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path, err := run(ctx, inPath, outDir, configPath, log)
	if err != nil {
		log.Error("Invoice generation failed", zap.Error(err))
		os.Exit(1)
	}
	fmt.Println(path)
}

func run(ctx context.Context, inPath, outDir, configPath string, log *zap.Logger) (string, error) {
	var invoiceCfg *config.InvoiceConfig
	if configPath != "" {
		cfg, err := config.LoadFile(configPath)
		if err != nil {
			return "", err
		}
		invoiceCfg = &cfg.Invoice
	}

	snap, err := readSnapshot(inPath)
	if err != nil {
		return "", err
	}
	if snap.OrderID == uuid.Nil {
		snap.OrderID = uuid.New()
	}

	renderer, err := printing.NewInvoicePDFRenderer(printing.RendererConfigFromSettings(invoiceCfg, log))
	if err != nil {
		return "", err
	}
	store, err := printing.NewFileSystemArtifactStore(&printing.FileSystemArtifactStoreConfig{
		BasePath: outDir,
		Logger:   log,
	})
	if err != nil {
		return "", err
	}

	req := &snap.Request
	if err := req.Validate(); err != nil {
		return "", err
	}

	name := invoice.ArtifactName(snap.OrderID)
	info, err := store.Write(ctx, name, func(w io.Writer) error {
		return renderer.Render(ctx, req, w)
	})
	if err != nil {
		return "", err
	}
	log.Info("Invoice written",
		zap.String("artifact", info.Name),
		zap.Int64("bytes", info.Size),
		zap.Int("items", len(req.Items)))
	return filepath.Join(outDir, info.Name), nil
}

func readSnapshot(path string) (*snapshot, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var snap snapshot
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("invalid order snapshot: %w", err)
	}
	return &snap, nil
}
