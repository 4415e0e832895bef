package printing

import (
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/invoice"
	infraconfig "github.com/storefront/backend/internal/infrastructure/config"
)

// RendererConfigFromSettings maps the [invoice] settings onto a renderer
// configuration. Settings left empty keep their defaults.
func RendererConfigFromSettings(cfg *infraconfig.InvoiceConfig, logger *zap.Logger) *InvoiceRendererConfig {
	rc := DefaultInvoiceRendererConfig()
	rc.Logger = logger
	if cfg == nil {
		return rc
	}

	if size, err := invoice.ParsePaperSize(cfg.PaperSize); err == nil {
		rc.PaperSize = size
	}
	if cfg.Orientation != "" {
		rc.Orientation = invoice.Orientation(cfg.Orientation)
	}
	rc.Margins = cfg.Margins()
	if cfg.FontFamily != "" {
		rc.FontFamily = cfg.FontFamily
	}
	if cfg.FontSize > 0 {
		rc.FontSize = cfg.FontSize
	}
	if cfg.LineSpacing > 0 {
		rc.LineSpacing = cfg.LineSpacing
	}
	rc.RowGap = cfg.RowGap
	rc.CellPadding = cfg.CellPadding
	if cfg.Currency != "" {
		rc.Currency = cfg.Currency
	}
	if cfg.Title != "" {
		rc.Title = cfg.Title
	}
	rc.Compress = cfg.Compress
	return rc
}

// NewFileSystemArtifactStoreFromSettings creates the local artifact store of
// the [storage] settings
func NewFileSystemArtifactStoreFromSettings(cfg *infraconfig.StorageConfig, logger *zap.Logger) (*FileSystemArtifactStore, error) {
	return NewFileSystemArtifactStore(&FileSystemArtifactStoreConfig{
		BasePath: cfg.LocalPath,
		Logger:   logger,
	})
}
