package printing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/invoice"
	infraconfig "github.com/storefront/backend/internal/infrastructure/config"
)

func TestRendererConfigFromSettings(t *testing.T) {
	t.Run("nil settings keep defaults", func(t *testing.T) {
		rc := RendererConfigFromSettings(nil, zap.NewNop())
		assert.Equal(t, DefaultInvoiceRendererConfig().PaperSize, rc.PaperSize)
		assert.Equal(t, invoice.DefaultCurrency, rc.Currency)
	})

	t.Run("settings override defaults", func(t *testing.T) {
		rc := RendererConfigFromSettings(&infraconfig.InvoiceConfig{
			PaperSize:    "LETTER",
			Orientation:  "LANDSCAPE",
			MarginTop:    10,
			MarginRight:  12,
			MarginBottom: 10,
			MarginLeft:   12,
			FontFamily:   "Times",
			FontSize:     11,
			LineSpacing:  1.2,
			RowGap:       3,
			CellPadding:  1.5,
			Currency:     "EUR",
			Title:        "TAX INVOICE",
		}, zap.NewNop())

		assert.Equal(t, invoice.PaperSizeLetter, rc.PaperSize)
		assert.Equal(t, invoice.OrientationLandscape, rc.Orientation)
		assert.Equal(t, 12.0, rc.Margins.Left)
		assert.Equal(t, "Times", rc.FontFamily)
		assert.Equal(t, "EUR", rc.Currency)
		assert.Equal(t, "TAX INVOICE", rc.Title)
		assert.False(t, rc.Compress)

		_, err := NewInvoicePDFRenderer(rc)
		require.NoError(t, err)
	})
}

func TestNewFileSystemArtifactStoreFromSettings(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileSystemArtifactStoreFromSettings(&infraconfig.StorageConfig{Backend: "local", LocalPath: dir}, nil)
	require.NoError(t, err)
	assert.Equal(t, dir, store.config.BasePath)
}
