// Package printing provides the PDF backend of the invoicing context and the
// local file system artifact store.
//
// This package contains:
// - InvoicePDFRenderer, an invoice.Renderer that lays out the seven column
//   invoice table and draws it with fpdf using the core PDF fonts
// - FileSystemArtifactStore, an invoice.ArtifactStore that publishes rendered
//   documents atomically through a temporary file and a rename
//
// Example usage:
//
//	renderer, err := NewInvoicePDFRenderer(DefaultInvoiceRendererConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store, err := NewFileSystemArtifactStore(&FileSystemArtifactStoreConfig{BasePath: "./invoices"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	info, err := store.Write(ctx, invoice.ArtifactName(orderID), func(w io.Writer) error {
//	    return renderer.Render(ctx, req, w)
//	})
package printing
