// Package invoice contains the Invoicing bounded context.
// It owns the invoice request snapshot handed over by the order subsystem,
// the fixed seven-column table layout used for every invoice, and the
// contracts of the collaborators that render, store and email the result.
package invoice
