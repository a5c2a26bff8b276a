// Package id generates pipeline message IDs of the form
// {epoch-ms}-{uuid-v4}, sortable by creation time.
//
// When UUID generation fails (crypto/rand exhausted), ModeFallback
// substitutes a timestamp+counter+pid ID so event emission never stops;
// ModeStrict surfaces the error instead. IsFallbackID reports whether an
// ID came from the fallback path.
//
//	id, err := id.NewID()
//
//	gen := id.NewGenerator(id.WithMode(id.ModeStrict))
//	id, err := gen.NewID()
package id
