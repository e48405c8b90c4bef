// Package audiobook turns a decoded manifest into a navigable, DRM-gated audiobook.
//
// Open selects one of four construction variants (open access, Overdrive, a delegated DRM
// handler, or LCP), builds the spine and chapters, and starts the variant's DRM verification
// in the background. The resulting *Audiobook is safe for concurrent use: its spine and
// chapters are replaced atomically by Update and its DRM status lives in a drm.Cell.
package audiobook
