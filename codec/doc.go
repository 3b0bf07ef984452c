// Package codec decodes trajectory data into Frames.
//
// Two input forms are supported: the self-describing binary container (a
// 16-byte signature, a fixed sub-header, a table of contents, and typed
// blocks), and the flat numeric per-frame record used by JSON bundles and
// local models.
//
// Container layout, all integers little-endian u32:
//
//	signature[16] "SIMULARIUMBINARY"
//	headerLength version blockCount
//	toc[blockCount] {offset type size}
//	blocks         {type size} payload, padded to 4 bytes
//
// Flat record layout, repeated per agent:
//
//	visType typeId x y z xrot yrot zrot cr nSubpoints subpoint...
//
// Decoding is pure. A decode call either returns a complete result or an
// error satisfying errors.IsFormat / errors.IsParse from the project errors
// package; it never returns partial results.
package codec
