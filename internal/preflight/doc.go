// Package preflight provides readiness checks for the filesystem paths and
// remote services a run depends on.
//
// These checks run in two contexts:
//   - The CLI "spritebatch check" command calls RunAll and renders every
//     result as a table.
//   - "spritebatch run" consults CheckOutputRoot and CheckFreeSpace before it
//     takes the output lock, so an unwritable destination fails fast instead
//     of after every batch has been uploaded.
//
// Publishing and notification checks are gated by their config toggles.
package preflight
