// Package preflight provides readiness checks for the collaborators and
// filesystem paths Newsboy depends on.
//
// These checks run in two contexts:
//   - The daemon logs RunAll results at startup so a missing key or an
//     unreachable Redis shows up before the first batch.
//   - The CLI "newsboy status --check" command renders the same results.
//
// Every collaborator is optional: a disabled feature reports as passed with a
// note, and the pipeline falls back (template briefings, no illustrations,
// uncached reads) when a check fails.
package preflight
