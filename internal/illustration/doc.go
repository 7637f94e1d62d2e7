// Package illustration backfills crayon drawings for scheduled articles that
// arrived without an image. It is best effort: failures are counted and the
// article keeps its crayon placeholder.
package illustration
