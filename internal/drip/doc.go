// Package drip builds a day's release plan: a bounded, ordered set of
// articles, each with the hour it becomes visible. A day is planned at most
// once unless the operator explicitly regenerates it.
package drip
