// Package tuning turns a conversational request ("less politics, more
// robots") into preference changes and records the exchange.
package tuning
