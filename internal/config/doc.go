// Package config loads, normalizes, and validates Newsboy configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENROUTER_API_KEY and REPLICATE_API_TOKEN. The Config type centralizes the
// schedule, drip curve, collaborator credentials, and storage locations the
// daemon and CLI need.
//
// Watch keeps a running daemon in step with edits to the config file.
package config
