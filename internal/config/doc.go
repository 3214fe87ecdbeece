// Package config loads entitydoc configuration.
//
// Values are resolved in three layers, higher layers overriding lower:
//
//	┌─────────────────────────────┐
//	│  3. Environment Variables   │  ← ENTITYDOC_*, plus .env files
//	├─────────────────────────────┤
//	│  2. Config File             │  ← entitydoc.toml
//	├─────────────────────────────┤
//	│  1. Built-in Defaults       │  ← Default()
//	└─────────────────────────────┘
//
// A configuration file looks like:
//
//	[log]
//	level = "debug"
//	format = "json"
//
//	[store]
//	driver = "file"
//	path = "./entities"
//	watch = true
//
//	[history]
//	max_entries = 500
//
//	[components]
//	dirs = ["./components"]
//
// The loaded Config is validated before it is returned; an invalid
// setting fails with a *ValidationError.
package config
