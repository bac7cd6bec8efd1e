// Package config loads vemodkit settings.
//
// Settings are a tree of dotted keys ("vemod.vmdls.path") built from three
// layers, later ones winning: built-in defaults, a TOML or YAML file, and
// VEMOD_* environment variables. The merged tree is kept as-is for
// answering language-server configuration requests and decoded into a
// typed Config for everything else.
//
// Configuration files look like:
//
//	[vemod]
//	path = "~/vm/zig-out/bin/vemod"
//	languages = ["vemod", "blue"]
//
//	[vemod.vmdls]
//	path = "vmdls"
//	args = ["--stdio"]
//	maxRestarts = 4
//	handshakeTimeout = "10s"
//
//	[logging]
//	level = "debug"
//
// The same tree may be written in YAML. Load merges it over Defaults and
// under the environment:
//
//	cfg, err := config.Load("vemodkit.toml", os.Environ())
//
// Watcher reloads the file on change, and Provider serves dotted sections
// of the merged tree to the language server.
package config
