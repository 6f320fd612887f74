package main

import _ "embed"

// embeddedConfig holds the YAML configuration embedded at build time.
// embed_config.yaml is a staging file that build scripts overwrite with the
// target's settings before compiling.
//
//go:embed embed_config.yaml
var embeddedConfig []byte
