// Package defaults embeds the example configuration written by
// lumen init.
package defaults

import _ "embed"

// ConfigYAML is a commented starting configuration.
//
//go:embed config.example.yaml
var ConfigYAML []byte
