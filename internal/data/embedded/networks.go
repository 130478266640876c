// Package embedded provides access to data files compiled into the gaiachat binary.
package embedded

import _ "embed"

// NetworksData contains the embedded chain catalog YAML data.
//
//go:embed networks.yaml
var NetworksData []byte

// ChatHelpData contains the markdown help shown by the terminal chat client.
//
//go:embed chat_help.md
var ChatHelpData []byte
