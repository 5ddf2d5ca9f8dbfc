package appidentityassets

import _ "embed"

// YAML is the identity compiled into the binary, used when no
// .fulmen/app.yaml is found at runtime.
//
//go:embed app.yaml
var YAML []byte
