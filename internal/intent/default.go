package intent

import _ "embed"

//go:embed default_intent_map.yaml
var defaultDocument []byte

// DefaultDocument returns the bundled intent map document, used by
// `config init` to seed a user's intent map file.
func DefaultDocument() []byte {
	return append([]byte(nil), defaultDocument...)
}

// Default compiles the bundled intent map
func Default() (*Map, error) {
	return Parse(defaultDocument)
}
