package replay

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// keyJSON sorts map keys so equal arguments always serialize identically.
var keyJSON = jsoniter.Config{
	SortMapKeys:            true,
	EscapeHTML:             false,
	ValidateJsonRawMessage: true,
}.Froze()

// Signature derives a cache key from an operation name, a resolved path and the
// call arguments. Arguments that cannot be encoded as JSON fall back to %#v.
func Signature(op, path string, args ...any) string {
	var b strings.Builder
	b.WriteString(op)
	b.WriteByte('|')
	b.WriteString(path)
	for _, arg := range args {
		b.WriteByte('|')
		encoded, err := keyJSON.MarshalToString(arg)
		if err != nil {
			encoded = fmt.Sprintf("%#v", arg)
		}
		b.WriteString(encoded)
	}
	return b.String()
}
