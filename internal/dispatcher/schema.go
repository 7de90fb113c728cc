package dispatcher

import "bytes"

// jsonschemaReader adapts a raw schema document for jsonschema.Compiler's
// io.Reader-based AddResource.
func jsonschemaReader(doc []byte) *bytes.Reader {
	return bytes.NewReader(doc)
}
