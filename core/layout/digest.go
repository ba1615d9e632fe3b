package layout

import (
	"bytes"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Digest returns the BLAKE3 hash of the specs in their formatted form. Two
// layouts that describe the same fields hash the same regardless of
// comments, whitespace or source syntax.
func Digest(specs []Spec) (string, error) {
	var buf bytes.Buffer
	if err := Format(&buf, specs); err != nil {
		return "", err
	}
	h := blake3.Sum256(buf.Bytes())
	return hex.EncodeToString(h[:]), nil
}
