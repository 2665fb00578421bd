package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
	"strings"

	"github.com/jonwraymond/toolfoundation/model"
)

// computeFingerprint generates a stable hash of the published catalog.
// The fingerprint changes when any descriptor a client can observe changes,
// so deployments can tell whether two servers expose the same tools.
func computeFingerprint(tools []model.Tool) string {
	h := sha256.New()

	for _, tool := range tools {
		h.Write([]byte(tool.Namespace))
		h.Write([]byte{0}) // separator

		h.Write([]byte(tool.Name))
		h.Write([]byte{0})

		h.Write([]byte(tool.Description))
		h.Write([]byte{0})

		h.Write([]byte(tool.Version))
		h.Write([]byte{0})

		// encoding/json sorts map keys, so the schema encoding is canonical.
		schema, err := json.Marshal(tool.InputSchema)
		if err == nil {
			h.Write(schema)
		}
		h.Write([]byte{0})

		sortedTags := slices.Clone(tool.Tags)
		slices.Sort(sortedTags)
		h.Write([]byte(strings.Join(sortedTags, "\x01")))
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil))
}
