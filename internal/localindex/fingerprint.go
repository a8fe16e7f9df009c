package localindex

import "github.com/inful/mdfp"

// Fingerprint hashes the inputs of one compilation: the metadata document and
// the normalized publication text.
func Fingerprint(metadataYAML, normalized string) string {
	return mdfp.CalculateFingerprintFromParts(metadataYAML, normalized)
}
