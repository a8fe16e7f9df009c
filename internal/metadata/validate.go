package metadata

import (
	"encoding/hex"
	"strings"
	"time"

	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
)

var publishedOnLayouts = []string{"2006-01-02", "2006-01", "2006"}

var autoUpdateValues = map[string]bool{"yes": true, "ask": true, "no": true}

// Validate reports the first missing or malformed field.
func (m *Metadata) Validate() error {
	if m.Title == "" {
		return missing("title")
	}
	if m.Author == "" {
		return missing("author")
	}
	if m.CollectionToken() == "" {
		return ferrors.ValidationError("collection_id normalizes to an empty identifier").
			WithContext("collection_id", m.CollectionID).Build()
	}

	if m.PublishedOn != "" && !parsesAsDate(m.PublishedOn) {
		return ferrors.ValidationError("published_on is not a date (YYYY-MM-DD, YYYY-MM or YYYY)").
			WithContext("published_on", m.PublishedOn).Build()
	}
	if !autoUpdateValues[strings.ToLower(m.AutoUpdate)] {
		return ferrors.ValidationError("auto_update must be one of yes, ask, no").
			WithContext("auto_update", m.AutoUpdate).Build()
	}

	if m.DerivativePubkey != "" && !isHex32(m.DerivativePubkey) {
		return ferrors.ValidationError("derivative_pubkey must be 64 hex characters").
			WithContext("derivative_pubkey", m.DerivativePubkey).Build()
	}
	if m.DerivativeEvent != "" && !isHex32(m.DerivativeEvent) {
		return ferrors.ValidationError("derivative_event must be a 64 hex character event id").
			WithContext("derivative_event", m.DerivativeEvent).Build()
	}

	for i, tag := range m.AdditionalTags {
		if len(tag) < 2 || strings.TrimSpace(tag[0]) == "" {
			return ferrors.ValidationError("additional_tags entries need a name and at least one value").
				WithContext("index", i).Build()
		}
	}
	for i, mp := range m.WikistrMappings {
		if strings.TrimSpace(mp.Display) == "" || strings.TrimSpace(mp.Canonical) == "" {
			return ferrors.ValidationError("wikistr_mappings entries need display and canonical").
				WithContext("index", i).Build()
		}
	}
	return nil
}

func missing(field string) error {
	return ferrors.ValidationError(field+" is required").WithContext("field", field).Build()
}

func parsesAsDate(s string) bool {
	for _, layout := range publishedOnLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func isHex32(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
