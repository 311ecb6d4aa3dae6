package dicom

import (
	"fmt"
	"log/slog"
)

// Identifier names a tag either structurally or as a compact hex string
// ("00100020"). The hex form is what query filters and the HTTP layer use.
type Identifier struct {
	tag Tag
	err error
}

// ID builds an Identifier from a structural tag.
func ID(tag Tag) Identifier {
	return Identifier{tag: tag}
}

// HexID builds an Identifier from a compact hex string.
func HexID(s string) Identifier {
	tag, err := ParseTag(s)
	return Identifier{tag: tag, err: err}
}

// Tag returns the structural form, or an error for malformed hex input.
func (id Identifier) Tag() (Tag, error) {
	return id.tag, id.err
}

// Upsert sets the value of a tag, creating the element when absent and
// addIfMissing is true. The VR of a newly created element is resolved via
// ResolveVR. Returns true when the dataset was modified.
func (d *Dataset) Upsert(id Identifier, value interface{}, addIfMissing bool) (bool, error) {
	tag, err := id.Tag()
	if err != nil {
		return false, err
	}

	if element, exists := d.Elements[tag]; exists {
		element.Value = value
		return true, nil
	}

	if !addIfMissing {
		return false, nil
	}

	d.AddElement(tag, ResolveVR(tag, value), value)
	return true, nil
}

// AddIfNotExists inserts a tag only when absent. Returns true when the
// element was created; an existing element is left untouched.
func (d *Dataset) AddIfNotExists(id Identifier, value interface{}) (bool, error) {
	tag, err := id.Tag()
	if err != nil {
		return false, fmt.Errorf("add tag: %w", err)
	}

	if _, exists := d.Elements[tag]; exists {
		return false, nil
	}

	d.AddElement(tag, ResolveVR(tag, value), value)
	return true, nil
}

// TagUpdate pairs an identifier with its new value for bulk application.
type TagUpdate struct {
	ID    Identifier
	Value interface{}
}

// BulkUpsert applies a set of updates in order and returns the identifiers
// that were processed. A single field's failure is logged and must not
// abort the batch.
func (d *Dataset) BulkUpsert(updates []TagUpdate, logger *slog.Logger) []Identifier {
	if logger == nil {
		logger = slog.Default()
	}

	processed := make([]Identifier, 0, len(updates))
	for _, update := range updates {
		if _, err := d.Upsert(update.ID, update.Value, true); err != nil {
			logger.Warn("Tag update failed",
				"tag", update.ID.tag.String(),
				"error", err)
		}
		processed = append(processed, update.ID)
	}
	return processed
}
