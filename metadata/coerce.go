// Package metadata turns DICOM datasets into canonical, validated
// metadata: VR-aware value coercion, dual-path extraction, and
// reconciliation with ordered fallback.
package metadata

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/helioscan/pacsbridge/dicom"
)

// multiValueSeparator joins multi-valued fields for display.
const multiValueSeparator = "; "

// maxSequenceDepth bounds recursive sequence expansion. Items below this
// depth collapse to a marker.
const maxSequenceDepth = 2

// SequenceMode selects how sequence (SQ) values are coerced.
type SequenceMode int

const (
	// SequenceAsMarker replaces sequence values with an opaque marker.
	SequenceAsMarker SequenceMode = iota
	// SequenceExpand extracts each item as a keyword-keyed map, bounded
	// by maxSequenceDepth.
	SequenceExpand
)

// Coerce converts an element's value into a display/transport-safe form
// based on its VR class. It is total: no input value may cause a panic or
// an error, only a descriptive marker.
func Coerce(element *dicom.Element, mode SequenceMode) interface{} {
	return coerce(element, mode, 0)
}

func coerce(element *dicom.Element, mode SequenceMode, depth int) interface{} {
	if element == nil {
		return nil
	}

	if dicom.IsBinaryVR(element.VR) {
		return binaryMarker(element)
	}

	if element.VR == dicom.VR_SQ {
		return coerceSequence(element, mode, depth)
	}

	switch v := element.Value.(type) {
	case string:
		return joinMultiValue(v)
	case []string:
		return strings.Join(v, multiValueSeparator)
	case []byte:
		// Text declared under a textual VR but delivered as bytes:
		// decode lossily rather than failing.
		return joinMultiValue(decodeLossy(v))
	case int, float64:
		if dicom.IsTextualVR(element.VR) {
			return fmt.Sprintf("%v", v)
		}
		return v
	case []*dicom.Dataset:
		// Sequence value under a non-SQ VR; treat it as one anyway.
		return coerceSequence(element, mode, depth)
	case nil:
		return nil
	default:
		// Anything unrepresentable becomes a marker, never an error.
		return fmt.Sprintf("unsupported value (%T)", v)
	}
}

func coerceSequence(element *dicom.Element, mode SequenceMode, depth int) interface{} {
	items, ok := element.Value.([]*dicom.Dataset)
	if !ok {
		return "Nested sequence"
	}
	if mode == SequenceAsMarker || depth >= maxSequenceDepth {
		return "Nested sequence"
	}

	expanded := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		itemMap := make(map[string]interface{})
		for _, tag := range item.SortedTags() {
			keyword := dicom.KeywordForTag(tag)
			if keyword == "" {
				continue
			}
			itemMap[keyword] = coerce(item.Elements[tag], mode, depth+1)
		}
		expanded = append(expanded, itemMap)
	}
	return expanded
}

// binaryMarker describes a binary payload without exposing its bytes.
// Pixel data gets its own phrasing so callers can grep for presence.
func binaryMarker(element *dicom.Element) string {
	length := 0
	if b, ok := element.Value.([]byte); ok {
		length = len(b)
	}
	if element.Tag == dicom.TagPixelData {
		return fmt.Sprintf("PixelData present (%d bytes)", length)
	}
	return fmt.Sprintf("%s data (%d bytes)", element.VR, length)
}

// decodeLossy converts bytes to text, replacing undecodable runs instead
// of failing.
func decodeLossy(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "�")
}

// displayString renders any element as a plain string: multi-valued
// fields joined with "; ", bytes decoded lossily, everything else via
// default formatting. Used by the tag-keyed extraction path.
func displayString(element *dicom.Element) string {
	if element == nil || element.Value == nil {
		return ""
	}
	switch v := element.Value.(type) {
	case string:
		return joinMultiValue(strings.TrimSpace(v))
	case []string:
		return strings.Join(v, multiValueSeparator)
	case []byte:
		return joinMultiValue(decodeLossy(v))
	case []*dicom.Dataset:
		return "Nested sequence"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// joinMultiValue renders a backslash-delimited wire value with the
// display separator. The parser keeps multi-valued elements as a single
// string, so the split happens here. Single values pass through
// unchanged.
func joinMultiValue(v string) string {
	if !strings.Contains(v, `\`) {
		return v
	}
	parts := strings.Split(v, `\`)
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return strings.Join(parts, multiValueSeparator)
}
