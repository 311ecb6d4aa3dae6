// Package dicom implements the in-memory DICOM dataset model: tag-addressed
// elements with VR-typed values, Little Endian codecs, the tag catalog used
// for metadata extraction, and tag mutation helpers.
package dicom

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Common transfer syntax UIDs.
const (
	TransferSyntaxImplicitVRLittleEndian = "1.2.840.10008.1.2"
	TransferSyntaxExplicitVRLittleEndian = "1.2.840.10008.1.2.1"
	TransferSyntaxJPEGBaseline           = "1.2.840.10008.1.2.4.50"
	TransferSyntaxJPEGExtended           = "1.2.840.10008.1.2.4.51"
	TransferSyntaxJPEGLossless           = "1.2.840.10008.1.2.4.57"
)

// Tag represents a DICOM tag (group, element)
type Tag struct {
	Group   uint16
	Element uint16
}

// String returns the tag as a string in (GGGG,EEEE) format
func (t Tag) String() string {
	return fmt.Sprintf("(%04x,%04x)", t.Group, t.Element)
}

// Hex returns the tag in the compact GGGGEEEE form used by query filters.
func (t Tag) Hex() string {
	return fmt.Sprintf("%04X%04X", t.Group, t.Element)
}

// ParseTag converts a compact hex identifier ("00100020") into a Tag.
// The first four characters are the group, the last four the element.
func ParseTag(s string) (Tag, error) {
	if len(s) != 8 {
		return Tag{}, fmt.Errorf("invalid tag %q: want 8 hex characters", s)
	}
	group, err := strconv.ParseUint(s[:4], 16, 16)
	if err != nil {
		return Tag{}, fmt.Errorf("invalid tag group in %q: %w", s, err)
	}
	element, err := strconv.ParseUint(s[4:], 16, 16)
	if err != nil {
		return Tag{}, fmt.Errorf("invalid tag element in %q: %w", s, err)
	}
	return Tag{Group: uint16(group), Element: uint16(element)}, nil
}

// Element represents a DICOM data element.
//
// Value holds one of: string, []string (multi-valued), int, float64,
// []byte (binary VRs), or []*Dataset (sequence items).
type Element struct {
	Tag   Tag
	VR    string
	Value interface{}
}

// Dataset represents a collection of DICOM elements
type Dataset struct {
	Elements map[Tag]*Element
}

// NewDataset creates a new empty dataset
func NewDataset() *Dataset {
	return &Dataset{
		Elements: make(map[Tag]*Element),
	}
}

// AddElement adds an element to the dataset
func (d *Dataset) AddElement(tag Tag, vr string, value interface{}) {
	d.Elements[tag] = &Element{
		Tag:   tag,
		VR:    vr,
		Value: value,
	}
}

// GetElement returns an element by tag
func (d *Dataset) GetElement(tag Tag) (*Element, bool) {
	element, exists := d.Elements[tag]
	return element, exists
}

// GetString returns a string value for a tag, or "" when absent or
// not string-typed.
func (d *Dataset) GetString(tag Tag) string {
	if element, exists := d.Elements[tag]; exists {
		if str, ok := element.Value.(string); ok {
			return strings.TrimSpace(str)
		}
	}
	return ""
}

// GetStrings returns a slice of string values for a tag
func (d *Dataset) GetStrings(tag Tag) []string {
	if element, exists := d.Elements[tag]; exists {
		switch v := element.Value.(type) {
		case string:
			// Backslash separates values in multi-valued elements
			parts := strings.Split(v, "\\")
			result := make([]string, len(parts))
			for i, part := range parts {
				result[i] = strings.TrimSpace(part)
			}
			return result
		case []string:
			return v
		}
	}
	return nil
}

// GetInt returns the integer value of a tag. String values are parsed
// since IS elements arrive as text on the wire.
func (d *Dataset) GetInt(tag Tag) (int, bool) {
	element, exists := d.Elements[tag]
	if !exists {
		return 0, false
	}
	switch v := element.Value.(type) {
	case int:
		return v, true
	case uint16:
		return int(v), true
	case uint32:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// GetFloat returns the float value of a tag, parsing string forms.
func (d *Dataset) GetFloat(tag Tag) (float64, bool) {
	element, exists := d.Elements[tag]
	if !exists {
		return 0, false
	}
	switch v := element.Value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// GetBytes returns the raw byte value of a binary element.
func (d *Dataset) GetBytes(tag Tag) ([]byte, bool) {
	if element, exists := d.Elements[tag]; exists {
		if b, ok := element.Value.([]byte); ok {
			return b, true
		}
	}
	return nil, false
}

// GetSequence returns the items of a sequence (SQ) element.
func (d *Dataset) GetSequence(tag Tag) ([]*Dataset, bool) {
	if element, exists := d.Elements[tag]; exists {
		if items, ok := element.Value.([]*Dataset); ok {
			return items, true
		}
	}
	return nil, false
}

// GetByKeyword looks an element up by its dictionary keyword
// ("PatientName", "StudyInstanceUID", ...). This is the attribute-style
// access path; it resolves independently of the tag-catalog path.
func (d *Dataset) GetByKeyword(keyword string) (*Element, bool) {
	tag, ok := TagForKeyword(keyword)
	if !ok {
		return nil, false
	}
	return d.GetElement(tag)
}

// Has reports whether a tag is present in the dataset.
func (d *Dataset) Has(tag Tag) bool {
	_, exists := d.Elements[tag]
	return exists
}

// SortedTags returns the dataset's tags in (group, element) order.
// DICOM requires tag ordering on the wire.
func (d *Dataset) SortedTags() []Tag {
	tags := make([]Tag, 0, len(d.Elements))
	for tag := range d.Elements {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Group != tags[j].Group {
			return tags[i].Group < tags[j].Group
		}
		return tags[i].Element < tags[j].Element
	})
	return tags
}

// longVRs use the 12-byte explicit header (2 reserved + 4 length bytes).
var longVRs = map[string]bool{
	VR_OB: true, VR_OD: true, VR_OF: true, VR_OL: true, VR_OV: true,
	VR_OW: true, VR_SQ: true, VR_UC: true, VR_UN: true, VR_UR: true,
	VR_UT: true,
}

const undefinedLength = 0xFFFFFFFF

// Item delimitation tags used inside sequences.
var (
	tagItem          = Tag{0xFFFE, 0xE000}
	tagItemDelim     = Tag{0xFFFE, 0xE00D}
	tagSequenceDelim = Tag{0xFFFE, 0xE0DD}
)

// ParseDataset parses a DICOM dataset from raw bytes (Explicit VR Little Endian)
func ParseDataset(data []byte) (*Dataset, error) {
	return parseExplicitVR(data, 0)
}

// ParseDatasetWithTransferSyntax parses a dataset using the provided transfer syntax.
func ParseDatasetWithTransferSyntax(data []byte, transferSyntaxUID string) (*Dataset, error) {
	switch transferSyntaxUID {
	case TransferSyntaxImplicitVRLittleEndian:
		return parseImplicitVR(data, 0)
	default:
		// Explicit VR Little Endian also covers the encapsulated JPEG
		// syntaxes, whose non-pixel elements use the same framing.
		return parseExplicitVR(data, 0)
	}
}

func parseExplicitVR(data []byte, depth int) (*Dataset, error) {
	dataset := NewDataset()
	if len(data) == 0 {
		return dataset, nil
	}

	offset := 0
	for offset+8 <= len(data) {
		tag := Tag{
			Group:   binary.LittleEndian.Uint16(data[offset : offset+2]),
			Element: binary.LittleEndian.Uint16(data[offset+2 : offset+4]),
		}

		vr := string(data[offset+4 : offset+6])

		var length uint32
		var valueOffset int
		if longVRs[vr] {
			if offset+12 > len(data) {
				break
			}
			length = binary.LittleEndian.Uint32(data[offset+8 : offset+12])
			valueOffset = offset + 12
		} else {
			length = uint32(binary.LittleEndian.Uint16(data[offset+6 : offset+8]))
			valueOffset = offset + 8
		}

		if vr == VR_SQ {
			items, consumed, err := parseSequence(data[valueOffset:], length, depth+1, false)
			if err != nil {
				return nil, err
			}
			dataset.AddElement(tag, vr, items)
			offset = valueOffset + consumed
			continue
		}

		if length == undefinedLength || valueOffset+int(length) > len(data) {
			break
		}

		valueData := data[valueOffset : valueOffset+int(length)]
		dataset.AddElement(tag, vr, decodeElementValue(vr, valueData))

		offset = valueOffset + int(length)
		if length%2 == 1 {
			offset++
		}
	}

	return dataset, nil
}

func parseImplicitVR(data []byte, depth int) (*Dataset, error) {
	dataset := NewDataset()
	if len(data) == 0 {
		return dataset, nil
	}

	offset := 0
	for offset+8 <= len(data) {
		tag := Tag{
			Group:   binary.LittleEndian.Uint16(data[offset : offset+2]),
			Element: binary.LittleEndian.Uint16(data[offset+2 : offset+4]),
		}
		length := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		valueOffset := offset + 8

		vr := ResolveVR(tag, nil)

		if vr == VR_SQ {
			items, consumed, err := parseSequence(data[valueOffset:], length, depth+1, true)
			if err != nil {
				return nil, err
			}
			dataset.AddElement(tag, vr, items)
			offset = valueOffset + consumed
			continue
		}

		if length == undefinedLength || valueOffset+int(length) > len(data) {
			break
		}

		valueData := data[valueOffset : valueOffset+int(length)]
		dataset.AddElement(tag, vr, decodeElementValue(vr, valueData))

		offset = valueOffset + int(length)
		if length%2 == 1 {
			offset++
		}
	}

	return dataset, nil
}

// parseSequence parses SQ items, handling both defined and undefined
// lengths. Returns the parsed items and the number of bytes consumed.
func parseSequence(data []byte, length uint32, depth int, implicit bool) ([]*Dataset, int, error) {
	if depth > 8 {
		return nil, 0, fmt.Errorf("sequence nesting too deep")
	}

	var items []*Dataset
	offset := 0
	end := len(data)
	if length != undefinedLength {
		if int(length) > len(data) {
			return nil, 0, fmt.Errorf("sequence length %d exceeds remaining data", length)
		}
		end = int(length)
	}

	for offset+8 <= end {
		itemTag := Tag{
			Group:   binary.LittleEndian.Uint16(data[offset : offset+2]),
			Element: binary.LittleEndian.Uint16(data[offset+2 : offset+4]),
		}
		itemLength := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		offset += 8

		if itemTag == tagSequenceDelim {
			return items, offset, nil
		}
		if itemTag != tagItem {
			return nil, 0, fmt.Errorf("unexpected tag %s inside sequence", itemTag)
		}

		var itemData []byte
		if itemLength == undefinedLength {
			itemEnd, err := findItemDelimiter(data[offset:end])
			if err != nil {
				return nil, 0, err
			}
			itemData = data[offset : offset+itemEnd]
			offset += itemEnd + 8 // skip the item delimitation element
		} else {
			if offset+int(itemLength) > end {
				return nil, 0, fmt.Errorf("sequence item length %d exceeds remaining data", itemLength)
			}
			itemData = data[offset : offset+int(itemLength)]
			offset += int(itemLength)
		}

		var item *Dataset
		var err error
		if implicit {
			item, err = parseImplicitVR(itemData, depth)
		} else {
			item, err = parseExplicitVR(itemData, depth)
		}
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}

	if length == undefinedLength {
		return nil, 0, fmt.Errorf("unterminated sequence")
	}
	return items, end, nil
}

// findItemDelimiter returns the offset of the (FFFE,E00D) item delimiter,
// skipping over nested undefined-length structures.
func findItemDelimiter(data []byte) (int, error) {
	depth := 0
	for offset := 0; offset+8 <= len(data); {
		tag := Tag{
			Group:   binary.LittleEndian.Uint16(data[offset : offset+2]),
			Element: binary.LittleEndian.Uint16(data[offset+2 : offset+4]),
		}
		length := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		switch tag {
		case tagItem:
			if length == undefinedLength {
				depth++
				offset += 8
				continue
			}
		case tagItemDelim:
			if depth == 0 {
				return offset, nil
			}
			depth--
			offset += 8
			continue
		}
		if length == undefinedLength {
			offset += 8
			continue
		}
		offset += 8 + int(length)
	}
	return 0, fmt.Errorf("missing item delimitation tag")
}

// decodeElementValue converts raw element bytes into a typed value.
// Binary VRs keep their bytes; everything else becomes trimmed text.
func decodeElementValue(vr string, data []byte) interface{} {
	if IsBinaryVR(vr) {
		// Copy out: the transport layer reuses its PDU buffer.
		b := make([]byte, len(data))
		copy(b, data)
		return b
	}
	if vr == VR_US && len(data) == 2 {
		return int(binary.LittleEndian.Uint16(data))
	}
	if vr == VR_UL && len(data) == 4 {
		return int(binary.LittleEndian.Uint32(data))
	}
	if len(data) == 0 {
		return ""
	}
	value := string(data)
	if idx := strings.IndexByte(value, 0); idx != -1 {
		value = value[:idx]
	}
	return strings.TrimSpace(value)
}

// EncodeDataset encodes a dataset to bytes (Explicit VR Little Endian)
func (d *Dataset) EncodeDataset() []byte {
	var result []byte

	for _, tag := range d.SortedTags() {
		element := d.Elements[tag]

		tagBytes := make([]byte, 4)
		binary.LittleEndian.PutUint16(tagBytes[0:2], tag.Group)
		binary.LittleEndian.PutUint16(tagBytes[2:4], tag.Element)
		result = append(result, tagBytes...)

		result = append(result, []byte(element.VR)...)

		valueBytes := encodeElementValue(element)
		if len(valueBytes)%2 == 1 {
			if IsBinaryVR(element.VR) {
				valueBytes = append(valueBytes, 0x00)
			} else {
				valueBytes = append(valueBytes, 0x20)
			}
		}

		if longVRs[element.VR] {
			result = append(result, 0x00, 0x00) // reserved
			lengthBytes := make([]byte, 4)
			binary.LittleEndian.PutUint32(lengthBytes, uint32(len(valueBytes)))
			result = append(result, lengthBytes...)
		} else {
			if len(valueBytes) > 65535 {
				valueBytes = valueBytes[:65535]
			}
			lengthBytes := make([]byte, 2)
			binary.LittleEndian.PutUint16(lengthBytes, uint16(len(valueBytes)))
			result = append(result, lengthBytes...)
		}

		result = append(result, valueBytes...)
	}

	return result
}

// EncodeDatasetWithTransferSyntax encodes a dataset using the provided transfer syntax.
func EncodeDatasetWithTransferSyntax(dataset *Dataset, transferSyntaxUID string) ([]byte, error) {
	if dataset == nil {
		return nil, nil
	}
	switch transferSyntaxUID {
	case TransferSyntaxImplicitVRLittleEndian:
		return encodeImplicitVRDataset(dataset), nil
	default:
		return dataset.EncodeDataset(), nil
	}
}

func encodeImplicitVRDataset(dataset *Dataset) []byte {
	var result []byte

	for _, tag := range dataset.SortedTags() {
		element := dataset.Elements[tag]

		tagBytes := make([]byte, 4)
		binary.LittleEndian.PutUint16(tagBytes[0:2], tag.Group)
		binary.LittleEndian.PutUint16(tagBytes[2:4], tag.Element)
		result = append(result, tagBytes...)

		valueBytes := encodeElementValue(element)
		if len(valueBytes)%2 == 1 {
			valueBytes = append(valueBytes, 0x20)
		}

		lengthBytes := make([]byte, 4)
		binary.LittleEndian.PutUint32(lengthBytes, uint32(len(valueBytes)))
		result = append(result, lengthBytes...)
		result = append(result, valueBytes...)
	}

	return result
}

// encodeElementValue encodes an element value to bytes
func encodeElementValue(element *Element) []byte {
	switch v := element.Value.(type) {
	case string:
		return []byte(strings.TrimRight(v, "\x00"))
	case []string:
		joined := strings.Join(v, "\\")
		return []byte(strings.TrimRight(joined, "\x00"))
	case []byte:
		return v
	case int:
		if element.VR == VR_US {
			result := make([]byte, 2)
			binary.LittleEndian.PutUint16(result, uint16(v))
			return result
		}
		if element.VR == VR_UL {
			result := make([]byte, 4)
			binary.LittleEndian.PutUint32(result, uint32(v))
			return result
		}
		return []byte(strconv.Itoa(v))
	case float64:
		return []byte(strconv.FormatFloat(v, 'f', -1, 64))
	case []*Dataset:
		return encodeSequenceItems(v)
	case uint16:
		result := make([]byte, 2)
		binary.LittleEndian.PutUint16(result, v)
		return result
	case uint32:
		result := make([]byte, 4)
		binary.LittleEndian.PutUint32(result, v)
		return result
	default:
		return []byte(fmt.Sprintf("%v", v))
	}
}

// encodeSequenceItems encodes SQ items with defined lengths.
func encodeSequenceItems(items []*Dataset) []byte {
	var result []byte
	for _, item := range items {
		body := item.EncodeDataset()
		header := make([]byte, 8)
		binary.LittleEndian.PutUint16(header[0:2], tagItem.Group)
		binary.LittleEndian.PutUint16(header[2:4], tagItem.Element)
		binary.LittleEndian.PutUint32(header[4:8], uint32(len(body)))
		result = append(result, header...)
		result = append(result, body...)
	}
	return result
}
