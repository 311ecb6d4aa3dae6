package dicom

import (
	"encoding/binary"
	"fmt"
)

// Part 10 files carry a 128-byte preamble, a "DICM" marker, then the File
// Meta Information group (0002) in Explicit VR Little Endian, then the
// dataset itself in whatever transfer syntax the file meta declares.

// HasPart10Header checks if the data starts with a DICOM Part 10 header.
func HasPart10Header(data []byte) bool {
	if len(data) < 132 {
		return false
	}
	return string(data[128:132]) == "DICM"
}

// SplitPart10 separates a Part 10 file into its parsed File Meta
// Information and the raw dataset bytes that follow it.
func SplitPart10(data []byte) (*Dataset, []byte, error) {
	if !HasPart10Header(data) {
		return nil, nil, fmt.Errorf("not a valid DICOM Part 10 file (missing DICM prefix at offset 128)")
	}

	fileMeta := NewDataset()
	offset := 132

	for offset+8 <= len(data) {
		group := binary.LittleEndian.Uint16(data[offset : offset+2])
		if group != 0x0002 {
			break
		}
		element := binary.LittleEndian.Uint16(data[offset+2 : offset+4])
		tag := Tag{Group: group, Element: element}

		vr := string(data[offset+4 : offset+6])

		var length uint32
		var valueOffset int
		if longVRs[vr] {
			if offset+12 > len(data) {
				return nil, nil, fmt.Errorf("truncated file meta element %s", tag)
			}
			length = binary.LittleEndian.Uint32(data[offset+8 : offset+12])
			valueOffset = offset + 12
		} else {
			length = uint32(binary.LittleEndian.Uint16(data[offset+6 : offset+8]))
			valueOffset = offset + 8
		}

		if valueOffset+int(length) > len(data) {
			return nil, nil, fmt.Errorf("truncated file meta element %s", tag)
		}

		fileMeta.AddElement(tag, vr, decodeElementValue(vr, data[valueOffset:valueOffset+int(length)]))
		offset = valueOffset + int(length)
	}

	if offset >= len(data) {
		return nil, nil, fmt.Errorf("no dataset after file meta information")
	}

	return fileMeta, data[offset:], nil
}

// ParsePart10 parses a complete Part 10 file, decoding the dataset with
// the transfer syntax declared in the file meta. Returns the file meta
// and the dataset.
func ParsePart10(data []byte) (*Dataset, *Dataset, error) {
	fileMeta, body, err := SplitPart10(data)
	if err != nil {
		return nil, nil, err
	}

	transferSyntax := fileMeta.GetString(TagTransferSyntaxUID)
	dataset, err := ParseDatasetWithTransferSyntax(body, transferSyntax)
	if err != nil {
		return nil, nil, fmt.Errorf("parse dataset: %w", err)
	}

	return fileMeta, dataset, nil
}

// StripPart10Header removes the preamble and File Meta Information,
// returning just the dataset bytes. Useful when sending a file's dataset
// via C-STORE, which expects no Part 10 wrapper.
func StripPart10Header(data []byte) ([]byte, error) {
	_, body, err := SplitPart10(data)
	if err != nil {
		return nil, err
	}
	return body, nil
}
