package dicom

import (
	"bytes"
	"testing"
)

func TestTag_String(t *testing.T) {
	tests := []struct {
		name     string
		tag      Tag
		expected string
	}{
		{"Patient Name", Tag{0x0010, 0x0010}, "(0010,0010)"},
		{"Study Instance UID", Tag{0x0020, 0x000D}, "(0020,000d)"},
		{"Pixel Data", Tag{0x7FE0, 0x0010}, "(7fe0,0010)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tag.String(); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestTag_Hex(t *testing.T) {
	tests := []struct {
		name     string
		tag      Tag
		expected string
	}{
		{"Patient ID", Tag{0x0010, 0x0020}, "00100020"},
		{"Series Instance UID", Tag{0x0020, 0x000E}, "0020000E"},
		{"Pixel Data", Tag{0x7FE0, 0x0010}, "7FE00010"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tag.Hex(); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestParseTag(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		expected  Tag
		expectErr bool
	}{
		{"patient ID", "00100020", Tag{0x0010, 0x0020}, false},
		{"upper case hex", "0020000E", Tag{0x0020, 0x000E}, false},
		{"lower case hex", "0020000e", Tag{0x0020, 0x000E}, false},
		{"too short", "0010", Tag{}, true},
		{"too long", "001000200", Tag{}, true},
		{"not hex", "0010zz20", Tag{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTag(tt.input)
			if tt.expectErr {
				if err == nil {
					t.Fatalf("Expected error for %q, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestDataset_GetString(t *testing.T) {
	dataset := NewDataset()
	dataset.AddElement(TagPatientName, VR_PN, "DOE^JOHN ")
	dataset.AddElement(TagRows, VR_US, 512)

	tests := []struct {
		name     string
		tag      Tag
		expected string
	}{
		{"trims trailing padding", TagPatientName, "DOE^JOHN"},
		{"non-string value", TagRows, ""},
		{"absent tag", TagPatientID, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dataset.GetString(tt.tag); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestDataset_GetStrings(t *testing.T) {
	dataset := NewDataset()
	dataset.AddElement(TagModalitiesInStudy, VR_CS, "CT\\MR \\US")
	dataset.AddElement(TagImageType, VR_CS, []string{"ORIGINAL", "PRIMARY"})

	t.Run("splits on backslash and trims", func(t *testing.T) {
		got := dataset.GetStrings(TagModalitiesInStudy)
		expected := []string{"CT", "MR", "US"}
		if len(got) != len(expected) {
			t.Fatalf("Expected %d values, got %d", len(expected), len(got))
		}
		for i := range expected {
			if got[i] != expected[i] {
				t.Errorf("Expected %q at index %d, got %q", expected[i], i, got[i])
			}
		}
	})

	t.Run("returns slice values directly", func(t *testing.T) {
		got := dataset.GetStrings(TagImageType)
		if len(got) != 2 || got[0] != "ORIGINAL" || got[1] != "PRIMARY" {
			t.Errorf("Expected [ORIGINAL PRIMARY], got %v", got)
		}
	})

	t.Run("absent tag", func(t *testing.T) {
		if got := dataset.GetStrings(TagPatientID); got != nil {
			t.Errorf("Expected nil, got %v", got)
		}
	})
}

func TestDataset_GetInt(t *testing.T) {
	dataset := NewDataset()
	dataset.AddElement(TagRows, VR_US, 512)
	dataset.AddElement(TagNumberOfFrames, VR_IS, " 3 ")
	dataset.AddElement(TagPatientName, VR_PN, "DOE^JOHN")

	tests := []struct {
		name     string
		tag      Tag
		expected int
		ok       bool
	}{
		{"decoded int", TagRows, 512, true},
		{"integer string", TagNumberOfFrames, 3, true},
		{"non-numeric string", TagPatientName, 0, false},
		{"absent tag", TagColumns, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := dataset.GetInt(tt.tag)
			if ok != tt.ok {
				t.Fatalf("Expected ok=%v, got %v", tt.ok, ok)
			}
			if got != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestDataset_GetFloat(t *testing.T) {
	dataset := NewDataset()
	dataset.AddElement(TagPhysicalDeltaX, VR_FD, 0.0123)
	dataset.AddElement(TagSliceThickness, VR_DS, "2.5 ")

	if got, ok := dataset.GetFloat(TagPhysicalDeltaX); !ok || got != 0.0123 {
		t.Errorf("Expected 0.0123, got %v (ok=%v)", got, ok)
	}
	if got, ok := dataset.GetFloat(TagSliceThickness); !ok || got != 2.5 {
		t.Errorf("Expected 2.5, got %v (ok=%v)", got, ok)
	}
	if _, ok := dataset.GetFloat(TagPixelSpacing); ok {
		t.Error("Expected ok=false for absent tag")
	}
}

func TestDataset_GetByKeyword(t *testing.T) {
	dataset := NewDataset()
	dataset.AddElement(TagRows, VR_US, 512)

	t.Run("alias resolves", func(t *testing.T) {
		element, ok := dataset.GetByKeyword("Height")
		if !ok {
			t.Fatal("Expected Height to resolve to Rows")
		}
		if element.Value != 512 {
			t.Errorf("Expected 512, got %v", element.Value)
		}
	})

	t.Run("unknown keyword", func(t *testing.T) {
		if _, ok := dataset.GetByKeyword("NoSuchKeyword"); ok {
			t.Error("Expected ok=false for unknown keyword")
		}
	})
}

func TestDataset_SortedTags(t *testing.T) {
	dataset := NewDataset()
	dataset.AddElement(TagPixelData, VR_OW, []byte{0x00})
	dataset.AddElement(TagPatientName, VR_PN, "DOE^JOHN")
	dataset.AddElement(TagSOPInstanceUID, VR_UI, "1.2.3")
	dataset.AddElement(TagSOPClassUID, VR_UI, "1.2.840.10008.5.1.4.1.1.7")

	expected := []Tag{TagSOPClassUID, TagSOPInstanceUID, TagPatientName, TagPixelData}
	got := dataset.SortedTags()
	if len(got) != len(expected) {
		t.Fatalf("Expected %d tags, got %d", len(expected), len(got))
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("Expected %s at index %d, got %s", expected[i], i, got[i])
		}
	}
}

func TestEncodeParseRoundTrip_ExplicitVR(t *testing.T) {
	item := NewDataset()
	item.AddElement(TagReferencedSOPInstanceUID, VR_UI, "1.2.3.4.5")

	dataset := NewDataset()
	dataset.AddElement(TagPatientName, VR_PN, "DOE^JOHN")
	dataset.AddElement(TagSeriesNumber, VR_IS, "2")
	dataset.AddElement(TagRows, VR_US, 512)
	dataset.AddElement(TagPixelData, VR_OW, []byte{0x01, 0x02, 0x03, 0x04})
	dataset.AddElement(TagReferencedSOPSequence, VR_SQ, []*Dataset{item})

	parsed, err := ParseDataset(dataset.EncodeDataset())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if got := parsed.GetString(TagPatientName); got != "DOE^JOHN" {
		t.Errorf("Expected %q, got %q", "DOE^JOHN", got)
	}
	if got := parsed.GetString(TagSeriesNumber); got != "2" {
		t.Errorf("Expected %q, got %q", "2", got)
	}
	if got, ok := parsed.GetInt(TagRows); !ok || got != 512 {
		t.Errorf("Expected 512, got %d (ok=%v)", got, ok)
	}
	pixels, ok := parsed.GetBytes(TagPixelData)
	if !ok || !bytes.Equal(pixels, []byte{0x01, 0x02, 0x03, 0x04}) {
		t.Errorf("Expected pixel bytes to round trip, got %v (ok=%v)", pixels, ok)
	}

	items, ok := parsed.GetSequence(TagReferencedSOPSequence)
	if !ok || len(items) != 1 {
		t.Fatalf("Expected one sequence item, got %d (ok=%v)", len(items), ok)
	}
	if got := items[0].GetString(TagReferencedSOPInstanceUID); got != "1.2.3.4.5" {
		t.Errorf("Expected %q, got %q", "1.2.3.4.5", got)
	}
}

func TestEncodeParseRoundTrip_ImplicitVR(t *testing.T) {
	dataset := NewDataset()
	dataset.AddElement(TagPatientID, VR_LO, "12345")
	dataset.AddElement(TagRows, VR_US, 256)
	dataset.AddElement(TagColumns, VR_US, 256)

	encoded, err := EncodeDatasetWithTransferSyntax(dataset, TransferSyntaxImplicitVRLittleEndian)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	parsed, err := ParseDatasetWithTransferSyntax(encoded, TransferSyntaxImplicitVRLittleEndian)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if got := parsed.GetString(TagPatientID); got != "12345" {
		t.Errorf("Expected %q, got %q", "12345", got)
	}
	if got, ok := parsed.GetInt(TagRows); !ok || got != 256 {
		t.Errorf("Expected 256, got %d (ok=%v)", got, ok)
	}
	if got, ok := parsed.GetInt(TagColumns); !ok || got != 256 {
		t.Errorf("Expected 256, got %d (ok=%v)", got, ok)
	}
}

func TestParseDataset_OddLengthPadding(t *testing.T) {
	dataset := NewDataset()
	dataset.AddElement(TagPatientName, VR_PN, "DOE")

	parsed, err := ParseDataset(dataset.EncodeDataset())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := parsed.GetString(TagPatientName); got != "DOE" {
		t.Errorf("Expected %q, got %q", "DOE", got)
	}
}

func TestParseDataset_Empty(t *testing.T) {
	parsed, err := ParseDataset(nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(parsed.Elements) != 0 {
		t.Errorf("Expected empty dataset, got %d elements", len(parsed.Elements))
	}
}
