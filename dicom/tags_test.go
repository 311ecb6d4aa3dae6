package dicom

import "testing"

func TestResolveVR(t *testing.T) {
	tests := []struct {
		name     string
		tag      Tag
		value    interface{}
		expected string
	}{
		{"dictionary entry wins", TagRows, "ignored", VR_US},
		{"dictionary pixel data", TagPixelData, nil, VR_OW},
		{"unmapped string", Tag{0x0009, 0x0001}, "value", VR_LO},
		{"unmapped int", Tag{0x0009, 0x0002}, 42, VR_IS},
		{"unmapped float", Tag{0x0009, 0x0003}, 1.5, VR_DS},
		{"unmapped sequence", Tag{0x0009, 0x0004}, []*Dataset{}, VR_SQ},
		{"unmapped unknown type", Tag{0x0009, 0x0005}, struct{}{}, VR_UN},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveVR(tt.tag, tt.value); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestTagForKeyword(t *testing.T) {
	tests := []struct {
		name     string
		keyword  string
		expected Tag
		ok       bool
	}{
		{"patient name", "PatientName", Tag{0x0010, 0x0010}, true},
		{"study instance UID", "StudyInstanceUID", Tag{0x0020, 0x000D}, true},
		{"height alias", "Height", Tag{0x0028, 0x0010}, true},
		{"width alias", "Width", Tag{0x0028, 0x0011}, true},
		{"unknown keyword", "NoSuchKeyword", Tag{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := TagForKeyword(tt.keyword)
			if ok != tt.ok {
				t.Fatalf("Expected ok=%v, got %v", tt.ok, ok)
			}
			if got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestKeywordForTag(t *testing.T) {
	if got := KeywordForTag(TagSeriesDescription); got != "SeriesDescription" {
		t.Errorf("Expected %q, got %q", "SeriesDescription", got)
	}
	if got := KeywordForTag(Tag{0x0009, 0x0001}); got != "" {
		t.Errorf("Expected empty keyword, got %q", got)
	}
}

func TestVRClassification(t *testing.T) {
	if !IsTextualVR(VR_LO) || !IsTextualVR(VR_UI) {
		t.Error("Expected LO and UI to be textual")
	}
	if IsTextualVR(VR_OB) {
		t.Error("Expected OB to not be textual")
	}
	if !IsBinaryVR(VR_OW) || !IsBinaryVR(VR_UN) {
		t.Error("Expected OW and UN to be binary")
	}
	if IsBinaryVR(VR_SQ) {
		t.Error("Expected SQ to not be binary")
	}
}
