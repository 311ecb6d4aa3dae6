package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helioscan/pacsbridge/dicom"
)

func testDataset() *dicom.Dataset {
	dataset := dicom.NewDataset()
	dataset.AddElement(dicom.TagStudyInstanceUID, dicom.VR_UI, "1.2.3.1")
	dataset.AddElement(dicom.TagSeriesInstanceUID, dicom.VR_UI, "1.2.3.2")
	dataset.AddElement(dicom.TagSOPInstanceUID, dicom.VR_UI, "1.2.3.3")
	dataset.AddElement(dicom.TagSOPClassUID, dicom.VR_UI, "1.2.840.10008.5.1.4.1.1.6.1")
	dataset.AddElement(dicom.TagModality, dicom.VR_CS, "US")
	dataset.AddElement(dicom.TagPatientName, dicom.VR_PN, "DOE^JANE")
	dataset.AddElement(dicom.TagStudyDescription, dicom.VR_LO, "Abdominal")
	return dataset
}

func testFileMeta() *dicom.Dataset {
	fileMeta := dicom.NewDataset()
	fileMeta.AddElement(dicom.TagTransferSyntaxUID, dicom.VR_UI, dicom.TransferSyntaxExplicitVRLittleEndian)
	fileMeta.AddElement(dicom.TagMediaStorageSOPClassUID, dicom.VR_UI, "1.2.840.10008.5.1.4.1.1.6.1")
	return fileMeta
}

func TestExtractor_ByTags(t *testing.T) {
	x := NewExtractor(testFileMeta(), testDataset(), nil)
	byTag := x.ByTags()

	assert.Equal(t, "1.2.3.1", byTag["study_info"]["StudyInstanceUID"])
	assert.Equal(t, "US", byTag["series_info"]["Modality"])
	assert.Equal(t, "DOE^JANE", byTag["patient_info"]["PatientName"])

	// Absent fields still appear, as empty strings.
	assert.Contains(t, byTag["patient_info"], "PatientBirthDate")
	assert.Equal(t, "", byTag["patient_info"]["PatientBirthDate"])
	assert.Contains(t, byTag["device_info"], "Manufacturer")
	assert.Equal(t, "", byTag["device_info"]["Manufacturer"])
}

func TestExtractor_ByTags_NilDataset(t *testing.T) {
	x := NewExtractor(nil, nil, nil)
	byTag := x.ByTags()

	// Shape is stable even with nothing to read.
	assert.Len(t, byTag, len(tagCatalog))
	assert.Equal(t, "", byTag["study_info"]["StudyInstanceUID"])
}

func TestExtractor_ByAttributes(t *testing.T) {
	x := NewExtractor(testFileMeta(), testDataset(), nil)
	byAttr := x.ByAttributes()

	assert.Equal(t, "1.2.3.2", byAttr["series_info"]["SeriesInstanceUID"])
	assert.Equal(t, "1.2.3.3", byAttr["instance_info"]["SOPInstanceUID"])
	assert.Equal(t, "", byAttr["geometry"]["Height"])
}

func TestExtractor_FileMetaInfo(t *testing.T) {
	x := NewExtractor(testFileMeta(), testDataset(), nil)
	fileMeta := x.FileMetaInfo()

	assert.Equal(t, dicom.TransferSyntaxExplicitVRLittleEndian, fileMeta["TransferSyntaxUID"])
	assert.Equal(t, "1.2.840.10008.5.1.4.1.1.6.1", fileMeta["MediaStorageSOPClassUID"])
	assert.Equal(t, "", fileMeta["ImplementationClassUID"])

	empty := NewExtractor(nil, nil, nil).FileMetaInfo()
	assert.Len(t, empty, len(fileMetaAttributes))
	assert.Equal(t, "", empty["TransferSyntaxUID"])
}

func TestExtractor_FrameCount(t *testing.T) {
	t.Run("explicit NumberOfFrames wins", func(t *testing.T) {
		dataset := testDataset()
		dataset.AddElement(dicom.TagNumberOfFrames, dicom.VR_IS, "7")
		dataset.AddElement(dicom.TagRows, dicom.VR_US, 2)
		dataset.AddElement(dicom.TagColumns, dicom.VR_US, 2)
		dataset.AddElement(dicom.TagBitsAllocated, dicom.VR_US, 8)
		dataset.AddElement(dicom.TagPixelData, dicom.VR_OW, make([]byte, 4))

		frames, ok := NewExtractor(nil, dataset, nil).FrameCount()
		require.True(t, ok)
		assert.Equal(t, 7, frames)
	})

	t.Run("derived from pixel data size", func(t *testing.T) {
		dataset := testDataset()
		dataset.AddElement(dicom.TagRows, dicom.VR_US, 512)
		dataset.AddElement(dicom.TagColumns, dicom.VR_US, 512)
		dataset.AddElement(dicom.TagBitsAllocated, dicom.VR_US, 16)
		dataset.AddElement(dicom.TagPixelData, dicom.VR_OW, make([]byte, 3*512*512*2))

		frames, ok := NewExtractor(nil, dataset, nil).FrameCount()
		require.True(t, ok)
		assert.Equal(t, 3, frames)
	})

	t.Run("no pixel data means one frame", func(t *testing.T) {
		frames, ok := NewExtractor(nil, testDataset(), nil).FrameCount()
		require.True(t, ok)
		assert.Equal(t, 1, frames)
	})

	t.Run("degenerate geometry means one frame", func(t *testing.T) {
		dataset := testDataset()
		dataset.AddElement(dicom.TagPixelData, dicom.VR_OW, make([]byte, 100))

		frames, ok := NewExtractor(nil, dataset, nil).FrameCount()
		require.True(t, ok)
		assert.Equal(t, 1, frames)
	})

	t.Run("nil dataset", func(t *testing.T) {
		_, ok := NewExtractor(nil, nil, nil).FrameCount()
		assert.False(t, ok)
	})
}

func TestExtractor_PixelInfoFromPhysical(t *testing.T) {
	region := dicom.NewDataset()
	region.AddElement(dicom.TagPhysicalDeltaX, dicom.VR_FD, 0.012345678)
	region.AddElement(dicom.TagPhysicalDeltaY, dicom.VR_FD, 0.02)
	region.AddElement(dicom.TagRegionSpatialFormat, dicom.VR_UL, 1)

	dataset := testDataset()
	dataset.AddElement(dicom.TagSequenceOfUltrasoundRegions, dicom.VR_SQ, []*dicom.Dataset{region})

	x := NewExtractor(nil, dataset, nil)

	info, ok := x.PixelInfoFromPhysical()
	require.True(t, ok)
	// Deltas are scaled by 10 and rounded to 5 places.
	assert.Equal(t, 0.12346, info.PhysicalDeltaX)
	assert.Equal(t, 0.2, info.PhysicalDeltaY)
	assert.Equal(t, 0, info.FrameIndex)

	format, ok := x.UltrasoundRegionFormat()
	require.True(t, ok)
	assert.Equal(t, 1, format)

	_, ok = x.PixelInfoByFrameIndex(5)
	assert.False(t, ok)
}

func TestExtractor_PixelInfo_NoRegions(t *testing.T) {
	x := NewExtractor(nil, testDataset(), nil)
	_, ok := x.PixelInfoFromPhysical()
	assert.False(t, ok)
	_, ok = x.UltrasoundRegionFormat()
	assert.False(t, ok)
}

func TestExtractor_SRReferences(t *testing.T) {
	buildEvidence := func() []*dicom.Dataset {
		sop1 := dicom.NewDataset()
		sop1.AddElement(dicom.TagReferencedSOPInstanceUID, dicom.VR_UI, "1.9.1")
		sop2 := dicom.NewDataset()
		sop2.AddElement(dicom.TagReferencedSOPInstanceUID, dicom.VR_UI, "1.9.2")

		series := dicom.NewDataset()
		series.AddElement(dicom.TagSeriesInstanceUID, dicom.VR_UI, "1.8.1")
		series.AddElement(dicom.TagReferencedSOPSequence, dicom.VR_SQ, []*dicom.Dataset{sop1, sop2})

		study := dicom.NewDataset()
		study.AddElement(dicom.TagReferencedSeriesSequence, dicom.VR_SQ, []*dicom.Dataset{series})
		return []*dicom.Dataset{study}
	}

	t.Run("walks evidence for SR datasets", func(t *testing.T) {
		dataset := testDataset()
		dataset.AddElement(dicom.TagModality, dicom.VR_CS, "SR")
		dataset.AddElement(dicom.TagCurrentRequestedProcedureEvidence, dicom.VR_SQ, buildEvidence())

		refs := NewExtractor(nil, dataset, nil).SRReferences()
		require.Len(t, refs, 2)
		assert.Equal(t, SRReference{SeriesInstanceUID: "1.8.1", ReferencedSOPInstanceUID: "1.9.1"}, refs[0])
		assert.Equal(t, SRReference{SeriesInstanceUID: "1.8.1", ReferencedSOPInstanceUID: "1.9.2"}, refs[1])
	})

	t.Run("nil for non-SR modality", func(t *testing.T) {
		dataset := testDataset()
		dataset.AddElement(dicom.TagCurrentRequestedProcedureEvidence, dicom.VR_SQ, buildEvidence())

		assert.Nil(t, NewExtractor(nil, dataset, nil).SRReferences())
	})

	t.Run("nil without evidence sequence", func(t *testing.T) {
		dataset := testDataset()
		dataset.AddElement(dicom.TagModality, dicom.VR_CS, "SR")

		assert.Nil(t, NewExtractor(nil, dataset, nil).SRReferences())
	})
}

func TestExtractor_Full(t *testing.T) {
	dataset := testDataset()
	dataset.AddElement(dicom.TagNumberOfFrames, dicom.VR_IS, "4")

	extraction := NewExtractor(testFileMeta(), dataset, nil).Full()

	assert.Equal(t, "1.2.3.1", extraction.ByTag["study_info"]["StudyInstanceUID"])
	assert.Equal(t, "US", extraction.ByAttribute["series_info"]["Modality"])
	assert.Equal(t, dicom.TransferSyntaxExplicitVRLittleEndian, extraction.FileMeta["TransferSyntaxUID"])
	require.NotNil(t, extraction.Frames)
	assert.Equal(t, 4, *extraction.Frames)
	assert.Nil(t, extraction.PixelInfo)
	assert.Nil(t, extraction.UltrasoundRegion)
}

func TestExtractor_AllAttributes(t *testing.T) {
	dataset := testDataset()
	dataset.AddElement(dicom.TagRows, dicom.VR_US, 480)
	dataset.AddElement(dicom.TagColumns, dicom.VR_US, 640)
	dataset.AddElement(dicom.TagBitsAllocated, dicom.VR_US, 8)
	dataset.AddElement(dicom.TagPixelSpacing, dicom.VR_DS, "0.5\\0.5")
	dataset.AddElement(dicom.TagPixelData, dicom.VR_OW, make([]byte, 640*480))

	all := NewExtractor(testFileMeta(), dataset, nil).AllAttributes()

	assert.Equal(t, "DOE^JANE", all["PatientName"])
	assert.Equal(t, "PixelData present (307200 bytes)", all["PixelData"])

	fileMeta, ok := all["FileMetaInformation"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, dicom.TransferSyntaxExplicitVRLittleEndian, fileMeta["TransferSyntaxUID"])

	pixelInfo, ok := all["PixelDataInfo"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "480x640", pixelInfo["Dimensions"])
	assert.Equal(t, 480, pixelInfo["Rows"])
	assert.Equal(t, 640, pixelInfo["Columns"])
	assert.Equal(t, []float64{0.5, 0.5}, pixelInfo["PixelSpacing"])
	assert.Equal(t, 8, pixelInfo["BitsAllocated"])
}
