package dicom

// VR (Value Representation) constants
const (
	VR_AE = "AE" // Application Entity
	VR_AS = "AS" // Age String
	VR_AT = "AT" // Attribute Tag
	VR_CS = "CS" // Code String
	VR_DA = "DA" // Date
	VR_DS = "DS" // Decimal String
	VR_DT = "DT" // Date Time
	VR_FL = "FL" // Floating Point Single
	VR_FD = "FD" // Floating Point Double
	VR_IS = "IS" // Integer String
	VR_LO = "LO" // Long String
	VR_LT = "LT" // Long Text
	VR_OB = "OB" // Other Byte
	VR_OD = "OD" // Other Double
	VR_OF = "OF" // Other Float
	VR_OL = "OL" // Other Long
	VR_OV = "OV" // Other Very Long
	VR_OW = "OW" // Other Word
	VR_PN = "PN" // Person Name
	VR_SH = "SH" // Short String
	VR_SL = "SL" // Signed Long
	VR_SQ = "SQ" // Sequence of Items
	VR_SS = "SS" // Signed Short
	VR_ST = "ST" // Short Text
	VR_SV = "SV" // Signed Very Long
	VR_TM = "TM" // Time
	VR_UC = "UC" // Unlimited Characters
	VR_UI = "UI" // Unique Identifier
	VR_UL = "UL" // Unsigned Long
	VR_UN = "UN" // Unknown
	VR_UR = "UR" // Universal Resource
	VR_US = "US" // Unsigned Short
	VR_UT = "UT" // Unlimited Text
	VR_UV = "UV" // Unsigned Very Long
)

// Well-known tags.
var (
	// File meta (group 0002)
	TagMediaStorageSOPClassUID    = Tag{0x0002, 0x0002}
	TagMediaStorageSOPInstanceUID = Tag{0x0002, 0x0003}
	TagTransferSyntaxUID          = Tag{0x0002, 0x0010}
	TagImplementationClassUID     = Tag{0x0002, 0x0012}

	// Patient
	TagPatientName       = Tag{0x0010, 0x0010}
	TagPatientID         = Tag{0x0010, 0x0020}
	TagIssuerOfPatientID = Tag{0x0010, 0x0021}
	TagPatientBirthDate  = Tag{0x0010, 0x0030}
	TagPatientSex        = Tag{0x0010, 0x0040}
	TagPatientAge        = Tag{0x0010, 0x1010}
	TagPatientWeight     = Tag{0x0010, 0x1030}
	TagPatientAddress    = Tag{0x0010, 0x1040}
	TagPatientTelephone  = Tag{0x0010, 0x2154}
	TagInsurancePlanSeq  = Tag{0x0010, 0x0050}

	// Study
	TagStudyInstanceUID        = Tag{0x0020, 0x000D}
	TagStudyDate               = Tag{0x0008, 0x0020}
	TagStudyTime               = Tag{0x0008, 0x0030}
	TagStudyDescription        = Tag{0x0008, 0x1030}
	TagStudyID                 = Tag{0x0020, 0x0010}
	TagAccessionNumber         = Tag{0x0008, 0x0050}
	TagReferringPhysicianName  = Tag{0x0008, 0x0090}
	TagPerformingPhysicianName = Tag{0x0008, 0x1050}
	TagInstitutionName         = Tag{0x0008, 0x0080}
	TagInstitutionAddress      = Tag{0x0008, 0x0081}
	TagModalitiesInStudy       = Tag{0x0008, 0x0061}

	// Series
	TagSeriesInstanceUID = Tag{0x0020, 0x000E}
	TagSeriesNumber      = Tag{0x0020, 0x0011}
	TagModality          = Tag{0x0008, 0x0060}
	TagSeriesDescription = Tag{0x0008, 0x103E}
	TagAcquisitionDate   = Tag{0x0008, 0x0022}
	TagAcquisitionTime   = Tag{0x0008, 0x0032}
	TagAcquisitionNumber = Tag{0x0020, 0x0012}
	TagProtocolName      = Tag{0x0018, 0x1030}

	// Image / instance
	TagSOPInstanceUID       = Tag{0x0008, 0x0018}
	TagSOPClassUID          = Tag{0x0008, 0x0016}
	TagImageType            = Tag{0x0008, 0x0008}
	TagInstanceCreationDate = Tag{0x0008, 0x0012}
	TagInstanceCreationTime = Tag{0x0008, 0x0013}
	TagInstanceNumber       = Tag{0x0020, 0x0013}
	TagQueryRetrieveLevel   = Tag{0x0008, 0x0052}

	// Transfer syntax aliases carried inside the dataset
	TagReferencedTransferSyntaxUID    = Tag{0x0004, 0x1512}
	TagMACCalculationTransferSyntax   = Tag{0x0400, 0x0010}
	TagEncryptedContentTransferSyntax = Tag{0x0400, 0x0500}

	// Geometry
	TagPixelSpacing              = Tag{0x0028, 0x0030}
	TagRows                      = Tag{0x0028, 0x0010}
	TagColumns                   = Tag{0x0028, 0x0011}
	TagNumberOfFrames            = Tag{0x0028, 0x0008}
	TagSliceThickness            = Tag{0x0018, 0x0050}
	TagPhotometricInterpretation = Tag{0x0028, 0x0004}
	TagSamplesPerPixel           = Tag{0x0028, 0x0002}

	// Ultrasound region calibration
	TagSequenceOfUltrasoundRegions = Tag{0x0018, 0x6011}
	TagRegionSpatialFormat         = Tag{0x0018, 0x601A}
	TagPhysicalDeltaX              = Tag{0x0018, 0x602C}
	TagPhysicalDeltaY              = Tag{0x0018, 0x602E}

	// Device
	TagManufacturer          = Tag{0x0008, 0x0070}
	TagManufacturerModelName = Tag{0x0008, 0x1090}
	TagDeviceSerialNumber    = Tag{0x0018, 0x1000}

	// Protocol
	TagContrastBolusAgent = Tag{0x0018, 0x0010}

	// Pixel data
	TagBitsAllocated       = Tag{0x0028, 0x0100}
	TagBitsStored          = Tag{0x0028, 0x0101}
	TagHighBit             = Tag{0x0028, 0x0102}
	TagPixelRepresentation = Tag{0x0028, 0x0103}
	TagPixelData           = Tag{0x7FE0, 0x0010}

	// SR references
	TagCurrentRequestedProcedureEvidence = Tag{0x0040, 0xA375}
	TagReferencedSeriesSequence          = Tag{0x0008, 0x1115}
	TagReferencedSOPSequence             = Tag{0x0008, 0x1199}
	TagReferencedSOPInstanceUID          = Tag{0x0008, 0x1155}
)

// tagDictionary maps well-known tags to their VR and keyword. Used by the
// implicit VR parser, the VR resolver, and the keyword access path.
var tagDictionary = map[Tag]struct {
	VR      string
	Keyword string
}{
	{0x0002, 0x0002}: {VR_UI, "MediaStorageSOPClassUID"},
	{0x0002, 0x0003}: {VR_UI, "MediaStorageSOPInstanceUID"},
	{0x0002, 0x0010}: {VR_UI, "TransferSyntaxUID"},
	{0x0002, 0x0012}: {VR_UI, "ImplementationClassUID"},

	{0x0008, 0x0005}: {VR_CS, "SpecificCharacterSet"},
	{0x0008, 0x0008}: {VR_CS, "ImageType"},
	{0x0008, 0x0012}: {VR_DA, "InstanceCreationDate"},
	{0x0008, 0x0013}: {VR_TM, "InstanceCreationTime"},
	{0x0008, 0x0016}: {VR_UI, "SOPClassUID"},
	{0x0008, 0x0018}: {VR_UI, "SOPInstanceUID"},
	{0x0008, 0x0020}: {VR_DA, "StudyDate"},
	{0x0008, 0x0022}: {VR_DA, "AcquisitionDate"},
	{0x0008, 0x0030}: {VR_TM, "StudyTime"},
	{0x0008, 0x0032}: {VR_TM, "AcquisitionTime"},
	{0x0008, 0x0050}: {VR_SH, "AccessionNumber"},
	{0x0008, 0x0052}: {VR_CS, "QueryRetrieveLevel"},
	{0x0008, 0x0054}: {VR_AE, "RetrieveAETitle"},
	{0x0008, 0x0060}: {VR_CS, "Modality"},
	{0x0008, 0x0061}: {VR_CS, "ModalitiesInStudy"},
	{0x0008, 0x0070}: {VR_LO, "Manufacturer"},
	{0x0008, 0x0080}: {VR_LO, "InstitutionName"},
	{0x0008, 0x0081}: {VR_ST, "InstitutionAddress"},
	{0x0008, 0x0090}: {VR_PN, "ReferringPhysicianName"},
	{0x0008, 0x1030}: {VR_LO, "StudyDescription"},
	{0x0008, 0x103E}: {VR_LO, "SeriesDescription"},
	{0x0008, 0x1040}: {VR_LO, "InstitutionalDepartmentName"},
	{0x0008, 0x1050}: {VR_PN, "PerformingPhysicianName"},
	{0x0008, 0x1090}: {VR_LO, "ManufacturerModelName"},
	{0x0008, 0x1115}: {VR_SQ, "ReferencedSeriesSequence"},
	{0x0008, 0x1155}: {VR_UI, "ReferencedSOPInstanceUID"},
	{0x0008, 0x1199}: {VR_SQ, "ReferencedSOPSequence"},

	{0x0010, 0x0010}: {VR_PN, "PatientName"},
	{0x0010, 0x0020}: {VR_LO, "PatientID"},
	{0x0010, 0x0021}: {VR_LO, "IssuerOfPatientID"},
	{0x0010, 0x0030}: {VR_DA, "PatientBirthDate"},
	{0x0010, 0x0040}: {VR_CS, "PatientSex"},
	{0x0010, 0x0050}: {VR_SQ, "PatientInsurancePlanCodeSequence"},
	{0x0010, 0x1010}: {VR_AS, "PatientAge"},
	{0x0010, 0x1030}: {VR_DS, "PatientWeight"},
	{0x0010, 0x1040}: {VR_LO, "PatientAddress"},
	{0x0010, 0x2154}: {VR_SH, "PatientTelephoneNumbers"},

	{0x0018, 0x0010}: {VR_LO, "ContrastBolusAgent"},
	{0x0018, 0x0050}: {VR_DS, "SliceThickness"},
	{0x0018, 0x1000}: {VR_LO, "DeviceSerialNumber"},
	{0x0018, 0x1030}: {VR_LO, "ProtocolName"},
	{0x0018, 0x6011}: {VR_SQ, "SequenceOfUltrasoundRegions"},
	{0x0018, 0x601A}: {VR_UL, "RegionSpatialFormat"},
	{0x0018, 0x602C}: {VR_FD, "PhysicalDeltaX"},
	{0x0018, 0x602E}: {VR_FD, "PhysicalDeltaY"},

	{0x0020, 0x000D}: {VR_UI, "StudyInstanceUID"},
	{0x0020, 0x000E}: {VR_UI, "SeriesInstanceUID"},
	{0x0020, 0x0010}: {VR_SH, "StudyID"},
	{0x0020, 0x0011}: {VR_IS, "SeriesNumber"},
	{0x0020, 0x0012}: {VR_IS, "AcquisitionNumber"},
	{0x0020, 0x0013}: {VR_IS, "InstanceNumber"},

	{0x0028, 0x0002}: {VR_US, "SamplesPerPixel"},
	{0x0028, 0x0004}: {VR_CS, "PhotometricInterpretation"},
	{0x0028, 0x0008}: {VR_IS, "NumberOfFrames"},
	{0x0028, 0x0010}: {VR_US, "Rows"},
	{0x0028, 0x0011}: {VR_US, "Columns"},
	{0x0028, 0x0030}: {VR_DS, "PixelSpacing"},
	{0x0028, 0x0100}: {VR_US, "BitsAllocated"},
	{0x0028, 0x0101}: {VR_US, "BitsStored"},
	{0x0028, 0x0102}: {VR_US, "HighBit"},
	{0x0028, 0x0103}: {VR_US, "PixelRepresentation"},

	{0x0040, 0xA375}: {VR_SQ, "CurrentRequestedProcedureEvidenceSequence"},

	{0x7FE0, 0x0010}: {VR_OW, "PixelData"},
}

// keywordIndex maps dictionary keywords back to tags.
var keywordIndex = buildKeywordIndex()

func buildKeywordIndex() map[string]Tag {
	index := make(map[string]Tag, len(tagDictionary))
	for tag, entry := range tagDictionary {
		index[entry.Keyword] = tag
	}
	// Aliases used by the attribute extraction path: the height/width
	// of an image surface as the original names them.
	index["Height"] = Tag{0x0028, 0x0010}
	index["Width"] = Tag{0x0028, 0x0011}
	return index
}

// TagForKeyword resolves a dictionary keyword to its tag.
func TagForKeyword(keyword string) (Tag, bool) {
	tag, ok := keywordIndex[keyword]
	return tag, ok
}

// KeywordForTag returns the dictionary keyword for a tag, or "" when the
// tag is not in the dictionary.
func KeywordForTag(tag Tag) string {
	if entry, ok := tagDictionary[tag]; ok {
		return entry.Keyword
	}
	return ""
}

// ResolveVR determines the Value Representation for a tag. Lookup order:
// the static dictionary first, then inference from the runtime value type
// (string→LO, int→IS, float→DS, sequence→SQ). Never fails; unmapped tags
// with unrecognized values resolve to UN.
func ResolveVR(tag Tag, value interface{}) string {
	if entry, ok := tagDictionary[tag]; ok {
		return entry.VR
	}
	switch value.(type) {
	case string, []string:
		return VR_LO
	case int, int32, int64, uint16, uint32:
		return VR_IS
	case float32, float64:
		return VR_DS
	case []*Dataset:
		return VR_SQ
	default:
		return VR_UN
	}
}

// textualVRs convert cleanly to display strings.
var textualVRs = map[string]bool{
	VR_AE: true, VR_AS: true, VR_CS: true, VR_DA: true, VR_DS: true,
	VR_DT: true, VR_IS: true, VR_LO: true, VR_LT: true, VR_PN: true,
	VR_SH: true, VR_ST: true, VR_TM: true, VR_UC: true, VR_UI: true,
	VR_UR: true, VR_UT: true,
}

// binaryVRClasses hold raw bytes that must never be rendered directly.
var binaryVRClasses = map[string]bool{
	VR_OB: true, VR_OD: true, VR_OF: true, VR_OL: true, VR_OV: true,
	VR_OW: true, VR_UN: true,
}

// IsTextualVR reports whether the VR is string-like for display purposes.
func IsTextualVR(vr string) bool {
	return textualVRs[vr]
}

// IsBinaryVR reports whether the VR carries opaque byte payloads.
func IsBinaryVR(vr string) bool {
	return binaryVRClasses[vr]
}
