package metadata

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/helioscan/pacsbridge/dicom"
)

// Extractor pulls structured metadata out of a parsed dataset. Both
// extraction paths live here: the tag-keyed catalog walk and the
// keyword-keyed attribute walk. Every method is failure-tolerant; a field
// that cannot be read becomes its category default, never an error.
type Extractor struct {
	fileMeta *dicom.Dataset
	dataset  *dicom.Dataset
	logger   *slog.Logger
}

// NewExtractor creates an extractor over a dataset and its file meta
// information. Either dataset may be nil; reads against a nil dataset
// yield defaults.
func NewExtractor(fileMeta, dataset *dicom.Dataset, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{fileMeta: fileMeta, dataset: dataset, logger: logger}
}

// tagCatalog is the fixed extraction catalog: semantic category to field
// name to tag. Every field is extracted on every run; absent tags produce
// empty strings so downstream consumers see a stable shape.
var tagCatalog = map[string]map[string]dicom.Tag{
	"patient_info": {
		"PatientName":       dicom.TagPatientName,
		"PatientID":         dicom.TagPatientID,
		"PatientBirthDate":  dicom.TagPatientBirthDate,
		"PatientSex":        dicom.TagPatientSex,
		"PatientAge":        dicom.TagPatientAge,
		"PatientWeight":     dicom.TagPatientWeight,
		"IssuerOfPatientID": dicom.TagIssuerOfPatientID,
	},
	"study_info": {
		"StudyInstanceUID":        dicom.TagStudyInstanceUID,
		"StudyDate":               dicom.TagStudyDate,
		"StudyTime":               dicom.TagStudyTime,
		"StudyDescription":        dicom.TagStudyDescription,
		"StudyID":                 dicom.TagStudyID,
		"AccessionNumber":         dicom.TagAccessionNumber,
		"ReferringPhysicianName":  dicom.TagReferringPhysicianName,
		"PerformingPhysicianName": dicom.TagPerformingPhysicianName,
		"InstitutionName":         dicom.TagInstitutionName,
		"InstitutionAddress":      dicom.TagInstitutionAddress,
	},
	"series_info": {
		"SeriesInstanceUID":       dicom.TagSeriesInstanceUID,
		"SeriesNumber":            dicom.TagSeriesNumber,
		"Modality":                dicom.TagModality,
		"SeriesDescription":       dicom.TagSeriesDescription,
		"AcquisitionDate":         dicom.TagAcquisitionDate,
		"AcquisitionTime":         dicom.TagAcquisitionTime,
		"AcquisitionNumber":       dicom.TagAcquisitionNumber,
		"AcquisitionProtocolName": dicom.TagProtocolName,
	},
	"image_info": {
		"SOPInstanceUID":       dicom.TagSOPInstanceUID,
		"SOPClassUID":          dicom.TagSOPClassUID,
		"ImageType":            dicom.TagImageType,
		"InstanceCreationDate": dicom.TagInstanceCreationDate,
		"InstanceCreationTime": dicom.TagInstanceCreationTime,
	},
	"transfer_syntax": {
		"TransferSyntaxUID":                 dicom.TagTransferSyntaxUID,
		"ReferencedTransferSyntaxUID":       dicom.TagReferencedTransferSyntaxUID,
		"MACCalculationTransferSyntaxUID":   dicom.TagMACCalculationTransferSyntax,
		"EncryptedContentTransferSyntaxUID": dicom.TagEncryptedContentTransferSyntax,
	},
	"geometry": {
		"PixelSpacing":              dicom.TagPixelSpacing,
		"Height":                    dicom.TagRows,
		"Width":                     dicom.TagColumns,
		"NumberOfFrames":            dicom.TagNumberOfFrames,
		"SliceThickness":            dicom.TagSliceThickness,
		"PhotometricInterpretation": dicom.TagPhotometricInterpretation,
		"PhysicalDeltaX":            dicom.TagPhysicalDeltaX,
		"PhysicalDeltaY":            dicom.TagPhysicalDeltaY,
	},
	"device_info": {
		"Manufacturer":          dicom.TagManufacturer,
		"ManufacturerModelName": dicom.TagManufacturerModelName,
		"DeviceSerialNumber":    dicom.TagDeviceSerialNumber,
	},
	"protocol_info": {
		"ProtocolName":       dicom.TagProtocolName,
		"ContrastBolusAgent": dicom.TagContrastBolusAgent,
	},
	"pixel_data": {
		"BitsAllocated":       dicom.TagBitsAllocated,
		"BitsStored":          dicom.TagBitsStored,
		"HighBit":             dicom.TagHighBit,
		"PixelRepresentation": dicom.TagPixelRepresentation,
	},
}

// attributeCatalog drives the keyword-keyed path. It deliberately covers
// fewer fields than the tag catalog and uses a different category name
// for instance-level data, so the two paths stay independently useful
// during reconciliation.
var attributeCatalog = map[string][]string{
	"patient_info": {
		"PatientName", "PatientID", "PatientBirthDate",
		"PatientSex", "PatientAge", "PatientWeight",
	},
	"study_info": {
		"StudyInstanceUID", "StudyDate", "StudyTime",
		"StudyDescription", "StudyID",
	},
	"series_info": {
		"SeriesInstanceUID", "SeriesNumber",
		"Modality", "SeriesDescription",
	},
	"instance_info": {
		"SOPInstanceUID", "SOPClassUID", "ImageType",
		"InstanceCreationDate", "InstanceCreationTime",
	},
	"geometry": {
		"PixelSpacing", "Height", "Width", "NumberOfFrames",
		"SliceThickness", "PhotometricInterpretation",
		"PhysicalDeltaX", "PhysicalDeltaY",
	},
	"device_info": {
		"Manufacturer", "ManufacturerModelName", "DeviceSerialNumber",
	},
	"pixel_data": {
		"BitsAllocated", "BitsStored", "HighBit", "PixelRepresentation",
	},
}

// fileMetaAttributes are the group 0002 fields surfaced to consumers.
var fileMetaAttributes = []string{
	"MediaStorageSOPClassUID",
	"MediaStorageSOPInstanceUID",
	"TransferSyntaxUID",
	"ImplementationClassUID",
}

// PhysicalPixelInfo carries calibrated per-pixel physical deltas derived
// from an ultrasound region, scaled to the unit the viewer expects.
type PhysicalPixelInfo struct {
	FrameIndex     int     `json:"frame_index,omitempty"`
	PhysicalDeltaX float64 `json:"physical_delta_x"`
	PhysicalDeltaY float64 `json:"physical_delta_y"`
}

// SRReference pairs a referenced instance with the series that holds it.
type SRReference struct {
	SeriesInstanceUID        string `json:"SeriesInstanceUID"`
	ReferencedSOPInstanceUID string `json:"ReferencedSOPInstanceUID"`
}

// Extraction is the combined result of every extraction method, keeping
// the two paths separate so reconciliation can prefer one over the other
// field by field.
type Extraction struct {
	ByTag            map[string]map[string]string `json:"tag_extraction"`
	ByAttribute      map[string]map[string]string `json:"attribute_extraction"`
	FileMeta         map[string]string            `json:"file_metadata"`
	PixelInfo        *PhysicalPixelInfo           `json:"pixel_info,omitempty"`
	Frames           *int                         `json:"frames,omitempty"`
	UltrasoundRegion *int                         `json:"ultrasound_region,omitempty"`
}

// ByTags walks the tag catalog and returns every field as a display
// string. Absent or unreadable fields are empty strings.
func (x *Extractor) ByTags() map[string]map[string]string {
	result := make(map[string]map[string]string, len(tagCatalog))
	for category, fields := range tagCatalog {
		result[category] = make(map[string]string, len(fields))
		for name, tag := range fields {
			result[category][name] = x.tagString(tag)
		}
	}
	return result
}

func (x *Extractor) tagString(tag dicom.Tag) string {
	if x.dataset == nil {
		return ""
	}
	element, ok := x.dataset.GetElement(tag)
	if !ok {
		return ""
	}
	return displayString(element)
}

// ByAttributes walks the keyword catalog, resolving each keyword through
// the dictionary. Fields that resolve to nothing are empty strings.
func (x *Extractor) ByAttributes() map[string]map[string]string {
	result := make(map[string]map[string]string, len(attributeCatalog))
	for category, keywords := range attributeCatalog {
		result[category] = make(map[string]string, len(keywords))
		for _, keyword := range keywords {
			result[category][keyword] = x.attributeString(keyword)
		}
	}
	return result
}

func (x *Extractor) attributeString(keyword string) string {
	if x.dataset == nil {
		return ""
	}
	element, ok := x.dataset.GetByKeyword(keyword)
	if !ok {
		return ""
	}
	return displayString(element)
}

// FileMetaInfo extracts the group 0002 attributes from the file meta
// dataset.
func (x *Extractor) FileMetaInfo() map[string]string {
	result := make(map[string]string, len(fileMetaAttributes))
	for _, keyword := range fileMetaAttributes {
		result[keyword] = ""
		if x.fileMeta == nil {
			continue
		}
		if element, ok := x.fileMeta.GetByKeyword(keyword); ok {
			result[keyword] = displayString(element)
		}
	}
	return result
}

// FrameCount determines the number of frames. An explicit NumberOfFrames
// wins; otherwise the count is derived from the pixel data length and the
// per-frame byte size. A dataset with pixel data but degenerate geometry
// counts as a single frame, as does a dataset with no pixel data at all.
func (x *Extractor) FrameCount() (int, bool) {
	if x.dataset == nil {
		return 0, false
	}

	if x.dataset.Has(dicom.TagNumberOfFrames) {
		if n, ok := x.dataset.GetInt(dicom.TagNumberOfFrames); ok {
			return n, true
		}
		return 0, false
	}

	pixelData, ok := x.dataset.GetBytes(dicom.TagPixelData)
	if !ok {
		return 1, true
	}

	rows, _ := x.dataset.GetInt(dicom.TagRows)
	columns, _ := x.dataset.GetInt(dicom.TagColumns)
	bitsAllocated, hasBits := x.dataset.GetInt(dicom.TagBitsAllocated)
	if !hasBits {
		bitsAllocated = 16
	}

	if rows <= 0 || columns <= 0 || bitsAllocated <= 0 {
		return 1, true
	}

	frameSize := rows * columns * (bitsAllocated / 8)
	if frameSize <= 0 {
		return 1, true
	}

	frames := len(pixelData) / frameSize
	if frames < 1 {
		frames = 1
	}
	return frames, true
}

// PixelInfoFromPhysical reads the first ultrasound region's physical
// deltas. Values are scaled by 10 and rounded to 5 decimal places, the
// calibration convention of the ultrasound viewers this feeds.
func (x *Extractor) PixelInfoFromPhysical() (*PhysicalPixelInfo, bool) {
	return x.PixelInfoByFrameIndex(0)
}

// PixelInfoByFrameIndex reads the physical deltas of the region at the
// given index, for multi-region captures that calibrate per frame.
func (x *Extractor) PixelInfoByFrameIndex(index int) (*PhysicalPixelInfo, bool) {
	if x.dataset == nil {
		return nil, false
	}
	regions, ok := x.dataset.GetSequence(dicom.TagSequenceOfUltrasoundRegions)
	if !ok || index < 0 || index >= len(regions) {
		return nil, false
	}
	region := regions[index]

	deltaX, okX := region.GetFloat(dicom.TagPhysicalDeltaX)
	deltaY, okY := region.GetFloat(dicom.TagPhysicalDeltaY)
	if !okX || !okY {
		return nil, false
	}

	return &PhysicalPixelInfo{
		FrameIndex:     index,
		PhysicalDeltaX: roundTo(deltaX*10, 5),
		PhysicalDeltaY: roundTo(deltaY*10, 5),
	}, true
}

func roundTo(v float64, places int) float64 {
	s := strconv.FormatFloat(v, 'f', places, 64)
	r, _ := strconv.ParseFloat(s, 64)
	return r
}

// UltrasoundRegionFormat reads the spatial format of the first ultrasound
// region.
func (x *Extractor) UltrasoundRegionFormat() (int, bool) {
	if x.dataset == nil {
		return 0, false
	}
	regions, ok := x.dataset.GetSequence(dicom.TagSequenceOfUltrasoundRegions)
	if !ok || len(regions) == 0 {
		return 0, false
	}
	return regions[0].GetInt(dicom.TagRegionSpatialFormat)
}

// SRReferences walks the requested procedure evidence of a structured
// report and returns every referenced instance paired with its series.
// Returns nil when the modality is not SR or the evidence sequence is
// absent or empty.
func (x *Extractor) SRReferences() []SRReference {
	if x.dataset == nil {
		return nil
	}
	if x.dataset.GetString(dicom.TagModality) != "SR" {
		return nil
	}

	evidence, ok := x.dataset.GetSequence(dicom.TagCurrentRequestedProcedureEvidence)
	if !ok {
		x.logger.Debug("SR dataset has no evidence sequence")
		return nil
	}

	var refs []SRReference
	for _, study := range evidence {
		seriesSeq, ok := study.GetSequence(dicom.TagReferencedSeriesSequence)
		if !ok {
			continue
		}
		for _, series := range seriesSeq {
			seriesUID := series.GetString(dicom.TagSeriesInstanceUID)
			sopSeq, ok := series.GetSequence(dicom.TagReferencedSOPSequence)
			if !ok {
				continue
			}
			for _, sop := range sopSeq {
				refs = append(refs, SRReference{
					SeriesInstanceUID:        seriesUID,
					ReferencedSOPInstanceUID: sop.GetString(dicom.TagReferencedSOPInstanceUID),
				})
			}
		}
	}
	if len(refs) == 0 {
		return nil
	}
	return refs
}

// Full runs every extraction method and combines the results.
func (x *Extractor) Full() *Extraction {
	extraction := &Extraction{
		ByTag:       x.ByTags(),
		ByAttribute: x.ByAttributes(),
		FileMeta:    x.FileMetaInfo(),
	}
	if info, ok := x.PixelInfoFromPhysical(); ok {
		extraction.PixelInfo = info
	}
	if frames, ok := x.FrameCount(); ok {
		extraction.Frames = &frames
	}
	if region, ok := x.UltrasoundRegionFormat(); ok {
		extraction.UltrasoundRegion = &region
	}
	return extraction
}

// AllAttributes walks the entire dataset and returns every dictionary
// keyword with its coerced value, plus a FileMetaInformation block and,
// when pixel data is present, a PixelDataInfo summary. Intended for
// diagnostic endpoints that want the whole picture.
func (x *Extractor) AllAttributes() map[string]interface{} {
	result := make(map[string]interface{})
	if x.dataset == nil {
		return result
	}

	for _, tag := range x.dataset.SortedTags() {
		keyword := dicom.KeywordForTag(tag)
		if keyword == "" {
			continue
		}
		result[keyword] = Coerce(x.dataset.Elements[tag], SequenceExpand)
	}

	if x.fileMeta != nil {
		fileMeta := make(map[string]interface{})
		for _, tag := range x.fileMeta.SortedTags() {
			keyword := dicom.KeywordForTag(tag)
			if keyword == "" {
				continue
			}
			fileMeta[keyword] = Coerce(x.fileMeta.Elements[tag], SequenceAsMarker)
		}
		result["FileMetaInformation"] = fileMeta
	}

	if x.dataset.Has(dicom.TagPixelData) {
		result["PixelDataInfo"] = x.pixelDataInfo()
	}

	return result
}

func (x *Extractor) pixelDataInfo() map[string]interface{} {
	info := make(map[string]interface{})

	rows, hasRows := x.dataset.GetInt(dicom.TagRows)
	columns, hasColumns := x.dataset.GetInt(dicom.TagColumns)
	if hasRows && hasColumns {
		info["Dimensions"] = fmt.Sprintf("%dx%d", rows, columns)
		info["Rows"] = rows
		info["Columns"] = columns
	}
	if frames, ok := x.dataset.GetInt(dicom.TagNumberOfFrames); ok {
		info["NumberOfFrames"] = frames
	}
	if x.dataset.Has(dicom.TagPixelSpacing) {
		values := x.dataset.GetStrings(dicom.TagPixelSpacing)
		spacing := make([]float64, 0, len(values))
		for _, v := range values {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				spacing = nil
				break
			}
			spacing = append(spacing, f)
		}
		if spacing != nil {
			info["PixelSpacing"] = spacing
		}
	}
	if bits, ok := x.dataset.GetInt(dicom.TagBitsAllocated); ok {
		info["BitsAllocated"] = bits
	}
	if bits, ok := x.dataset.GetInt(dicom.TagBitsStored); ok {
		info["BitsStored"] = bits
	}
	if photometric := x.dataset.GetString(dicom.TagPhotometricInterpretation); photometric != "" {
		info["PhotometricInterpretation"] = photometric
	}
	if samples, ok := x.dataset.GetInt(dicom.TagSamplesPerPixel); ok {
		info["SamplesPerPixel"] = samples
	}
	return info
}
