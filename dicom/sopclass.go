package dicom

// DICOM Application Context UID.
const ApplicationContextUID = "1.2.840.10008.3.1.1.1"

// Verification service.
const VerificationSOPClass = "1.2.840.10008.1.1"

// Query/Retrieve information models.
const (
	StudyRootQueryRetrieveInformationModelFind = "1.2.840.10008.5.1.4.1.2.2.1"
	StudyRootQueryRetrieveInformationModelGet  = "1.2.840.10008.5.1.4.1.2.2.3"

	PatientRootQueryRetrieveInformationModelFind = "1.2.840.10008.5.1.4.1.2.1.1"
	PatientRootQueryRetrieveInformationModelGet  = "1.2.840.10008.5.1.4.1.2.1.3"
)

// Storage SOP classes this bridge negotiates.
const (
	ComputedRadiographyImageStorage  = "1.2.840.10008.5.1.4.1.1.1"
	CTImageStorage                   = "1.2.840.10008.5.1.4.1.1.2"
	EnhancedCTImageStorage           = "1.2.840.10008.5.1.4.1.1.2.1"
	UltrasoundMultiFrameImageStorage = "1.2.840.10008.5.1.4.1.1.3.1"
	MRImageStorage                   = "1.2.840.10008.5.1.4.1.1.4"
	EnhancedMRImageStorage           = "1.2.840.10008.5.1.4.1.1.4.1"
	UltrasoundImageStorage           = "1.2.840.10008.5.1.4.1.1.6.1"
	SecondaryCaptureImageStorage     = "1.2.840.10008.5.1.4.1.1.7"
	XRayAngiographicImageStorage     = "1.2.840.10008.5.1.4.1.1.12.1"
	NuclearMedicineImageStorage      = "1.2.840.10008.5.1.4.1.1.20"
	DigitalXRayImageStorage          = "1.2.840.10008.5.1.4.1.1.1.1"
	PETImageStorage                  = "1.2.840.10008.5.1.4.1.1.128"
	BasicTextSRStorage               = "1.2.840.10008.5.1.4.1.1.88.11"
	EnhancedSRStorage                = "1.2.840.10008.5.1.4.1.1.88.22"
	ComprehensiveSRStorage           = "1.2.840.10008.5.1.4.1.1.88.33"
	EncapsulatedPDFStorage           = "1.2.840.10008.5.1.4.1.1.104.1"
)

// StorageClassesForModality maps a modality token (from ModalitiesInStudy)
// to the storage SOP classes worth negotiating for it. Tokens outside this
// map contribute nothing to the negotiated set.
var StorageClassesForModality = map[string][]string{
	"CT":  {CTImageStorage, EnhancedCTImageStorage},
	"MR":  {MRImageStorage, EnhancedMRImageStorage},
	"US":  {UltrasoundImageStorage, UltrasoundMultiFrameImageStorage},
	"CR":  {ComputedRadiographyImageStorage},
	"DX":  {DigitalXRayImageStorage},
	"XA":  {XRayAngiographicImageStorage},
	"NM":  {NuclearMedicineImageStorage},
	"PT":  {PETImageStorage},
	"SR":  {BasicTextSRStorage, EnhancedSRStorage, ComprehensiveSRStorage},
	"OT":  {SecondaryCaptureImageStorage},
	"DOC": {EncapsulatedPDFStorage},
}

// BaselineStorageClasses are negotiated on every retrieval regardless of
// what discovery reports; archives routinely hold secondary captures and
// ultrasound next to the primary modality.
var BaselineStorageClasses = []string{
	CTImageStorage,
	MRImageStorage,
	UltrasoundImageStorage,
	SecondaryCaptureImageStorage,
}

// sopClassNames provides human-readable names for diagnostics.
var sopClassNames = map[string]string{
	VerificationSOPClass:                         "Verification SOP Class",
	StudyRootQueryRetrieveInformationModelFind:   "Study Root Query/Retrieve - FIND",
	StudyRootQueryRetrieveInformationModelGet:    "Study Root Query/Retrieve - GET",
	PatientRootQueryRetrieveInformationModelFind: "Patient Root Query/Retrieve - FIND",
	PatientRootQueryRetrieveInformationModelGet:  "Patient Root Query/Retrieve - GET",
	ComputedRadiographyImageStorage:              "Computed Radiography Image Storage",
	CTImageStorage:                               "CT Image Storage",
	EnhancedCTImageStorage:                       "Enhanced CT Image Storage",
	UltrasoundMultiFrameImageStorage:             "Ultrasound Multi-frame Image Storage",
	MRImageStorage:                               "MR Image Storage",
	EnhancedMRImageStorage:                       "Enhanced MR Image Storage",
	UltrasoundImageStorage:                       "Ultrasound Image Storage",
	SecondaryCaptureImageStorage:                 "Secondary Capture Image Storage",
	XRayAngiographicImageStorage:                 "X-Ray Angiographic Image Storage",
	NuclearMedicineImageStorage:                  "Nuclear Medicine Image Storage",
	DigitalXRayImageStorage:                      "Digital X-Ray Image Storage",
	PETImageStorage:                              "PET Image Storage",
	BasicTextSRStorage:                           "Basic Text SR Storage",
	EnhancedSRStorage:                            "Enhanced SR Storage",
	ComprehensiveSRStorage:                       "Comprehensive SR Storage",
	EncapsulatedPDFStorage:                       "Encapsulated PDF Storage",
}

// SOPClassName returns a readable name for a SOP Class UID, or "Unknown".
func SOPClassName(uid string) string {
	if name, ok := sopClassNames[uid]; ok {
		return name
	}
	return "Unknown"
}
