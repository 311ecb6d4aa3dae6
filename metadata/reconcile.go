package metadata

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/helioscan/pacsbridge/dicomerr"
)

// Canonical is the reconciled metadata record for one instance: a single
// flat view assembled from the extraction paths with ordered fallback.
type Canonical struct {
	StudyInstanceUID  string        `json:"study_instance_uid"`
	SeriesInstanceUID string        `json:"series_instance_uid"`
	InstanceUID       string        `json:"instance_uid"`
	Description       string        `json:"description"`
	Frames            *int          `json:"frames"`
	Modality          string        `json:"modality"`
	PixelSpacing      []string      `json:"pixel_spacing"`
	UltrasoundRegion  *int          `json:"ultrasound_region"`
	TransferSyntax    string        `json:"transfer_syntax"`
	SOPClassUID       string        `json:"sop_class_uid"`
	SRReferences      []SRReference `json:"sr_referenced_instances"`
	IssuerOfPatientID string        `json:"issuer_of_patient_id"`
	PatientID         string        `json:"patient_id"`
}

// criticalFields must all resolve or the extraction as a whole fails.
var criticalFields = []string{
	"study_instance_uid",
	"series_instance_uid",
	"instance_uid",
	"modality",
	"transfer_syntax",
}

// ReconcilerConfig carries the archive-specific defaults applied when a
// field is absent from every extraction path.
type ReconcilerConfig struct {
	// IssuerOfPatientIDDefault substitutes for a missing issuer.
	IssuerOfPatientIDDefault string
	// PatientIDDefault substitutes for a missing patient ID.
	PatientIDDefault string
}

// DefaultReconcilerConfig matches the DCM4CHEE archive convention the
// bridge was built against.
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		IssuerOfPatientIDDefault: "DCM4CHEE",
		PatientIDDefault:         "1",
	}
}

// Reconciler folds an extraction into a Canonical record.
type Reconciler struct {
	config ReconcilerConfig
	logger *slog.Logger
}

// NewReconciler creates a reconciler. Zero-valued config fields fall back
// to DefaultReconcilerConfig.
func NewReconciler(config ReconcilerConfig, logger *slog.Logger) *Reconciler {
	defaults := DefaultReconcilerConfig()
	if config.IssuerOfPatientIDDefault == "" {
		config.IssuerOfPatientIDDefault = defaults.IssuerOfPatientIDDefault
	}
	if config.PatientIDDefault == "" {
		config.PatientIDDefault = defaults.PatientIDDefault
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{config: config, logger: logger}
}

// Reconcile runs both extraction paths over the extractor's dataset and
// assembles the canonical record. For every field the tag path is
// consulted first and the attribute path second; empty means missing.
// Returns a *dicomerr.ValidationError when any critical field resolves
// from neither path.
func (r *Reconciler) Reconcile(x *Extractor) (*Canonical, error) {
	extraction := x.Full()
	return r.reconcile(x, extraction)
}

func (r *Reconciler) reconcile(x *Extractor, extraction *Extraction) (*Canonical, error) {
	byTag := extraction.ByTag
	byAttr := extraction.ByAttribute

	modality := firstNonEmpty(
		byTag["series_info"]["Modality"],
		byAttr["series_info"]["Modality"],
	)

	record := &Canonical{
		StudyInstanceUID: firstNonEmpty(
			byTag["study_info"]["StudyInstanceUID"],
			byAttr["study_info"]["StudyInstanceUID"],
		),
		SeriesInstanceUID: firstNonEmpty(
			byTag["series_info"]["SeriesInstanceUID"],
			byAttr["series_info"]["SeriesInstanceUID"],
		),
		InstanceUID: firstNonEmpty(
			byTag["image_info"]["SOPInstanceUID"],
			byAttr["instance_info"]["SOPInstanceUID"],
		),
		Description: firstNonEmpty(
			byTag["study_info"]["StudyDescription"],
			byAttr["series_info"]["SeriesDescription"],
		),
		Modality:         modality,
		UltrasoundRegion: extraction.UltrasoundRegion,
		TransferSyntax: firstNonEmpty(
			extraction.FileMeta["TransferSyntaxUID"],
			byTag["transfer_syntax"]["TransferSyntaxUID"],
		),
		SOPClassUID: firstNonEmpty(
			byTag["image_info"]["SOPClassUID"],
			extraction.FileMeta["MediaStorageSOPClassUID"],
		),
		IssuerOfPatientID: firstNonEmpty(
			byTag["patient_info"]["IssuerOfPatientID"],
			r.config.IssuerOfPatientIDDefault,
		),
		PatientID: firstNonEmpty(
			byTag["patient_info"]["PatientID"],
			r.config.PatientIDDefault,
		),
	}

	record.Frames = reconcileFrames(extraction)
	record.PixelSpacing = reconcilePixelSpacing(extraction)

	// SR references are meaningful only for structured reports; on any
	// other modality the field stays null rather than empty.
	if modality == "SR" {
		record.SRReferences = x.SRReferences()
	}

	var missing []string
	for _, field := range criticalFields {
		if record.fieldValue(field) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		r.logger.Error("Metadata reconciliation failed",
			"missingFields", strings.Join(missing, ", "))
		return nil, dicomerr.NewValidationError(missing)
	}

	return record, nil
}

func (c *Canonical) fieldValue(field string) string {
	switch field {
	case "study_instance_uid":
		return c.StudyInstanceUID
	case "series_instance_uid":
		return c.SeriesInstanceUID
	case "instance_uid":
		return c.InstanceUID
	case "modality":
		return c.Modality
	case "transfer_syntax":
		return c.TransferSyntax
	default:
		return ""
	}
}

// reconcileFrames prefers the derived frame count; the attribute path's
// NumberOfFrames string is the fallback.
func reconcileFrames(extraction *Extraction) *int {
	if extraction.Frames != nil {
		return extraction.Frames
	}
	raw := extraction.ByAttribute["geometry"]["NumberOfFrames"]
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	return &n
}

// reconcilePixelSpacing prefers calibrated physical deltas over the
// declared PixelSpacing tag. Either source yields a two-element
// [row, column] spacing; when both are absent the field stays null.
func reconcilePixelSpacing(extraction *Extraction) []string {
	if info := extraction.PixelInfo; info != nil {
		return []string{
			strconv.FormatFloat(info.PhysicalDeltaX, 'f', -1, 64),
			strconv.FormatFloat(info.PhysicalDeltaY, 'f', -1, 64),
		}
	}
	raw := extraction.ByTag["geometry"]["PixelSpacing"]
	if raw == "" {
		return nil
	}
	return strings.Split(raw, multiValueSeparator)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
