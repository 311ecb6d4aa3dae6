package qr

import (
	"log/slog"

	"github.com/helioscan/pacsbridge/dicom"
)

// Query/Retrieve hierarchy levels.
const (
	LevelPatient = "PATIENT"
	LevelStudy   = "STUDY"
	LevelSeries  = "SERIES"
	LevelImage   = "IMAGE"
)

// QueryTemplate is a discovery or retrieval filter: a partially filled
// dataset plus the hierarchy level it targets. Built per request,
// discarded after the operation completes.
type QueryTemplate struct {
	Dataset *dicom.Dataset
	Level   string
}

// BuildQuery constructs a query template from keyword-keyed filters.
// Every supplied filter is copied onto the template, including blank
// values, which act as wildcard matchers; omitting a key excludes the
// field entirely. The level is chosen from which identifying keys are
// present: a series UID forces SERIES, a study UID without a series UID
// forces STUDY, a patient ID alone forces PATIENT, anything else
// defaults to STUDY. Unknown keywords are logged and skipped.
func BuildQuery(filters map[string]string, logger *slog.Logger) *QueryTemplate {
	if logger == nil {
		logger = slog.Default()
	}

	template := dicom.NewDataset()
	for keyword, value := range filters {
		tag, ok := dicom.TagForKeyword(keyword)
		if !ok {
			logger.Warn("Unknown query filter keyword", "keyword", keyword)
			continue
		}
		template.AddElement(tag, dicom.ResolveVR(tag, value), value)
	}

	_, hasSeries := filters["SeriesInstanceUID"]
	_, hasStudy := filters["StudyInstanceUID"]
	_, hasPatient := filters["PatientID"]

	level := LevelStudy
	switch {
	case hasSeries:
		level = LevelSeries
	case hasStudy:
		level = LevelStudy
	case hasPatient:
		level = LevelPatient
	}

	template.AddElement(dicom.TagQueryRetrieveLevel, dicom.VR_CS, level)

	return &QueryTemplate{Dataset: template, Level: level}
}
