package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helioscan/pacsbridge/dicom"
	"github.com/helioscan/pacsbridge/dicomerr"
	"github.com/helioscan/pacsbridge/metadata"
	"github.com/helioscan/pacsbridge/qr"
)

// stubSession scripts one association for handler tests.
type stubSession struct {
	config qr.SessionConfig

	findResponses []qr.FindResponse
	getResponses  []qr.GetResponse
	records       [][2]*dicom.Dataset

	echoErr     error
	storeStatus uint16
}

func (s *stubSession) Query(ctx context.Context, template *dicom.Dataset, queryModel string) (<-chan qr.FindResponse, error) {
	ch := make(chan qr.FindResponse, len(s.findResponses))
	for _, r := range s.findResponses {
		ch <- r
	}
	close(ch)
	return ch, nil
}

func (s *stubSession) Retrieve(ctx context.Context, template *dicom.Dataset, queryModel string) (<-chan qr.GetResponse, error) {
	ch := make(chan qr.GetResponse, len(s.getResponses))
	go func() {
		defer close(ch)
		for _, record := range s.records {
			s.config.OnStore(record[0], record[1])
		}
		for _, r := range s.getResponses {
			ch <- r
		}
	}()
	return ch, nil
}

func (s *stubSession) Store(ctx context.Context, fileMeta, dataset *dicom.Dataset) (uint16, error) {
	return s.storeStatus, nil
}

func (s *stubSession) Echo(ctx context.Context) error { return s.echoErr }
func (s *stubSession) Release() error                 { return nil }
func (s *stubSession) Abort() error                   { return nil }

type stubDialer struct {
	sessions []*stubSession
	openErr  error
	opened   int
}

func (d *stubDialer) OpenSession(ctx context.Context, config qr.SessionConfig) (qr.Session, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	session := d.sessions[d.opened%len(d.sessions)]
	session.config = config
	d.opened++
	return session, nil
}

func newTestRouter(dialer qr.Dialer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	orchestrator := qr.NewOrchestrator(dialer, qr.Config{}, nil)
	reconciler := metadata.NewReconciler(metadata.ReconcilerConfig{}, nil)
	handler := NewHandler(orchestrator, reconciler, nil)
	return NewRouter(handler, []string{"*"})
}

func storedDataset(seriesUID, instanceUID string) [2]*dicom.Dataset {
	dataset := dicom.NewDataset()
	dataset.AddElement(dicom.TagStudyInstanceUID, dicom.VR_UI, "1.2.3")
	dataset.AddElement(dicom.TagSeriesInstanceUID, dicom.VR_UI, seriesUID)
	dataset.AddElement(dicom.TagSOPInstanceUID, dicom.VR_UI, instanceUID)
	dataset.AddElement(dicom.TagModality, dicom.VR_CS, "US")

	fileMeta := dicom.NewDataset()
	fileMeta.AddElement(dicom.TagTransferSyntaxUID, dicom.VR_UI, dicom.TransferSyntaxExplicitVRLittleEndian)
	return [2]*dicom.Dataset{fileMeta, dataset}
}

func uploadBody(t *testing.T) []byte {
	t.Helper()

	dataset := dicom.NewDataset()
	dataset.AddElement(dicom.TagStudyInstanceUID, dicom.VR_UI, "1.2.3")
	dataset.AddElement(dicom.TagSeriesInstanceUID, dicom.VR_UI, "1.2.3.1")
	dataset.AddElement(dicom.TagSOPInstanceUID, dicom.VR_UI, "1.2.3.1.1")
	dataset.AddElement(dicom.TagSOPClassUID, dicom.VR_UI, dicom.UltrasoundImageStorage)
	dataset.AddElement(dicom.TagModality, dicom.VR_CS, "US")

	fileMeta := dicom.NewDataset()
	fileMeta.AddElement(dicom.TagMediaStorageSOPClassUID, dicom.VR_UI, dicom.UltrasoundImageStorage)
	fileMeta.AddElement(dicom.TagMediaStorageSOPInstanceUID, dicom.VR_UI, "1.2.3.1.1")
	fileMeta.AddElement(dicom.TagTransferSyntaxUID, dicom.VR_UI, dicom.TransferSyntaxExplicitVRLittleEndian)

	body := make([]byte, 128)
	body = append(body, []byte("DICM")...)
	body = append(body, fileMeta.EncodeDataset()...)
	body = append(body, dataset.EncodeDataset()...)
	return body
}

func TestHealth(t *testing.T) {
	router := newTestRouter(&stubDialer{sessions: []*stubSession{{}}})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestEcho(t *testing.T) {
	t.Run("reachable archive", func(t *testing.T) {
		router := newTestRouter(&stubDialer{sessions: []*stubSession{{}}})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/dicom/echo", nil))

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("association failure maps to 502", func(t *testing.T) {
		router := newTestRouter(&stubDialer{
			openErr: dicomerr.NewAssociationError("pacs:11112", "connect failed", nil),
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/dicom/echo", nil))

		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}

func TestListStudies(t *testing.T) {
	identifier := dicom.NewDataset()
	identifier.AddElement(dicom.TagStudyInstanceUID, dicom.VR_UI, "1.2.3")
	identifier.AddElement(dicom.TagStudyDescription, dicom.VR_LO, "Abdominal")

	session := &stubSession{
		findResponses: []qr.FindResponse{
			{Status: 0xFF00, Identifier: identifier},
			{Status: 0x0000},
		},
	}
	router := newTestRouter(&stubDialer{sessions: []*stubSession{session}})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/dicom/studies?StudyDescription=", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Studies   []map[string]interface{} `json:"studies"`
		Completed bool                     `json:"completed"`
		Failed    int                      `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Completed)
	assert.Zero(t, body.Failed)
	require.Len(t, body.Studies, 1)
	assert.Equal(t, "1.2.3", body.Studies[0]["StudyInstanceUID"])
	assert.Equal(t, "Abdominal", body.Studies[0]["StudyDescription"])
}

func TestGetStudy(t *testing.T) {
	identifier := dicom.NewDataset()
	identifier.AddElement(dicom.TagStudyInstanceUID, dicom.VR_UI, "1.2.3")
	identifier.AddElement(dicom.TagModalitiesInStudy, dicom.VR_CS, "US")

	findSession := &stubSession{
		findResponses: []qr.FindResponse{
			{Status: 0xFF00, Identifier: identifier},
			{Status: 0x0000},
		},
	}
	getSession := &stubSession{
		records: [][2]*dicom.Dataset{
			storedDataset("1.2.3.1", "1.2.3.1.1"),
			storedDataset("1.2.3.1", "1.2.3.1.2"),
		},
		getResponses: []qr.GetResponse{
			{Status: 0x0000, Counters: &qr.SubOpCounters{Completed: 2}},
		},
	}
	router := newTestRouter(&stubDialer{sessions: []*stubSession{findSession, getSession}})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/dicom/studies/1.2.3", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var result qr.RetrievalResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 2, result.Summary.TotalInstances)
	assert.Equal(t, 1, result.Summary.TotalSeries)
	assert.True(t, result.Summary.Completed)
}

func TestGetInstances(t *testing.T) {
	t.Run("requires a filter", func(t *testing.T) {
		router := newTestRouter(&stubDialer{sessions: []*stubSession{{}}})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/dicom/instances", nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("retrieves by series", func(t *testing.T) {
		getSession := &stubSession{
			records: [][2]*dicom.Dataset{storedDataset("1.2.3.1", "1.2.3.1.1")},
			getResponses: []qr.GetResponse{
				{Status: 0x0000, Counters: &qr.SubOpCounters{Completed: 1}},
			},
		}
		router := newTestRouter(&stubDialer{sessions: []*stubSession{getSession}})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/dicom/instances?SeriesInstanceUID=1.2.3.1", nil))

		require.Equal(t, http.StatusOK, w.Code)

		var result qr.RetrievalResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.Equal(t, 1, result.Summary.TotalInstances)
	})
}

func TestUpload(t *testing.T) {
	t.Run("stores a valid file", func(t *testing.T) {
		session := &stubSession{storeStatus: 0x0000}
		router := newTestRouter(&stubDialer{sessions: []*stubSession{session}})

		w := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodPost, "/api/v1/dicom/upload", bytes.NewReader(uploadBody(t)))
		router.ServeHTTP(w, request)

		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Metadata metadata.Canonical `json:"metadata"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "1.2.3", body.Metadata.StudyInstanceUID)
		assert.Equal(t, "US", body.Metadata.Modality)
		assert.Equal(t, "DCM4CHEE", body.Metadata.IssuerOfPatientID)
	})

	t.Run("rejects a non-DICOM body", func(t *testing.T) {
		router := newTestRouter(&stubDialer{sessions: []*stubSession{{}}})

		w := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodPost, "/api/v1/dicom/upload", bytes.NewReader([]byte("not dicom")))
		router.ServeHTTP(w, request)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("validation failures report missing fields", func(t *testing.T) {
		// A parseable file missing its identifying UIDs.
		dataset := dicom.NewDataset()
		dataset.AddElement(dicom.TagPatientName, dicom.VR_PN, "DOE^JOHN")

		fileMeta := dicom.NewDataset()
		fileMeta.AddElement(dicom.TagTransferSyntaxUID, dicom.VR_UI, dicom.TransferSyntaxExplicitVRLittleEndian)

		body := make([]byte, 128)
		body = append(body, []byte("DICM")...)
		body = append(body, fileMeta.EncodeDataset()...)
		body = append(body, dataset.EncodeDataset()...)

		router := newTestRouter(&stubDialer{sessions: []*stubSession{{}}})

		w := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodPost, "/api/v1/dicom/upload", bytes.NewReader(body))
		router.ServeHTTP(w, request)

		require.Equal(t, http.StatusBadRequest, w.Code)

		var response struct {
			MissingFields []string `json:"missingFields"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Contains(t, response.MissingFields, "study_instance_uid")
		assert.Contains(t, response.MissingFields, "modality")
	})

	t.Run("peer refusal maps to 502", func(t *testing.T) {
		session := &stubSession{storeStatus: 0xC000}
		router := newTestRouter(&stubDialer{sessions: []*stubSession{session}})

		w := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodPost, "/api/v1/dicom/upload", bytes.NewReader(uploadBody(t)))
		router.ServeHTTP(w, request)

		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}
