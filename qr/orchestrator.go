package qr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/helioscan/pacsbridge/dicom"
	"github.com/helioscan/pacsbridge/dicomerr"
	"github.com/helioscan/pacsbridge/metadata"
)

// State tracks where a retrieval session is in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateContextsNegotiated
	StateOperationInFlight
	StateDraining
	StateReleased
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateContextsNegotiated:
		return "ContextsNegotiated"
	case StateOperationInFlight:
		return "OperationInFlight"
	case StateDraining:
		return "Draining"
	case StateReleased:
		return "Released"
	case StateAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// storeBufferSize bounds the handoff between the transport's drain loop
// and the record consumer.
const storeBufferSize = 64

var queryTransferSyntaxes = []string{
	dicom.TransferSyntaxImplicitVRLittleEndian,
	dicom.TransferSyntaxExplicitVRLittleEndian,
}

// storageTransferSyntaxes lists what we accept for incoming records:
// the JPEG family first, then the uncompressed baselines.
var storageTransferSyntaxes = []string{
	dicom.TransferSyntaxJPEGBaseline,
	dicom.TransferSyntaxJPEGExtended,
	dicom.TransferSyntaxJPEGLossless,
	dicom.TransferSyntaxImplicitVRLittleEndian,
	dicom.TransferSyntaxExplicitVRLittleEndian,
}

// Config carries the orchestrator's operating parameters.
type Config struct {
	// FindModel and GetModel are the query/retrieve information model
	// UIDs to negotiate. Zero values select the study root models.
	FindModel string
	GetModel  string
	// Reconciler configures the metadata defaults applied to records
	// received during retrieval.
	Reconciler metadata.ReconcilerConfig
}

// Orchestrator drives discovery and retrieval workflows over sessions
// opened through its dialer. Stateless across operations; each operation
// owns a private session and accumulator, so one orchestrator instance
// serves concurrent requests.
type Orchestrator struct {
	dialer     Dialer
	findModel  string
	getModel   string
	reconciler *metadata.Reconciler
	logger     *slog.Logger
}

// NewOrchestrator creates an orchestrator over the given dialer.
func NewOrchestrator(dialer Dialer, config Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if config.FindModel == "" {
		config.FindModel = dicom.StudyRootQueryRetrieveInformationModelFind
	}
	if config.GetModel == "" {
		config.GetModel = dicom.StudyRootQueryRetrieveInformationModelGet
	}
	return &Orchestrator{
		dialer:     dialer,
		findModel:  config.FindModel,
		getModel:   config.GetModel,
		reconciler: metadata.NewReconciler(config.Reconciler, logger),
		logger:     logger,
	}
}

// Summary reports the outcome of one retrieval.
type Summary struct {
	TotalInstances    int  `json:"totalInstances"`
	TotalSeries       int  `json:"totalSeries"`
	Completed         bool `json:"completed"`
	FailedOperations  int  `json:"failedOperations"`
	WarningOperations int  `json:"warningOperations"`
}

// RetrievalResult pairs the summary with the grouped instance data.
type RetrievalResult struct {
	Summary Summary        `json:"summary"`
	Series  []*SeriesGroup `json:"series"`
}

// Verify opens a session with only the verification context and echoes
// the peer.
func (o *Orchestrator) Verify(ctx context.Context) error {
	session, err := o.dialer.OpenSession(ctx, SessionConfig{
		PresentationContexts: []PresentationContext{
			{AbstractSyntax: dicom.VerificationSOPClass, TransferSyntaxes: queryTransferSyntaxes},
		},
	})
	if err != nil {
		return err
	}

	if err := session.Echo(ctx); err != nil {
		session.Abort()
		return err
	}
	return session.Release()
}

// Find runs a discovery operation: builds the query template from the
// filters, opens a session negotiating only the find model, drains the
// response stream, and releases. Any in-flight failure aborts the
// session before the error surfaces.
func (o *Orchestrator) Find(ctx context.Context, filters map[string]string) (*FindOutcome, error) {
	template := BuildQuery(filters, o.logger)
	o.logger.Info("Starting discovery",
		"level", template.Level,
		"filters", len(filters))

	session, err := o.dialer.OpenSession(ctx, SessionConfig{
		PresentationContexts: []PresentationContext{
			{AbstractSyntax: o.findModel, TransferSyntaxes: queryTransferSyntaxes},
		},
	})
	if err != nil {
		return nil, err
	}

	responses, err := session.Query(ctx, template.Dataset, o.findModel)
	if err != nil {
		session.Abort()
		return nil, err
	}

	outcome := AggregateFind(responses, o.logger)
	if outcome.StreamErr != nil {
		session.Abort()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("discovery canceled: %w", dicomerr.ErrOperationCanceled)
		}
		return nil, dicomerr.NewOperationError("C-FIND", dicomerr.StatusProcessingFailure,
			fmt.Sprintf("response stream failed: %v", outcome.StreamErr))
	}
	if err := session.Release(); err != nil {
		o.logger.Warn("Release after discovery failed", "error", err)
	}

	o.logger.Info("Discovery finished",
		"results", len(outcome.Results),
		"completed", outcome.Completed,
		"failed", outcome.Failed)
	return outcome, nil
}

// Store uploads one record over a session negotiating the record's own
// SOP class. The record's current transfer syntax, when known, is
// offered first.
func (o *Orchestrator) Store(ctx context.Context, fileMeta, dataset *dicom.Dataset) error {
	sopClass := dataset.GetString(dicom.TagSOPClassUID)
	if sopClass == "" && fileMeta != nil {
		sopClass = fileMeta.GetString(dicom.TagMediaStorageSOPClassUID)
	}
	if sopClass == "" {
		return dicomerr.NewOperationError("C-STORE", 0, "record carries no SOP class UID")
	}

	transferSyntaxes := storageTransferSyntaxes
	if fileMeta != nil {
		if current := fileMeta.GetString(dicom.TagTransferSyntaxUID); current != "" {
			transferSyntaxes = dedupe(append([]string{current}, storageTransferSyntaxes...))
		}
	}

	session, err := o.dialer.OpenSession(ctx, SessionConfig{
		PresentationContexts: []PresentationContext{
			{AbstractSyntax: sopClass, TransferSyntaxes: transferSyntaxes},
		},
	})
	if err != nil {
		return err
	}

	status, err := session.Store(ctx, fileMeta, dataset)
	if err != nil {
		session.Abort()
		return err
	}
	if !dicomerr.IsSuccess(status) {
		session.Abort()
		return dicomerr.NewOperationError("C-STORE", status, "peer refused the record")
	}
	return session.Release()
}

// RetrieveStudy runs the two-phase workflow: discover the study to learn
// its modality set, then retrieve with the storage contexts that set
// implies. The filters must identify a study.
func (o *Orchestrator) RetrieveStudy(ctx context.Context, filters map[string]string) (*RetrievalResult, error) {
	discovery := make(map[string]string, len(filters)+1)
	for k, v := range filters {
		discovery[k] = v
	}
	// Ask discovery to return the study's modality list.
	if _, ok := discovery["ModalitiesInStudy"]; !ok {
		discovery["ModalitiesInStudy"] = ""
	}

	found, err := o.Find(ctx, discovery)
	if err != nil {
		return nil, err
	}
	if len(found.Results) == 0 {
		return nil, dicomerr.NewOperationError("C-FIND", 0, "no matching study found")
	}

	contexts := storageContextsFor(modalityTokens(found.Results))
	return o.retrieve(ctx, filters, contexts)
}

// Retrieve runs a single-phase retrieval with the baseline storage
// contexts, for callers that already know exactly which instances they
// want.
func (o *Orchestrator) Retrieve(ctx context.Context, filters map[string]string) (*RetrievalResult, error) {
	return o.retrieve(ctx, filters, storageContextsFor(nil))
}

// retrieve opens a retrieval session, drains it with a store handler
// feeding the accumulator, and groups the result. Every failure path
// aborts the session; release happens only after a full drain.
func (o *Orchestrator) retrieve(ctx context.Context, filters map[string]string, storageContexts []string) (*RetrievalResult, error) {
	operation := newRetrievalSession(o.reconciler, o.logger)
	template := BuildQuery(filters, o.logger)

	contexts := make([]PresentationContext, 0, len(storageContexts)+1)
	contexts = append(contexts, PresentationContext{
		AbstractSyntax:   o.getModel,
		TransferSyntaxes: queryTransferSyntaxes,
	})
	for _, sopClass := range storageContexts {
		contexts = append(contexts, PresentationContext{
			AbstractSyntax:   sopClass,
			TransferSyntaxes: storageTransferSyntaxes,
		})
	}
	operation.transition(StateContextsNegotiated)
	o.logger.Info("Starting retrieval",
		"session", operation.id,
		"level", template.Level,
		"storageContexts", len(storageContexts))

	session, err := o.dialer.OpenSession(ctx, SessionConfig{
		PresentationContexts: contexts,
		OnStore:              operation.handleStore,
	})
	if err != nil {
		operation.transition(StateAborted)
		return nil, err
	}

	responses, err := session.Retrieve(ctx, template.Dataset, o.getModel)
	if err != nil {
		operation.transition(StateAborted)
		session.Abort()
		return nil, err
	}
	operation.transition(StateOperationInFlight)

	consumed := operation.consume()
	operation.transition(StateDraining)
	outcome := AggregateRetrieve(responses, o.logger)
	operation.closeIntake()
	<-consumed

	if outcome.StreamErr != nil || ctx.Err() != nil {
		operation.transition(StateAborted)
		session.Abort()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("retrieval canceled: %w", dicomerr.ErrOperationCanceled)
		}
		return nil, dicomerr.NewOperationError("C-GET", dicomerr.StatusProcessingFailure,
			fmt.Sprintf("response stream failed: %v", outcome.StreamErr))
	}

	if err := session.Release(); err != nil {
		operation.transition(StateAborted)
		session.Abort()
		return nil, err
	}
	operation.transition(StateReleased)

	series := GroupBySeries(operation.instances())
	result := &RetrievalResult{
		Summary: Summary{
			TotalInstances:    len(operation.instances()),
			TotalSeries:       len(series),
			Completed:         outcome.Completed,
			FailedOperations:  outcome.Failed + operation.extractionFailures(),
			WarningOperations: outcome.Warning,
		},
		Series: series,
	}
	o.logger.Info("Retrieval finished",
		"session", operation.id,
		"instances", result.Summary.TotalInstances,
		"series", result.Summary.TotalSeries,
		"completed", result.Summary.Completed,
		"failed", result.Summary.FailedOperations)
	return result, nil
}

// retrievalSession owns the transient state of one retrieval: the state
// machine position, the record intake channel, and the accumulator. It
// is never shared across operations.
type retrievalSession struct {
	id         string
	state      State
	reconciler *metadata.Reconciler
	logger     *slog.Logger

	intake chan *storedRecord

	mu       sync.Mutex
	records  []*Instance
	failures int
}

type storedRecord struct {
	fileMeta *dicom.Dataset
	dataset  *dicom.Dataset
}

func newRetrievalSession(reconciler *metadata.Reconciler, logger *slog.Logger) *retrievalSession {
	return &retrievalSession{
		id:         uuid.NewString(),
		state:      StateIdle,
		reconciler: reconciler,
		logger:     logger,
		intake:     make(chan *storedRecord, storeBufferSize),
	}
}

func (s *retrievalSession) transition(to State) {
	s.logger.Debug("Retrieval state change",
		"session", s.id,
		"from", s.state.String(),
		"to", to.String())
	s.state = to
}

// handleStore runs inside the transport's drain loop. It only hands the
// record off to the intake channel; extraction happens on the consumer
// side so the transport loop is never blocked on processing.
func (s *retrievalSession) handleStore(fileMeta, dataset *dicom.Dataset) uint16 {
	s.intake <- &storedRecord{fileMeta: fileMeta, dataset: dataset}
	return 0x0000
}

// consume starts the intake consumer and returns a channel closed when
// the intake has been fully processed.
func (s *retrievalSession) consume() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for record := range s.intake {
			s.addRecord(record)
		}
	}()
	return done
}

func (s *retrievalSession) closeIntake() {
	close(s.intake)
}

func (s *retrievalSession) addRecord(record *storedRecord) {
	extractor := metadata.NewExtractor(record.fileMeta, record.dataset, s.logger)
	canonical, err := s.reconciler.Reconcile(extractor)
	if err != nil {
		s.mu.Lock()
		s.failures++
		s.mu.Unlock()
		s.logger.Warn("Received record failed reconciliation",
			"session", s.id,
			"error", err)
		return
	}

	instance := &Instance{
		SeriesInstanceUID: canonical.SeriesInstanceUID,
		SeriesNumber:      record.dataset.GetString(dicom.TagSeriesNumber),
		SeriesDescription: record.dataset.GetString(dicom.TagSeriesDescription),
		Modality:          canonical.Modality,
		Metadata:          canonical,
	}

	s.mu.Lock()
	s.records = append(s.records, instance)
	s.mu.Unlock()
}

func (s *retrievalSession) instances() []*Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records
}

func (s *retrievalSession) extractionFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

// modalityTokens collects the modality tokens reported by discovery
// results. ModalitiesInStudy may arrive as a single backslash-delimited
// string or as an already-joined display value; both are split here.
func modalityTokens(results []map[string]interface{}) []string {
	var tokens []string
	for _, result := range results {
		for _, key := range []string{"ModalitiesInStudy", "Modality"} {
			raw, ok := result[key].(string)
			if !ok || raw == "" {
				continue
			}
			for _, token := range strings.FieldsFunc(raw, func(r rune) bool {
				return r == '\\' || r == ';'
			}) {
				if t := strings.TrimSpace(token); t != "" {
					tokens = append(tokens, t)
				}
			}
		}
	}
	return tokens
}

// storageContextsFor unions the baseline storage classes with the ones
// the discovered modalities imply, de-duplicated in stable order.
// Unrecognized modality tokens contribute nothing.
func storageContextsFor(modalities []string) []string {
	classes := make([]string, 0, len(dicom.BaselineStorageClasses))
	classes = append(classes, dicom.BaselineStorageClasses...)
	for _, modality := range modalities {
		classes = append(classes, dicom.StorageClassesForModality[modality]...)
	}
	return dedupe(classes)
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		result = append(result, v)
	}
	return result
}
