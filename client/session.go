package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/helioscan/pacsbridge/dicom"
	"github.com/helioscan/pacsbridge/dicomerr"
	"github.com/helioscan/pacsbridge/qr"
)

// Dialer opens associations against one configured remote archive and
// adapts them to the orchestration layer's session interface.
type Dialer struct {
	address string
	config  Config
	logger  *slog.Logger
}

var _ qr.Dialer = (*Dialer)(nil)

// NewDialer creates a dialer for the given remote address.
func NewDialer(address string, config Config) *Dialer {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dialer{address: address, config: config, logger: logger}
}

// OpenSession negotiates an association with the requested presentation
// contexts.
func (d *Dialer) OpenSession(ctx context.Context, config qr.SessionConfig) (qr.Session, error) {
	requested := make([]RequestedContext, 0, len(config.PresentationContexts))
	for _, pc := range config.PresentationContexts {
		requested = append(requested, RequestedContext{
			AbstractSyntax:   pc.AbstractSyntax,
			TransferSyntaxes: pc.TransferSyntaxes,
		})
	}

	var onStore StoreHandler
	if config.OnStore != nil {
		handler := config.OnStore
		onStore = func(fileMeta, dataset *dicom.Dataset) uint16 {
			return handler(fileMeta, dataset)
		}
	}

	assoc, err := Connect(ctx, d.address, d.config, requested, onStore)
	if err != nil {
		return nil, err
	}
	return &session{assoc: assoc, logger: d.logger}, nil
}

// session adapts an Association to the orchestration layer.
type session struct {
	assoc  *Association
	logger *slog.Logger
}

var _ qr.Session = (*session)(nil)

func (s *session) Query(ctx context.Context, template *dicom.Dataset, queryModel string) (<-chan qr.FindResponse, error) {
	responses := make(chan qr.FindResponse)

	go func() {
		defer close(responses)
		err := s.assoc.SendCFind(&CFindRequest{
			SOPClassUID: queryModel,
			Dataset:     template,
		}, func(response *CFindResponse) error {
			if err := ctx.Err(); err != nil {
				s.cancelOperation(response.MessageID, queryModel)
				return err
			}
			responses <- qr.FindResponse{
				Status:     response.Status,
				Identifier: response.Dataset,
			}
			return nil
		})
		if err != nil {
			s.logger.Warn("Discovery stream ended with error", "error", err)
			responses <- qr.FindResponse{Status: dicomerr.StatusProcessingFailure, Err: err}
		}
	}()

	return responses, nil
}

func (s *session) Retrieve(ctx context.Context, template *dicom.Dataset, queryModel string) (<-chan qr.GetResponse, error) {
	responses := make(chan qr.GetResponse)

	go func() {
		defer close(responses)
		err := s.assoc.SendCGet(&CGetRequest{
			SOPClassUID: queryModel,
			Dataset:     template,
		}, func(response *CGetResponse) error {
			if err := ctx.Err(); err != nil {
				s.cancelOperation(response.MessageID, queryModel)
				return err
			}
			responses <- qr.GetResponse{
				Status:   response.Status,
				Counters: counters(response),
			}
			return nil
		})
		if err != nil {
			s.logger.Warn("Retrieval stream ended with error", "error", err)
			responses <- qr.GetResponse{Status: dicomerr.StatusProcessingFailure, Err: err}
		}
	}()

	return responses, nil
}

// cancelOperation asks the peer to stop an in-flight C-FIND or C-GET.
// Best effort: the caller aborts the association either way.
func (s *session) cancelOperation(messageID uint16, sopClassUID string) {
	if err := s.assoc.SendCCancel(messageID, sopClassUID); err != nil {
		s.logger.Warn("C-CANCEL failed", "error", err)
	}
}

func counters(response *CGetResponse) *qr.SubOpCounters {
	if response.NumberOfRemainingSuboperations == nil &&
		response.NumberOfCompletedSuboperations == nil &&
		response.NumberOfFailedSuboperations == nil &&
		response.NumberOfWarningSuboperations == nil {
		return nil
	}
	c := &qr.SubOpCounters{}
	if v := response.NumberOfRemainingSuboperations; v != nil {
		c.Remaining = int(*v)
	}
	if v := response.NumberOfCompletedSuboperations; v != nil {
		c.Completed = int(*v)
	}
	if v := response.NumberOfFailedSuboperations; v != nil {
		c.Failed = int(*v)
	}
	if v := response.NumberOfWarningSuboperations; v != nil {
		c.Warning = int(*v)
	}
	return c
}

func (s *session) Store(ctx context.Context, fileMeta, dataset *dicom.Dataset) (uint16, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	sopClass := dataset.GetString(dicom.TagSOPClassUID)
	sopInstance := dataset.GetString(dicom.TagSOPInstanceUID)
	if fileMeta != nil {
		if sopClass == "" {
			sopClass = fileMeta.GetString(dicom.TagMediaStorageSOPClassUID)
		}
		if sopInstance == "" {
			sopInstance = fileMeta.GetString(dicom.TagMediaStorageSOPInstanceUID)
		}
	}

	response, err := s.assoc.SendCStore(&CStoreRequest{
		SOPClassUID:    sopClass,
		SOPInstanceUID: sopInstance,
		Dataset:        dataset,
	})
	if err != nil {
		return 0, err
	}
	return response.Status, nil
}

func (s *session) Echo(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	response, err := s.assoc.SendCEcho(0)
	if err != nil {
		return err
	}
	if !dicomerr.IsSuccess(response.Status) {
		return dicomerr.NewOperationError("C-ECHO", response.Status, fmt.Sprintf("verification failed with status 0x%04X", response.Status))
	}
	return nil
}

func (s *session) Release() error {
	return s.assoc.Release()
}

func (s *session) Abort() error {
	return s.assoc.Abort()
}
