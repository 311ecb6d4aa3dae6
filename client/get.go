package client

import (
	"fmt"

	"github.com/helioscan/pacsbridge/dicom"
)

// CGetRequest encapsulates the information required to perform a C-GET
// operation.
type CGetRequest struct {
	SOPClassUID string
	MessageID   uint16
	Priority    uint16
	Dataset     *dicom.Dataset // Query identifying which instances to retrieve
}

// CGetResponse represents a single C-GET response from the SCP.
type CGetResponse struct {
	Status                         uint16
	MessageID                      uint16
	NumberOfRemainingSuboperations *uint16
	NumberOfCompletedSuboperations *uint16
	NumberOfFailedSuboperations    *uint16
	NumberOfWarningSuboperations   *uint16
}

// SendCGet performs a DICOM C-GET operation. The peer delivers matching
// instances as C-STORE sub-operations on this same association; each one
// is parsed and handed to the association's StoreHandler, and the
// handler's status is sent back as the C-STORE response. Status and
// counter updates stream through emit, including the terminal response.
func (a *Association) SendCGet(req *CGetRequest, emit func(*CGetResponse) error) error {
	if req == nil {
		return fmt.Errorf("c-get request cannot be nil")
	}
	if req.Dataset == nil {
		return fmt.Errorf("c-get request requires a dataset")
	}

	sopClass := req.SOPClassUID
	if sopClass == "" {
		sopClass = dicom.StudyRootQueryRetrieveInformationModelGet
	}

	messageID := req.MessageID
	if messageID == 0 {
		messageID = a.NextMessageID()
	}

	pc, err := a.ContextFor(sopClass)
	if err != nil {
		return err
	}

	command := &Message{
		CommandField:        CGetRQ,
		MessageID:           messageID,
		Priority:            req.Priority,
		AffectedSOPClassUID: sopClass,
		CommandDataSetType:  datasetPresent,
	}

	datasetData, err := dicom.EncodeDatasetWithTransferSyntax(req.Dataset, a.transferSyntaxForContext(pc.ID))
	if err != nil {
		return fmt.Errorf("failed to encode C-GET identifier: %w", err)
	}

	if err := a.sendMessage(pc.ID, encodeCommand(command), datasetData); err != nil {
		return fmt.Errorf("failed to send C-GET request: %w", err)
	}

	for {
		msg, data, contextID, err := a.receiveMessage()
		if err != nil {
			return fmt.Errorf("failed to receive C-GET response: %w", err)
		}

		switch msg.CommandField {
		case CStoreRQ:
			if err := a.handleSubOperation(msg, data, contextID); err != nil {
				return err
			}

		case CGetRSP:
			if err := emit(&CGetResponse{
				Status:                         msg.Status,
				MessageID:                      msg.MessageIDBeingRespondedTo,
				NumberOfRemainingSuboperations: msg.NumberOfRemainingSuboperations,
				NumberOfCompletedSuboperations: msg.NumberOfCompletedSuboperations,
				NumberOfFailedSuboperations:    msg.NumberOfFailedSuboperations,
				NumberOfWarningSuboperations:   msg.NumberOfWarningSuboperations,
			}); err != nil {
				return err
			}

			if msg.Status != StatusPending && msg.Status != 0xFF01 {
				return nil
			}

		default:
			return fmt.Errorf("unexpected command during C-GET: 0x%04X", msg.CommandField)
		}
	}
}

// handleSubOperation processes one incoming C-STORE sub-operation: parse
// the dataset with the context's negotiated transfer syntax, invoke the
// store handler, and answer the peer with the handler's status on the
// same presentation context.
func (a *Association) handleSubOperation(msg *Message, data []byte, contextID byte) error {
	transferSyntax := a.transferSyntaxForContext(contextID)

	status := uint16(StatusSuccess)
	var fileMeta, dataset *dicom.Dataset

	parsed, err := dicom.ParseDatasetWithTransferSyntax(data, transferSyntax)
	if err != nil {
		a.logger.Warn("Failed to parse C-STORE sub-operation dataset",
			"error", err,
			"sop_instance", msg.AffectedSOPInstanceUID)
		// Cannot process: out of resources.
		status = 0xA700
	} else {
		dataset = parsed
		// Synthesize file meta from the negotiation so extraction sees
		// the same header fields a Part 10 file would carry.
		fileMeta = dicom.NewDataset()
		fileMeta.AddElement(dicom.TagMediaStorageSOPClassUID, dicom.VR_UI, msg.AffectedSOPClassUID)
		fileMeta.AddElement(dicom.TagMediaStorageSOPInstanceUID, dicom.VR_UI, msg.AffectedSOPInstanceUID)
		fileMeta.AddElement(dicom.TagTransferSyntaxUID, dicom.VR_UI, transferSyntax)

		if a.onStore != nil {
			status = a.onStore(fileMeta, dataset)
		}
	}

	response := &Message{
		CommandField:              CStoreRSP,
		MessageIDBeingRespondedTo: msg.MessageID,
		AffectedSOPClassUID:       msg.AffectedSOPClassUID,
		AffectedSOPInstanceUID:    msg.AffectedSOPInstanceUID,
		CommandDataSetType:        datasetAbsent,
		Status:                    status,
	}

	if err := a.sendMessage(contextID, encodeCommand(response), nil); err != nil {
		return fmt.Errorf("failed to send C-STORE response: %w", err)
	}
	return nil
}
