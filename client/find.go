package client

import (
	"fmt"

	"github.com/helioscan/pacsbridge/dicom"
)

// CFindRequest encapsulates the information required to perform a C-FIND
// query.
type CFindRequest struct {
	SOPClassUID string
	MessageID   uint16
	Priority    uint16
	Dataset     *dicom.Dataset
}

// CFindResponse represents a single C-FIND response from the SCP.
type CFindResponse struct {
	Status    uint16
	MessageID uint16
	Dataset   *dicom.Dataset
}

// SendCFind performs a DICOM C-FIND query, streaming each response as it
// arrives. The callback is invoked once per response, including the
// terminal one; returning an error stops the drain and propagates.
func (a *Association) SendCFind(req *CFindRequest, emit func(*CFindResponse) error) error {
	if req == nil {
		return fmt.Errorf("c-find request cannot be nil")
	}
	if req.Dataset == nil {
		return fmt.Errorf("c-find request requires a dataset")
	}

	sopClass := req.SOPClassUID
	if sopClass == "" {
		sopClass = dicom.StudyRootQueryRetrieveInformationModelFind
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
		CommandField:        CFindRQ,
		MessageID:           messageID,
		CommandDataSetType:  datasetPresent,
		Priority:            req.Priority,
		AffectedSOPClassUID: sopClass,
	}

	datasetData, err := dicom.EncodeDatasetWithTransferSyntax(req.Dataset, a.transferSyntaxForContext(pc.ID))
	if err != nil {
		return fmt.Errorf("failed to encode C-FIND identifier: %w", err)
	}

	if err := a.sendMessage(pc.ID, encodeCommand(command), datasetData); err != nil {
		return fmt.Errorf("failed to send C-FIND request: %w", err)
	}

	for {
		msg, data, contextID, err := a.receiveMessage()
		if err != nil {
			return err
		}

		if msg.CommandField != CFindRSP {
			return fmt.Errorf("unexpected command: 0x%04x (expected C-FIND-RSP)", msg.CommandField)
		}

		var dataset *dicom.Dataset
		if len(data) > 0 {
			dataset, err = dicom.ParseDatasetWithTransferSyntax(data, a.transferSyntaxForContext(contextID))
			if err != nil {
				a.logger.Warn("Failed to parse C-FIND response dataset",
					"error", err,
					"message_id", msg.MessageIDBeingRespondedTo,
					"status", fmt.Sprintf("0x%04X", msg.Status))
				dataset = nil
			}
		}

		if err := emit(&CFindResponse{
			Status:    msg.Status,
			MessageID: msg.MessageIDBeingRespondedTo,
			Dataset:   dataset,
		}); err != nil {
			return err
		}

		if msg.Status != StatusPending && msg.Status != 0xFF01 {
			return nil
		}
	}
}
