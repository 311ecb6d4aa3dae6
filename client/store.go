package client

import (
	"fmt"

	"github.com/helioscan/pacsbridge/dicom"
)

// CStoreRequest encapsulates the information required to perform a
// C-STORE operation.
type CStoreRequest struct {
	SOPClassUID    string
	SOPInstanceUID string
	MessageID      uint16
	Priority       uint16
	Dataset        *dicom.Dataset
}

// CStoreResponse represents the C-STORE response from the SCP.
type CStoreResponse struct {
	Status         uint16
	MessageID      uint16
	SOPClassUID    string
	SOPInstanceUID string
}

// SendCStore pushes one dataset to the peer and waits for the response.
// The dataset is re-encoded with the transfer syntax negotiated for the
// SOP class's presentation context.
func (a *Association) SendCStore(req *CStoreRequest) (*CStoreResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("c-store request cannot be nil")
	}
	if req.Dataset == nil {
		return nil, fmt.Errorf("c-store request requires a dataset")
	}
	if req.SOPClassUID == "" || req.SOPInstanceUID == "" {
		return nil, fmt.Errorf("c-store request requires SOP class and instance UIDs")
	}

	messageID := req.MessageID
	if messageID == 0 {
		messageID = a.NextMessageID()
	}

	priority := req.Priority
	if priority == 0 {
		priority = 0x0002
	}

	pc, err := a.ContextFor(req.SOPClassUID)
	if err != nil {
		return nil, err
	}

	command := &Message{
		CommandField:           CStoreRQ,
		MessageID:              messageID,
		Priority:               priority,
		CommandDataSetType:     datasetPresent,
		AffectedSOPClassUID:    req.SOPClassUID,
		AffectedSOPInstanceUID: req.SOPInstanceUID,
	}

	datasetData, err := dicom.EncodeDatasetWithTransferSyntax(req.Dataset, a.transferSyntaxForContext(pc.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to encode C-STORE dataset: %w", err)
	}

	if err := a.sendMessage(pc.ID, encodeCommand(command), datasetData); err != nil {
		return nil, fmt.Errorf("failed to send C-STORE: %w", err)
	}

	msg, _, _, err := a.receiveMessage()
	if err != nil {
		return nil, fmt.Errorf("failed to receive C-STORE-RSP: %w", err)
	}

	if msg.CommandField != CStoreRSP {
		return nil, fmt.Errorf("unexpected command: 0x%04x (expected C-STORE-RSP)", msg.CommandField)
	}

	return &CStoreResponse{
		Status:         msg.Status,
		MessageID:      msg.MessageIDBeingRespondedTo,
		SOPClassUID:    msg.AffectedSOPClassUID,
		SOPInstanceUID: msg.AffectedSOPInstanceUID,
	}, nil
}
