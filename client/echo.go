package client

import (
	"fmt"

	"github.com/helioscan/pacsbridge/dicom"
)

// CEchoResponse represents the result of a C-ECHO operation.
type CEchoResponse struct {
	Status    uint16
	MessageID uint16
}

// SendCEcho performs a DICOM C-ECHO (verification) request and returns
// the response status.
func (a *Association) SendCEcho(messageID uint16) (*CEchoResponse, error) {
	if messageID == 0 {
		messageID = a.NextMessageID()
	}

	pc, err := a.ContextFor(dicom.VerificationSOPClass)
	if err != nil {
		return nil, err
	}

	command := &Message{
		CommandField:        CEchoRQ,
		MessageID:           messageID,
		CommandDataSetType:  datasetAbsent,
		AffectedSOPClassUID: dicom.VerificationSOPClass,
	}

	if err := a.sendMessage(pc.ID, encodeCommand(command), nil); err != nil {
		return nil, fmt.Errorf("failed to send C-ECHO request: %w", err)
	}

	msg, _, _, err := a.receiveMessage()
	if err != nil {
		return nil, err
	}

	if msg.CommandField != CEchoRSP {
		return nil, fmt.Errorf("unexpected command: 0x%04x (expected C-ECHO-RSP)", msg.CommandField)
	}

	return &CEchoResponse{
		Status:    msg.Status,
		MessageID: msg.MessageIDBeingRespondedTo,
	}, nil
}
