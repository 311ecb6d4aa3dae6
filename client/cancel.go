package client

import (
	"fmt"
)

// SendCCancel sends a C-CANCEL-RQ to cancel a pending C-FIND or C-GET
// operation. The messageID must match the MessageID of the operation
// being canceled. C-CANCEL has no response of its own; the canceled
// operation terminates with a cancel status in its response stream.
func (a *Association) SendCCancel(messageID uint16, sopClassUID string) error {
	if messageID == 0 {
		return fmt.Errorf("messageID must be non-zero for C-CANCEL")
	}
	if sopClassUID == "" {
		return fmt.Errorf("sopClassUID must be provided for C-CANCEL")
	}

	pc, err := a.ContextFor(sopClassUID)
	if err != nil {
		return err
	}

	command := &Message{
		CommandField:              CCancelRQ,
		MessageIDBeingRespondedTo: messageID,
		CommandDataSetType:        datasetAbsent,
	}

	if err := a.sendMessage(pc.ID, encodeCommand(command), nil); err != nil {
		return fmt.Errorf("failed to send C-CANCEL request: %w", err)
	}

	a.logger.Debug("C-CANCEL sent", "messageID", messageID, "sopClassUID", sopClassUID)

	return nil
}
