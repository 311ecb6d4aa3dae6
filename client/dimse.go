package client

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// DIMSE command types
const (
	CStoreRQ  = 0x0001
	CStoreRSP = 0x8001
	CGetRQ    = 0x0010
	CGetRSP   = 0x8010
	CFindRQ   = 0x0020
	CFindRSP  = 0x8020
	CEchoRQ   = 0x0030
	CEchoRSP  = 0x8030
	CCancelRQ = 0x0FFF
)

// DIMSE status codes
const (
	StatusSuccess = 0x0000
	StatusPending = 0xFF00
)

// Command data set type values
const (
	datasetPresent = 0x0000
	datasetAbsent  = 0x0101
)

// Message represents a parsed DIMSE command.
type Message struct {
	CommandField              uint16
	MessageID                 uint16
	AffectedSOPClassUID       string
	AffectedSOPInstanceUID    string
	Priority                  uint16
	CommandDataSetType        uint16
	Status                    uint16
	MessageIDBeingRespondedTo uint16

	// C-GET response counters
	NumberOfRemainingSuboperations *uint16
	NumberOfCompletedSuboperations *uint16
	NumberOfFailedSuboperations    *uint16
	NumberOfWarningSuboperations   *uint16
}

// HasDataset reports whether the command announces an accompanying
// dataset.
func (m *Message) HasDataset() bool {
	return m.CommandDataSetType != datasetAbsent
}

// encodeCommand encodes a DIMSE command message using Implicit VR Little
// Endian, the mandatory encoding for command sets.
func encodeCommand(msg *Message) []byte {
	buf := make([]byte, 0, 256)

	// Command Group Length (0000,0000), patched once the group is built.
	buf = appendImplicitElement(buf, 0x0000, 0x0000, make([]byte, 4))
	lengthPos := len(buf) - 4

	if msg.AffectedSOPClassUID != "" {
		buf = appendImplicitElement(buf, 0x0000, 0x0002, evenPaddedUID(msg.AffectedSOPClassUID))
	}

	cmdBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(cmdBytes, msg.CommandField)
	buf = appendImplicitElement(buf, 0x0000, 0x0100, cmdBytes)

	if msg.MessageID != 0 {
		msgIDBytes := make([]byte, 2)
		binary.LittleEndian.PutUint16(msgIDBytes, msg.MessageID)
		buf = appendImplicitElement(buf, 0x0000, 0x0110, msgIDBytes)
	}

	if msg.MessageIDBeingRespondedTo != 0 {
		msgIDBytes := make([]byte, 2)
		binary.LittleEndian.PutUint16(msgIDBytes, msg.MessageIDBeingRespondedTo)
		buf = appendImplicitElement(buf, 0x0000, 0x0120, msgIDBytes)
	}

	if msg.Priority != 0 {
		priorityBytes := make([]byte, 2)
		binary.LittleEndian.PutUint16(priorityBytes, msg.Priority)
		buf = appendImplicitElement(buf, 0x0000, 0x0700, priorityBytes)
	}

	datasetTypeBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(datasetTypeBytes, msg.CommandDataSetType)
	buf = appendImplicitElement(buf, 0x0000, 0x0800, datasetTypeBytes)

	if msg.Status != 0 {
		statusBytes := make([]byte, 2)
		binary.LittleEndian.PutUint16(statusBytes, msg.Status)
		buf = appendImplicitElement(buf, 0x0000, 0x0900, statusBytes)
	}

	if msg.AffectedSOPInstanceUID != "" {
		buf = appendImplicitElement(buf, 0x0000, 0x1000, evenPaddedUID(msg.AffectedSOPInstanceUID))
	}

	groupLength := uint32(len(buf) - lengthPos - 4)
	binary.LittleEndian.PutUint32(buf[lengthPos:lengthPos+4], groupLength)

	return buf
}

func evenPaddedUID(uid string) []byte {
	b := []byte(uid)
	if len(b)%2 == 1 {
		b = append(b, 0x00)
	}
	return b
}

// appendImplicitElement appends one Implicit VR element (no VR field).
func appendImplicitElement(buf []byte, group, element uint16, value []byte) []byte {
	buf = append(buf, byte(group), byte(group>>8))
	buf = append(buf, byte(element), byte(element>>8))
	length := uint32(len(value))
	buf = append(buf, byte(length), byte(length>>8), byte(length>>16), byte(length>>24))
	buf = append(buf, value...)
	return buf
}

// decodeCommand decodes a DIMSE command message.
func decodeCommand(data []byte) (*Message, error) {
	msg := &Message{CommandDataSetType: datasetAbsent}
	offset := 0

	for offset+8 <= len(data) {
		group := binary.LittleEndian.Uint16(data[offset : offset+2])
		element := binary.LittleEndian.Uint16(data[offset+2 : offset+4])
		length := binary.LittleEndian.Uint32(data[offset+4 : offset+8])

		if offset+8+int(length) > len(data) {
			break
		}
		value := data[offset+8 : offset+8+int(length)]

		switch {
		case group == 0x0000 && element == 0x0002:
			msg.AffectedSOPClassUID = trimUID(value)
		case group == 0x0000 && element == 0x0100:
			if len(value) >= 2 {
				msg.CommandField = binary.LittleEndian.Uint16(value[:2])
			}
		case group == 0x0000 && element == 0x0110:
			if len(value) >= 2 {
				msg.MessageID = binary.LittleEndian.Uint16(value[:2])
			}
		case group == 0x0000 && element == 0x0120:
			if len(value) >= 2 {
				msg.MessageIDBeingRespondedTo = binary.LittleEndian.Uint16(value[:2])
			}
		case group == 0x0000 && element == 0x0700:
			if len(value) >= 2 {
				msg.Priority = binary.LittleEndian.Uint16(value[:2])
			}
		case group == 0x0000 && element == 0x0800:
			if len(value) >= 2 {
				msg.CommandDataSetType = binary.LittleEndian.Uint16(value[:2])
			}
		case group == 0x0000 && element == 0x0900:
			if len(value) >= 2 {
				msg.Status = binary.LittleEndian.Uint16(value[:2])
			}
		case group == 0x0000 && element == 0x1000:
			msg.AffectedSOPInstanceUID = trimUID(value)
		case group == 0x0000 && element == 0x1020:
			if v, ok := counterValue(value); ok {
				msg.NumberOfRemainingSuboperations = v
			}
		case group == 0x0000 && element == 0x1021:
			if v, ok := counterValue(value); ok {
				msg.NumberOfCompletedSuboperations = v
			}
		case group == 0x0000 && element == 0x1022:
			if v, ok := counterValue(value); ok {
				msg.NumberOfFailedSuboperations = v
			}
		case group == 0x0000 && element == 0x1023:
			if v, ok := counterValue(value); ok {
				msg.NumberOfWarningSuboperations = v
			}
		}

		offset += 8 + int(length)
	}

	return msg, nil
}

func trimUID(value []byte) string {
	return strings.TrimRight(string(value), "\x00 ")
}

func counterValue(value []byte) (*uint16, bool) {
	if len(value) < 2 {
		return nil, false
	}
	v := binary.LittleEndian.Uint16(value[:2])
	return &v, true
}

// sendMessage sends a DIMSE message: command first, then the dataset if
// present, both on the same presentation context.
func (a *Association) sendMessage(contextID byte, commandData, datasetData []byte) error {
	if err := a.sendPDataTF(contextID, commandData, true); err != nil {
		return err
	}
	if len(datasetData) > 0 {
		if err := a.sendPDataTF(contextID, datasetData, false); err != nil {
			return err
		}
	}
	return nil
}

// sendPDataTF sends data as one or more P-DATA-TF PDUs, fragmented to
// the negotiated max PDU length.
func (a *Association) sendPDataTF(contextID byte, data []byte, isCommand bool) error {
	// Max data per PDV: PDU length minus PDU header and PDV header.
	maxPDVData := int(a.maxPDULength) - 6 - 6

	offset := 0
	for offset < len(data) {
		chunkSize := len(data) - offset
		lastFragment := true
		if chunkSize > maxPDVData {
			chunkSize = maxPDVData
			lastFragment = false
		}

		pdvLength := uint32(chunkSize + 2)
		pdv := make([]byte, 0, pdvLength+10)

		pduHeader := make([]byte, 6)
		pduHeader[0] = pduTypePDataTF
		binary.BigEndian.PutUint32(pduHeader[2:6], pdvLength+4)
		pdv = append(pdv, pduHeader...)

		pdvLengthBytes := make([]byte, 4)
		binary.BigEndian.PutUint32(pdvLengthBytes, pdvLength)
		pdv = append(pdv, pdvLengthBytes...)
		pdv = append(pdv, contextID)

		// Control header bit 0: command. Bit 1: last fragment.
		controlHeader := byte(0)
		if isCommand {
			controlHeader |= 0x01
		}
		if lastFragment {
			controlHeader |= 0x02
		}
		pdv = append(pdv, controlHeader)
		pdv = append(pdv, data[offset:offset+chunkSize]...)

		if _, err := a.conn.Write(pdv); err != nil {
			return fmt.Errorf("failed to write PDU: %w", err)
		}

		offset += chunkSize
	}

	return nil
}

// receiveMessage reads one complete DIMSE message: a command plus its
// dataset when one is announced. Returns the message, the raw dataset
// bytes, and the presentation context the command arrived on, which the
// caller needs to resolve the dataset's transfer syntax and to respond
// on the right context.
func (a *Association) receiveMessage() (*Message, []byte, byte, error) {
	var commandData []byte
	var datasetData []byte
	var contextID byte
	commandComplete := false
	datasetComplete := false
	datasetExpected := false
	var currentMsg *Message

	for {
		header := make([]byte, 6)
		if _, err := io.ReadFull(a.conn, header); err != nil {
			return nil, nil, 0, fmt.Errorf("failed to read PDU header: %w", err)
		}

		pduType := header[0]
		pduLength := binary.BigEndian.Uint32(header[2:6])

		switch pduType {
		case pduTypePDataTF:
			payload := make([]byte, pduLength)
			if _, err := io.ReadFull(a.conn, payload); err != nil {
				return nil, nil, 0, fmt.Errorf("failed to read PDU data: %w", err)
			}

			offset := 0
			for offset < len(payload) {
				if offset+6 > len(payload) {
					return nil, nil, 0, fmt.Errorf("malformed PDV encountered")
				}

				pdvLength := binary.BigEndian.Uint32(payload[offset : offset+4])
				end := offset + 4 + int(pdvLength)
				if end > len(payload) {
					return nil, nil, 0, fmt.Errorf("PDV length exceeds PDU payload")
				}

				pdvContextID := payload[offset+4]
				controlHeader := payload[offset+5]
				value := payload[offset+6 : end]
				isCommand := controlHeader&0x01 != 0
				isLastFragment := controlHeader&0x02 != 0

				if isCommand {
					contextID = pdvContextID
					commandData = append(commandData, value...)
					if isLastFragment {
						commandComplete = true
						decoded, err := decodeCommand(commandData)
						if err != nil {
							return nil, nil, 0, fmt.Errorf("failed to decode command: %w", err)
						}
						currentMsg = decoded

						if currentMsg.HasDataset() {
							datasetExpected = true
						} else {
							datasetExpected = false
							datasetComplete = true
						}
					}
				} else {
					datasetData = append(datasetData, value...)
					if isLastFragment {
						datasetComplete = true
					}
				}

				offset = end
			}
		case pduTypeAbort:
			abortData := make([]byte, pduLength)
			if _, err := io.ReadFull(a.conn, abortData); err != nil {
				return nil, nil, 0, fmt.Errorf("failed to read ABORT data: %w", err)
			}

			var source, reason byte
			if len(abortData) >= 4 {
				source = abortData[2]
				reason = abortData[3]
			}
			return nil, nil, 0, fmt.Errorf("received A-ABORT PDU (source=%d, reason=%d)", source, reason)
		default:
			// Skip payload for unexpected PDU types to keep the stream
			// aligned before failing.
			discard := make([]byte, pduLength)
			if _, err := io.ReadFull(a.conn, discard); err != nil {
				return nil, nil, 0, fmt.Errorf("failed to read unexpected PDU payload: %w", err)
			}
			return nil, nil, 0, fmt.Errorf("unexpected PDU type: 0x%02x", pduType)
		}

		if commandComplete && (!datasetExpected || datasetComplete) {
			return currentMsg, datasetData, contextID, nil
		}
	}
}
