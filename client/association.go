// Package client implements the SCU side of the DICOM upper layer:
// association negotiation, DIMSE message exchange, and the C-ECHO,
// C-FIND, C-GET, C-STORE, and C-CANCEL operations used by the
// query/retrieve orchestration layer.
package client

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/helioscan/pacsbridge/dicom"
	"github.com/helioscan/pacsbridge/dicomerr"
)

// PDU type constants
const (
	pduTypeAssociateRQ = 0x01
	pduTypeAssociateAC = 0x02
	pduTypeAssociateRJ = 0x03
	pduTypePDataTF     = 0x04
	pduTypeReleaseRQ   = 0x05
	pduTypeReleaseRP   = 0x06
	pduTypeAbort       = 0x07
)

const implementationClassUID = "1.2.826.0.1.3680043.10.1082.1"
const implementationVersion = "PACSBRIDGE-0.1"

// RequestedContext is one presentation context to propose during
// negotiation.
type RequestedContext struct {
	AbstractSyntax   string
	TransferSyntaxes []string
}

// PresentationContext holds negotiated presentation context info.
type PresentationContext struct {
	ID             byte
	AbstractSyntax string
	TransferSyntax string
	Accepted       bool
}

// StoreHandler receives records delivered by the peer via C-STORE
// sub-operations during a C-GET. It returns the status to report back.
type StoreHandler func(fileMeta, dataset *dicom.Dataset) uint16

// Config holds client configuration.
type Config struct {
	CallingAETitle string
	CalledAETitle  string
	MaxPDULength   uint32
	ConnectTimeout time.Duration // Timeout for establishing connection (default: 30s)
	ReadTimeout    time.Duration // Timeout for read operations (default: 60s)
	WriteTimeout   time.Duration // Timeout for write operations (default: 60s)
	Logger         *slog.Logger  // Logger for the association (default: slog.Default())
}

// Association represents a client-side DICOM association.
type Association struct {
	conn         net.Conn
	config       Config
	maxPDULength uint32
	contexts     map[byte]*PresentationContext
	onStore      StoreHandler
	logger       *slog.Logger

	mu            sync.Mutex
	nextMessageID uint16
	released      bool
}

// Connect establishes a DICOM association with a remote SCP, proposing
// exactly the given presentation contexts. At least one context must be
// accepted or the association is torn down.
func Connect(ctx context.Context, address string, config Config, requested []RequestedContext, onStore StoreHandler) (*Association, error) {
	if config.MaxPDULength == 0 {
		config.MaxPDULength = 16384
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 30 * time.Second
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 60 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 60 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(requested) == 0 {
		return nil, fmt.Errorf("at least one presentation context must be requested")
	}

	dialer := &net.Dialer{Timeout: config.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, dicomerr.NewAssociationError(address, "connect failed", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(config.ReadTimeout)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set read deadline: %w", err)
	}
	if err := conn.SetWriteDeadline(time.Now().Add(config.WriteTimeout)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set write deadline: %w", err)
	}

	assoc := &Association{
		conn:          conn,
		config:        config,
		maxPDULength:  config.MaxPDULength,
		contexts:      make(map[byte]*PresentationContext),
		onStore:       onStore,
		logger:        logger,
		nextMessageID: 1,
	}

	if err := assoc.sendAssociateRQ(requested); err != nil {
		conn.Close()
		return nil, dicomerr.NewAssociationError(address, "failed to send A-ASSOCIATE-RQ", err)
	}

	if err := assoc.receiveAssociateAC(); err != nil {
		conn.Close()
		return nil, dicomerr.NewAssociationError(address, "negotiation failed", err)
	}

	if !assoc.anyAccepted() {
		assoc.Abort()
		return nil, dicomerr.NewAssociationError(address, "peer accepted no presentation contexts", dicomerr.ErrNoPresentationCtx)
	}

	logger.Info("DICOM association established",
		"remote_addr", address,
		"calling_ae", config.CallingAETitle,
		"called_ae", config.CalledAETitle,
		"contexts", len(requested))

	return assoc, nil
}

func (a *Association) anyAccepted() bool {
	for _, pc := range a.contexts {
		if pc.Accepted {
			return true
		}
	}
	return false
}

// NextMessageID hands out association-unique message IDs.
func (a *Association) NextMessageID() uint16 {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextMessageID
	a.nextMessageID++
	if a.nextMessageID == 0 {
		a.nextMessageID = 1
	}
	return id
}

// Release gracefully releases the association and closes the connection.
func (a *Association) Release() error {
	a.mu.Lock()
	if a.released {
		a.mu.Unlock()
		return nil
	}
	a.released = true
	a.mu.Unlock()

	if err := a.sendReleaseRQ(); err != nil {
		a.logger.Warn("Failed to send release request", "error", err)
		return a.conn.Close()
	}
	if err := a.receiveReleaseRP(); err != nil {
		a.logger.Warn("Release response not received", "error", err)
	}
	return a.conn.Close()
}

// Abort sends an A-ABORT and closes the connection immediately. Used on
// every failure path; the peer must never be left waiting on an in-flight
// operation.
func (a *Association) Abort() error {
	a.mu.Lock()
	if a.released {
		a.mu.Unlock()
		return nil
	}
	a.released = true
	a.mu.Unlock()

	abort := make([]byte, 10)
	abort[0] = pduTypeAbort
	binary.BigEndian.PutUint32(abort[2:6], 4)
	// Source: service user. Reason: not specified.
	if _, err := a.conn.Write(abort); err != nil {
		a.logger.Warn("Failed to send A-ABORT", "error", err)
	}
	a.logger.Info("Association aborted")
	return a.conn.Close()
}

// sendAssociateRQ sends an A-ASSOCIATE-RQ PDU proposing the requested
// presentation contexts with odd context IDs in order.
func (a *Association) sendAssociateRQ(requested []RequestedContext) error {
	buf := make([]byte, 0, 1024)

	// Protocol version (2 bytes) = 0x0001
	buf = append(buf, 0x00, 0x01)

	// Reserved (2 bytes)
	buf = append(buf, 0x00, 0x00)

	buf = append(buf, paddedAETitle(a.config.CalledAETitle)...)
	buf = append(buf, paddedAETitle(a.config.CallingAETitle)...)

	// Reserved (32 bytes)
	buf = append(buf, make([]byte, 32)...)

	// Application Context Item
	buf = append(buf, 0x10, 0x00)
	buf = append(buf, 0x00, byte(len(dicom.ApplicationContextUID)))
	buf = append(buf, []byte(dicom.ApplicationContextUID)...)

	contextID := byte(1)
	for _, rc := range requested {
		buf = a.addPresentationContext(buf, contextID, rc)
		contextID += 2
	}

	buf = a.addUserInformation(buf)

	pduHeader := make([]byte, 6)
	pduHeader[0] = pduTypeAssociateRQ
	binary.BigEndian.PutUint32(pduHeader[2:6], uint32(len(buf)))

	if _, err := a.conn.Write(pduHeader); err != nil {
		return err
	}
	if _, err := a.conn.Write(buf); err != nil {
		return err
	}
	return nil
}

func paddedAETitle(title string) []byte {
	padded := make([]byte, 16)
	copy(padded, title)
	for i := len(title); i < 16; i++ {
		padded[i] = ' '
	}
	return padded
}

// addPresentationContext appends one presentation context item with its
// abstract syntax and requested transfer syntaxes, first is preferred.
func (a *Association) addPresentationContext(buf []byte, contextID byte, rc RequestedContext) []byte {
	pcStart := len(buf)

	buf = append(buf, 0x20, 0x00)
	buf = append(buf, 0x00, 0x00) // Length placeholder
	buf = append(buf, contextID)
	buf = append(buf, 0x00, 0x00, 0x00)

	// Abstract Syntax Sub-Item
	buf = append(buf, 0x30, 0x00)
	buf = append(buf, 0x00, byte(len(rc.AbstractSyntax)))
	buf = append(buf, []byte(rc.AbstractSyntax)...)

	transferSyntaxes := rc.TransferSyntaxes
	if len(transferSyntaxes) == 0 {
		transferSyntaxes = []string{
			dicom.TransferSyntaxExplicitVRLittleEndian,
			dicom.TransferSyntaxImplicitVRLittleEndian,
		}
	}
	for _, ts := range transferSyntaxes {
		buf = append(buf, 0x40, 0x00)
		buf = append(buf, 0x00, byte(len(ts)))
		buf = append(buf, []byte(ts)...)
	}

	pcLength := len(buf) - pcStart - 4
	binary.BigEndian.PutUint16(buf[pcStart+2:pcStart+4], uint16(pcLength))

	a.contexts[contextID] = &PresentationContext{
		ID:             contextID,
		AbstractSyntax: rc.AbstractSyntax,
	}

	return buf
}

// addUserInformation appends the user information item: max PDU length,
// implementation class UID and version.
func (a *Association) addUserInformation(buf []byte) []byte {
	uiStart := len(buf)

	buf = append(buf, 0x50, 0x00)
	buf = append(buf, 0x00, 0x00) // Length placeholder

	// Maximum Length Sub-Item
	buf = append(buf, 0x51, 0x00)
	buf = append(buf, 0x00, 0x04)
	maxLengthBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(maxLengthBytes, a.maxPDULength)
	buf = append(buf, maxLengthBytes...)

	// Implementation Class UID Sub-Item
	buf = append(buf, 0x52, 0x00)
	buf = append(buf, 0x00, byte(len(implementationClassUID)))
	buf = append(buf, []byte(implementationClassUID)...)

	// Implementation Version Name Sub-Item
	buf = append(buf, 0x55, 0x00)
	buf = append(buf, 0x00, byte(len(implementationVersion)))
	buf = append(buf, []byte(implementationVersion)...)

	uiLength := len(buf) - uiStart - 4
	binary.BigEndian.PutUint16(buf[uiStart+2:uiStart+4], uint16(uiLength))

	return buf
}

// receiveAssociateAC receives and parses the A-ASSOCIATE-AC, recording
// which presentation contexts the peer accepted and with which transfer
// syntax.
func (a *Association) receiveAssociateAC() error {
	header := make([]byte, 6)
	if _, err := io.ReadFull(a.conn, header); err != nil {
		return fmt.Errorf("failed to read PDU header: %w", err)
	}

	pduType := header[0]
	pduLength := binary.BigEndian.Uint32(header[2:6])

	if pduType == pduTypeAssociateRJ {
		data := make([]byte, pduLength)
		io.ReadFull(a.conn, data)
		return dicomerr.ErrAssociationRejected
	}
	if pduType != pduTypeAssociateAC {
		return fmt.Errorf("unexpected PDU type: 0x%02x (expected A-ASSOCIATE-AC)", pduType)
	}

	data := make([]byte, pduLength)
	if _, err := io.ReadFull(a.conn, data); err != nil {
		return fmt.Errorf("failed to read PDU data: %w", err)
	}

	// Skip fixed fields; items follow from offset 68.
	offset := 68
	for offset+4 <= len(data) {
		itemType := data[offset]
		itemLength := binary.BigEndian.Uint16(data[offset+2 : offset+4])
		itemEnd := offset + 4 + int(itemLength)
		if itemEnd > len(data) {
			break
		}

		if itemType == 0x21 { // Presentation Context Result
			contextID := data[offset+4]
			result := byte(0xff)
			if itemLength >= 4 {
				result = data[offset+6]
			}

			transferSyntax := ""
			subOffset := offset + 8
			for subOffset+4 <= itemEnd {
				subItemType := data[subOffset]
				subItemLength := binary.BigEndian.Uint16(data[subOffset+2 : subOffset+4])
				subItemEnd := subOffset + 4 + int(subItemLength)
				if subItemEnd > itemEnd {
					break
				}
				if subItemType == 0x40 && subItemLength > 0 {
					transferSyntax = strings.TrimRight(string(data[subOffset+4:subItemEnd]), "\x00 ")
				}
				subOffset = subItemEnd
			}

			if pc, ok := a.contexts[contextID]; ok {
				pc.Accepted = result == 0
				if pc.Accepted && transferSyntax != "" {
					pc.TransferSyntax = transferSyntax
				}
				a.logger.Debug("Presentation context negotiation",
					"context_id", contextID,
					"abstract_syntax", pc.AbstractSyntax,
					"result", result,
					"accepted", pc.Accepted,
					"transfer_syntax", pc.TransferSyntax)
			}
		}

		offset = itemEnd
	}

	return nil
}

// sendReleaseRQ sends an A-RELEASE-RQ PDU.
func (a *Association) sendReleaseRQ() error {
	release := make([]byte, 10)
	release[0] = pduTypeReleaseRQ
	binary.BigEndian.PutUint32(release[2:6], 4)

	_, err := a.conn.Write(release)
	return err
}

// receiveReleaseRP receives A-RELEASE-RP (or times out).
func (a *Association) receiveReleaseRP() error {
	header := make([]byte, 6)
	if _, err := io.ReadFull(a.conn, header); err != nil {
		return err
	}

	pduType := header[0]
	pduLength := binary.BigEndian.Uint32(header[2:6])

	data := make([]byte, pduLength)
	io.ReadFull(a.conn, data)

	if pduType != pduTypeReleaseRP {
		return fmt.Errorf("unexpected PDU type: 0x%02x", pduType)
	}
	return nil
}

// ContextFor finds an accepted presentation context for the given
// abstract syntax.
func (a *Association) ContextFor(abstractSyntax string) (*PresentationContext, error) {
	for _, pc := range a.contexts {
		if pc.AbstractSyntax == abstractSyntax && pc.Accepted {
			return pc, nil
		}
	}
	return nil, fmt.Errorf("%w for abstract syntax %s", dicomerr.ErrNoPresentationCtx, abstractSyntax)
}

// transferSyntaxForContext resolves the transfer syntax negotiated for a
// presentation context ID. Defaults to Implicit VR Little Endian.
func (a *Association) transferSyntaxForContext(contextID byte) string {
	if pc, ok := a.contexts[contextID]; ok && pc.TransferSyntax != "" {
		return pc.TransferSyntax
	}
	return dicom.TransferSyntaxImplicitVRLittleEndian
}
