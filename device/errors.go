package device

import (
	"errors"
	"fmt"

	"github.com/srg/gattlink/internal/gatt"
)

// StateError is a typed connection/resolution failure. Compare with errors.Is
// against the Err* sentinels below.
type StateError = gatt.StateError

// StateKind classifies a StateError.
type StateKind = gatt.StateKind

const (
	NotConnected      = gatt.NotConnected
	ServiceChanged    = gatt.ServiceChanged
	NotReady          = gatt.NotReady
	AlreadyRegistered = gatt.AlreadyRegistered
)

// Predefined sentinel errors for connection and resolution states.
var (
	ErrNotConnected      = gatt.ErrNotConnected
	ErrServiceChanged    = gatt.ErrServiceChanged
	ErrNotReady          = gatt.ErrNotReady
	ErrAlreadyRegistered = gatt.ErrAlreadyRegistered
)

// Operation errors
var (
	ErrNotSupported     = errors.New("unsupported operation")
	ErrInvalidParameter = errors.New("invalid parameter")
)

// IsStateKind reports whether err is a StateError with the given kind.
func IsStateKind(err error, kind StateKind) bool {
	var serr *StateError
	if errors.As(err, &serr) {
		return serr.Kind == kind
	}
	return false
}

// ATTError is a Bluetooth Attribute Protocol error code reported by the
// remote device. See the Bluetooth Core Specification, Vol 3, Part F,
// section 3.4.1.1.
type ATTError uint8

const (
	ATTSuccess                       ATTError = 0x00
	ATTInvalidHandle                 ATTError = 0x01
	ATTReadNotPermitted              ATTError = 0x02
	ATTWriteNotPermitted             ATTError = 0x03
	ATTInvalidPDU                    ATTError = 0x04
	ATTInsufficientAuthentication    ATTError = 0x05
	ATTRequestNotSupported           ATTError = 0x06
	ATTInvalidOffset                 ATTError = 0x07
	ATTInsufficientAuthorization     ATTError = 0x08
	ATTPrepareQueueFull              ATTError = 0x09
	ATTAttributeNotFound             ATTError = 0x0a
	ATTAttributeNotLong              ATTError = 0x0b
	ATTInsufficientEncryptionKeySize ATTError = 0x0c
	ATTInvalidAttributeValueLength   ATTError = 0x0d
	ATTUnlikelyError                 ATTError = 0x0e
	ATTInsufficientEncryption        ATTError = 0x0f
	ATTUnsupportedGroupType          ATTError = 0x10
	ATTInsufficientResources         ATTError = 0x11
	ATTDatabaseOutOfSync             ATTError = 0x12
	ATTValueNotAllowed               ATTError = 0x13
)

var attErrorNames = map[ATTError]string{
	ATTSuccess:                       "success",
	ATTInvalidHandle:                 "invalid attribute handle",
	ATTReadNotPermitted:              "attribute cannot be read",
	ATTWriteNotPermitted:             "attribute cannot be written",
	ATTInvalidPDU:                    "invalid attribute PDU",
	ATTRequestNotSupported:           "request not supported by the attribute server",
	ATTInvalidOffset:                 "offset past the end of the attribute",
	ATTInsufficientAuthentication:    "insufficient authentication",
	ATTInsufficientAuthorization:     "insufficient authorization",
	ATTPrepareQueueFull:              "prepare write queue full",
	ATTAttributeNotFound:             "attribute not found in the given handle range",
	ATTAttributeNotLong:              "attribute cannot be accessed with a Read Blob request",
	ATTInsufficientEncryptionKeySize: "insufficient encryption key size",
	ATTInvalidAttributeValueLength:   "invalid attribute value length",
	ATTUnlikelyError:                 "unlikely error",
	ATTInsufficientEncryption:        "insufficient encryption",
	ATTUnsupportedGroupType:          "unsupported grouping attribute type",
	ATTInsufficientResources:         "insufficient resources",
	ATTDatabaseOutOfSync:             "database out of sync, rediscover services",
	ATTValueNotAllowed:               "attribute value not allowed",
}

// Error implements the error interface so backends can report protocol
// failures directly as completion errors.
func (e ATTError) Error() string {
	if name, ok := attErrorNames[e]; ok {
		return fmt.Sprintf("ATT error 0x%02x: %s", uint8(e), name)
	}
	return fmt.Sprintf("ATT error 0x%02x", uint8(e))
}

// IsApplication reports whether the code is in the application error range.
func (e ATTError) IsApplication() bool {
	return e >= 0x80 && e < 0xa0
}

// IsCommonProfileOrService reports whether the code is in the common profile
// and service error range.
func (e ATTError) IsCommonProfileOrService() bool {
	return e >= 0xe0
}
