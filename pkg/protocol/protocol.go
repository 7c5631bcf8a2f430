package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// MaxFrameSize is the maximum allowed inbound frame size (64 KB)
	MaxFrameSize = 64 * 1024

	// RootParentID marks a message as a root node of its topic's tree
	RootParentID int64 = -1

	// NoTopic marks a session that has not joined any topic yet
	NoTopic int64 = -1
)

// Envelope keys shared by every frame
const (
	KeyKind   = "mtype"
	KeySender = "id"
	KeyAuth   = "auth"
	KeyStamp  = "tstamp"
)

// Message kinds, client to server
const (
	KindResponse     = "response"
	KindSetTopic     = "settopic"
	KindChangeHandle = "changehandle"
	KindHeartbeat    = "heartbeat"
	KindTest         = "test"
)

// Message kinds, server to client
const (
	KindMyHandle     = "myhandle"
	KindNewHandle    = "newhandle"
	KindRemoveHandle = "removehandle"
	KindFullTree     = "fulltree"
	KindNewMessage   = "newmessage"
)

var (
	ErrFrameTooLarge  = errors.New("frame exceeds maximum size (64 KB)")
	ErrMissingField   = errors.New("required field missing")
	ErrUnknownKind    = errors.New("message kind not allowed")
	ErrInvalidPayload = errors.New("invalid message payload")
)

// allowedKinds is the closed set of kinds accepted on the wire, in either
// direction. A kind outside this set is a protocol error.
var allowedKinds = map[string]bool{
	KindResponse:     true,
	KindSetTopic:     true,
	KindChangeHandle: true,
	KindHeartbeat:    true,
	KindTest:         true,
	KindMyHandle:     true,
	KindNewHandle:    true,
	KindRemoveHandle: true,
	KindFullTree:     true,
	KindNewMessage:   true,
}

// Envelope is the validated outer layer of an inbound frame: the kind
// discriminator, the claimed sender session id and its auth token. The
// kind-specific payload stays in Raw until the dispatcher decodes it.
type Envelope struct {
	Kind      string
	SessionID int64
	AuthToken string
	Raw       []byte
}

// envelopeWire mirrors the required wire keys. Pointers distinguish an
// absent key from a zero value.
type envelopeWire struct {
	Kind      *string `json:"mtype"`
	SessionID *int64  `json:"id"`
	AuthToken *string `json:"auth"`
}

// DecodeEnvelope parses a raw frame and applies the validation contract:
// required keys first, then kind membership. It does not check the auth
// token against anything; that is the dispatcher's job.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	if len(data) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	var wire envelopeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if wire.Kind == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, KeyKind)
	}
	if wire.SessionID == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, KeySender)
	}
	if wire.AuthToken == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, KeyAuth)
	}

	if !allowedKinds[*wire.Kind] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, *wire.Kind)
	}

	return &Envelope{
		Kind:      *wire.Kind,
		SessionID: *wire.SessionID,
		AuthToken: *wire.AuthToken,
		Raw:       data,
	}, nil
}
