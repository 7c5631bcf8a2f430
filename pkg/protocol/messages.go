package protocol

import (
	"encoding/json"
	"fmt"
)

// --- Inbound payloads (client to server) ---
//
// One concrete type per kind, each with a Decode that rejects missing
// fields up front. The dispatcher never touches loosely keyed maps.

// ResponseMessage posts a new message into the sender's current topic.
// ReplyID is the parent message id, or RootParentID for a root post.
type ResponseMessage struct {
	Text    string
	ReplyID int64
	TopicID int64
}

func (m *ResponseMessage) Decode(data []byte) error {
	var wire struct {
		Text    *string `json:"text"`
		ReplyID *int64  `json:"replyid"`
		TopicID *int64  `json:"topicid"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if wire.Text == nil {
		return fmt.Errorf("%w: text", ErrMissingField)
	}
	if wire.ReplyID == nil {
		return fmt.Errorf("%w: replyid", ErrMissingField)
	}
	if wire.TopicID == nil {
		return fmt.Errorf("%w: topicid", ErrMissingField)
	}
	m.Text = *wire.Text
	m.ReplyID = *wire.ReplyID
	m.TopicID = *wire.TopicID
	return nil
}

// SetTopicMessage joins the sender to a topic, leaving its previous one.
type SetTopicMessage struct {
	TopicID int64
}

func (m *SetTopicMessage) Decode(data []byte) error {
	var wire struct {
		TopicID *int64 `json:"topicid"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if wire.TopicID == nil {
		return fmt.Errorf("%w: topicid", ErrMissingField)
	}
	m.TopicID = *wire.TopicID
	return nil
}

// ChangeHandleMessage renames the sender.
type ChangeHandleMessage struct {
	Handle string
}

func (m *ChangeHandleMessage) Decode(data []byte) error {
	var wire struct {
		Handle *string `json:"handle"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if wire.Handle == nil {
		return fmt.Errorf("%w: handle", ErrMissingField)
	}
	m.Handle = *wire.Handle
	return nil
}

// --- Outbound messages (server to client) ---
//
// Every outbound message carries a server-assigned timestamp, stamped by
// the send path immediately before serialization. The stamp field lives in
// the embedded outbound struct so handlers never set it themselves.

// Outbound is implemented by every server-to-client message.
type Outbound interface {
	Stamp(unixMilli int64)
	MessageKind() string
}

type outbound struct {
	Kind      string `json:"mtype"`
	Timestamp int64  `json:"tstamp"`
}

func (o *outbound) Stamp(unixMilli int64) {
	o.Timestamp = unixMilli
}

func (o *outbound) MessageKind() string {
	return o.Kind
}

// MessageJSON is the wire shape of one message node.
type MessageJSON struct {
	User     string `json:"user"`
	Message  string `json:"message"`
	ID       int64  `json:"id"`
	ParentID int64  `json:"parentid"`
	PostTime int64  `json:"posttime"`
}

// TreeJSON is the wire shape of a full-tree snapshot.
type TreeJSON struct {
	RootNodes []int64               `json:"rootnodes"`
	Children  map[int64][]int64     `json:"children"`
	Messages  map[int64]MessageJSON `json:"messages"`
}

// MyHandleMessage is sent once, at connect. It is the only message that
// carries the session's auth token.
type MyHandleMessage struct {
	outbound
	Handle    string `json:"handle"`
	UserID    int64  `json:"userid"`
	AuthToken string `json:"auth_token"`
}

func NewMyHandle(handle string, userID int64, authToken string) *MyHandleMessage {
	return &MyHandleMessage{
		outbound:  outbound{Kind: KindMyHandle},
		Handle:    handle,
		UserID:    userID,
		AuthToken: authToken,
	}
}

// NewHandleMessage announces a topic member to another member.
type NewHandleMessage struct {
	outbound
	Handle string `json:"handle"`
	UserID int64  `json:"userid"`
}

func NewNewHandle(handle string, userID int64) *NewHandleMessage {
	return &NewHandleMessage{
		outbound: outbound{Kind: KindNewHandle},
		Handle:   handle,
		UserID:   userID,
	}
}

// RemoveHandleMessage announces a departed topic member.
type RemoveHandleMessage struct {
	outbound
	UserID int64 `json:"userid"`
}

func NewRemoveHandle(userID int64) *RemoveHandleMessage {
	return &RemoveHandleMessage{
		outbound: outbound{Kind: KindRemoveHandle},
		UserID:   userID,
	}
}

// FullTreeMessage carries a complete snapshot of a topic's message tree.
type FullTreeMessage struct {
	outbound
	Tree TreeJSON `json:"tree"`
}

func NewFullTree(tree TreeJSON) *FullTreeMessage {
	return &FullTreeMessage{
		outbound: outbound{Kind: KindFullTree},
		Tree:     tree,
	}
}

// NewMessageMessage carries one freshly posted message node.
type NewMessageMessage struct {
	outbound
	Message MessageJSON `json:"message"`
}

func NewNewMessage(msg MessageJSON) *NewMessageMessage {
	return &NewMessageMessage{
		outbound: outbound{Kind: KindNewMessage},
		Message:  msg,
	}
}

// ChangeHandleBroadcast tells topic members that a member was renamed.
type ChangeHandleBroadcast struct {
	outbound
	ChangeID int64  `json:"changeid"`
	Handle   string `json:"newhandle"`
}

func NewChangeHandleBroadcast(changeID int64, handle string) *ChangeHandleBroadcast {
	return &ChangeHandleBroadcast{
		outbound: outbound{Kind: KindChangeHandle},
		ChangeID: changeID,
		Handle:   handle,
	}
}

// Encode stamps the message and serializes it to JSON.
func Encode(msg Outbound, unixMilli int64) ([]byte, error) {
	msg.Stamp(unixMilli)
	return json.Marshal(msg)
}
