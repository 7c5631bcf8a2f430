package server

import (
	"time"

	"github.com/qaboard/qaboard/pkg/database"
	"github.com/qaboard/qaboard/pkg/protocol"
)

// handleOpen creates a session for a new connection and sends it the
// myhandle welcome. This is the only message that carries the session's
// auth token.
func (s *Server) handleOpen(conn Conn) {
	sess := s.sessions.CreateSession(conn)
	s.conns[conn] = sess.ID

	if s.metrics != nil {
		s.metrics.RecordSessionCreated()
		s.metrics.RecordActiveSessions(s.sessions.Count())
	}
	debugLog.Printf("Session %d connected (handle %s)", sess.ID, sess.Handle)

	s.send(sess, protocol.NewMyHandle(sess.Handle, sess.ID, sess.AuthToken))
}

// handleClose tears down the session for a closed connection: leave the
// current topic (broadcasting removehandle to the remaining members),
// then destroy the session. A close for an unknown connection is a
// no-op; the transport may race with logic that already reaped it.
func (s *Server) handleClose(conn Conn) {
	sessionID, ok := s.conns[conn]
	if !ok {
		return
	}
	delete(s.conns, conn)

	sess, ok := s.sessions.DestroySession(sessionID)
	if !ok {
		return
	}

	if sess.TopicID != protocol.NoTopic {
		s.leaveTopic(sess.TopicID, sess.ID)
	}

	if s.metrics != nil {
		s.metrics.RecordSessionDisconnected()
		s.metrics.RecordActiveSessions(s.sessions.Count())
	}
	debugLog.Printf("Session %d disconnected", sess.ID)
}

// handleFrame applies the validation contract to one inbound frame and
// routes it by kind. Protocol errors drop the frame but keep the
// connection; auth failures are dropped silently with no reply at all.
func (s *Server) handleFrame(data []byte) {
	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		debugLog.Printf("Rejected frame: %v", err)
		if s.metrics != nil {
			s.metrics.RecordProtocolError()
		}
		return
	}

	sess, ok := s.sessions.Get(env.SessionID)
	if !ok || env.AuthToken != sess.AuthToken {
		// Deliberately silent: no reply, no state change. Answering
		// would let a client probe for live session ids.
		debugLog.Printf("Incorrect auth token for claimed session %d", env.SessionID)
		if s.metrics != nil {
			s.metrics.RecordAuthFailure()
		}
		return
	}

	if s.metrics != nil {
		s.metrics.RecordMessageReceived(env.Kind)
	}

	switch env.Kind {
	case protocol.KindSetTopic:
		s.handleSetTopic(sess, env.Raw)
	case protocol.KindResponse:
		s.handleResponse(sess, env.Raw)
	case protocol.KindChangeHandle:
		s.handleChangeHandle(sess, env.Raw)
	case protocol.KindHeartbeat:
		s.handleHeartbeat(sess)
	case protocol.KindTest:
		// reserved
	default:
		// Server-to-client kinds echoed back by a client.
		debugLog.Printf("Session %d sent non-client kind %q", sess.ID, env.Kind)
		if s.metrics != nil {
			s.metrics.RecordProtocolError()
		}
	}
}

// handleSetTopic joins the session to a topic, leaving its previous one
// first if it had any.
func (s *Server) handleSetTopic(sess *Session, raw []byte) {
	msg := &protocol.SetTopicMessage{}
	if err := msg.Decode(raw); err != nil {
		debugLog.Printf("Session %d: invalid settopic: %v", sess.ID, err)
		if s.metrics != nil {
			s.metrics.RecordProtocolError()
		}
		return
	}

	topic, ok := s.topics.Get(msg.TopicID)
	if !ok {
		debugLog.Printf("Session %d: settopic for unknown topic %d", sess.ID, msg.TopicID)
		return
	}

	// Re-selecting the current topic does not leave it; the join runs
	// again and refreshes the client's roster and tree snapshot.
	if sess.TopicID != protocol.NoTopic && sess.TopicID != topic.ID {
		s.leaveTopic(sess.TopicID, sess.ID)
	}

	s.joinTopic(topic, sess)
}

// joinTopic runs the join contract as one unit of work: register
// membership, give the joiner the roster and a full tree snapshot, then
// announce the joiner to everyone else. The joiner is a recognized
// member before the announcement goes out, so a handle change racing in
// behind this event still reaches it.
func (s *Server) joinTopic(topic *Topic, sess *Session) {
	s.topics.AddMember(topic.ID, sess.ID)
	sess.TopicID = topic.ID

	for _, memberID := range topic.Members() {
		if memberID == sess.ID {
			continue
		}
		member, ok := s.sessions.Get(memberID)
		if !ok {
			continue
		}
		s.send(sess, protocol.NewNewHandle(member.Handle, member.ID))
	}

	s.send(sess, protocol.NewFullTree(topic.Tree.Snapshot()))

	s.broadcastToTopic(topic, protocol.NewNewHandle(sess.Handle, sess.ID), sess.ID)

	debugLog.Printf("Session %d joined topic %d (%s)", sess.ID, topic.ID, topic.Name)
}

// leaveTopic removes the membership and tells the remaining members.
func (s *Server) leaveTopic(topicID, sessionID int64) {
	topic, ok := s.topics.Get(topicID)
	if !ok {
		return
	}
	s.topics.RemoveMember(topicID, sessionID)
	s.broadcastToTopic(topic, protocol.NewRemoveHandle(sessionID), sessionID)
}

// handleResponse posts a new message node into the sender's current
// topic: create the node, add it to the tree, write through to the
// store, then broadcast newmessage to every member including the author.
func (s *Server) handleResponse(sess *Session, raw []byte) {
	msg := &protocol.ResponseMessage{}
	if err := msg.Decode(raw); err != nil {
		debugLog.Printf("Session %d: invalid response: %v", sess.ID, err)
		if s.metrics != nil {
			s.metrics.RecordProtocolError()
		}
		return
	}

	if sess.TopicID == protocol.NoTopic {
		debugLog.Printf("Session %d: response without a topic", sess.ID)
		return
	}
	if msg.TopicID != sess.TopicID {
		debugLog.Printf("Session %d: response for topic %d but joined to %d", sess.ID, msg.TopicID, sess.TopicID)
		return
	}
	if len(msg.Text) > s.config.MaxMessageLength {
		debugLog.Printf("Session %d: message too long (%d bytes)", sess.ID, len(msg.Text))
		return
	}

	topic, ok := s.topics.Get(sess.TopicID)
	if !ok {
		return
	}

	// Reject before allocating: an unknown parent must leave no trace.
	if msg.ReplyID != protocol.RootParentID && !topic.Tree.HasNode(msg.ReplyID) {
		debugLog.Printf("Session %d: reply to unknown parent %d", sess.ID, msg.ReplyID)
		return
	}

	node := &MessageNode{
		ID:       s.messageIDs.Next(),
		Author:   sess.Handle,
		Text:     msg.Text,
		ParentID: msg.ReplyID,
		TopicID:  topic.ID,
		PostTime: time.Now().UnixMilli(),
	}
	if err := topic.Tree.AddNode(node); err != nil {
		errorLog.Printf("Session %d: failed to add message %d: %v", sess.ID, node.ID, err)
		return
	}

	if err := s.store.AddMessage(&database.Message{
		ID:       node.ID,
		TopicID:  node.TopicID,
		Author:   node.Author,
		Text:     node.Text,
		ParentID: node.ParentID,
		PostTime: node.PostTime,
	}, topic.ID); err != nil {
		// Surfaced to the process log only; the message is already live.
		errorLog.Printf("Failed to persist message %d: %v", node.ID, err)
	}

	if s.metrics != nil {
		s.metrics.RecordMessageBroadcast()
	}

	s.broadcastToTopic(topic, protocol.NewNewMessage(protocol.MessageJSON{
		User:     node.Author,
		Message:  node.Text,
		ID:       node.ID,
		ParentID: node.ParentID,
		PostTime: node.PostTime,
	}), noExclusion)
}

// handleChangeHandle renames the session and tells the other members of
// its current topic. The actor already knows its own handle.
func (s *Server) handleChangeHandle(sess *Session, raw []byte) {
	msg := &protocol.ChangeHandleMessage{}
	if err := msg.Decode(raw); err != nil {
		debugLog.Printf("Session %d: invalid changehandle: %v", sess.ID, err)
		if s.metrics != nil {
			s.metrics.RecordProtocolError()
		}
		return
	}

	if len(msg.Handle) > s.config.MaxHandleLength {
		debugLog.Printf("Session %d: handle too long (%d bytes)", sess.ID, len(msg.Handle))
		return
	}

	if err := s.sessions.SetHandle(sess.ID, msg.Handle); err != nil {
		return
	}

	if sess.TopicID == protocol.NoTopic {
		return
	}
	topic, ok := s.topics.Get(sess.TopicID)
	if !ok {
		return
	}
	s.broadcastToTopic(topic, protocol.NewChangeHandleBroadcast(sess.ID, msg.Handle), sess.ID)
}

// handleHeartbeat records liveness. Nothing ever evicts a silent
// session; this is bookkeeping only.
func (s *Server) handleHeartbeat(sess *Session) {
	sess.LastSeen = time.Now().UnixMilli()
}

// noExclusion makes broadcastToTopic deliver to every member.
const noExclusion int64 = -1

// send stamps, serializes and delivers one message to one session.
// Delivery is best-effort: a dead connection is logged and forgotten,
// reaping is the transport's job.
func (s *Server) send(sess *Session, msg protocol.Outbound) {
	data, err := protocol.Encode(msg, time.Now().UnixMilli())
	if err != nil {
		errorLog.Printf("Session %d: encode failed: %v", sess.ID, err)
		return
	}
	if err := sess.Conn.WriteText(data); err != nil {
		debugLog.Printf("Session %d: delivery failed: %v", sess.ID, err)
		if s.metrics != nil {
			s.metrics.RecordDeliveryFailure()
		}
		return
	}
	if s.metrics != nil {
		s.metrics.RecordMessageSent(msg)
	}
}

// broadcastToTopic delivers one message to every member of the topic
// except excludeID. A failed delivery to one recipient never aborts the
// rest of the loop.
func (s *Server) broadcastToTopic(topic *Topic, msg protocol.Outbound, excludeID int64) {
	delivered := 0
	for _, memberID := range topic.Members() {
		if memberID == excludeID {
			continue
		}
		member, ok := s.sessions.Get(memberID)
		if !ok {
			continue
		}
		s.send(member, msg)
		delivered++
	}
	if s.metrics != nil {
		s.metrics.RecordBroadcastFanout(delivered)
	}
}
