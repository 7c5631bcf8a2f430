package protocol

import (
	"encoding/json"
	"testing"

	"pgregory.net/rapid"
)

// TestEnvelopeRoundTrip checks that any frame built from valid envelope
// fields decodes back to the same fields.
func TestEnvelopeRoundTrip(t *testing.T) {
	kinds := []string{
		KindResponse, KindSetTopic, KindChangeHandle, KindHeartbeat, KindTest,
		KindMyHandle, KindNewHandle, KindRemoveHandle, KindFullTree, KindNewMessage,
	}

	rapid.Check(t, func(t *rapid.T) {
		kind := rapid.SampledFrom(kinds).Draw(t, "kind")
		sessionID := rapid.Int64().Draw(t, "sessionID")
		auth := rapid.String().Draw(t, "auth")

		frame, err := json.Marshal(map[string]any{
			KeyKind:   kind,
			KeySender: sessionID,
			KeyAuth:   auth,
		})
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}

		env, err := DecodeEnvelope(frame)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}

		if env.Kind != kind {
			t.Fatalf("kind mismatch: got %q, want %q", env.Kind, kind)
		}
		if env.SessionID != sessionID {
			t.Fatalf("session id mismatch: got %d, want %d", env.SessionID, sessionID)
		}
		if env.AuthToken != auth {
			t.Fatalf("auth mismatch: got %q, want %q", env.AuthToken, auth)
		}
	})
}

// TestResponseDecodeNeverPanics feeds arbitrary response payloads through
// Decode. Decode must either fill every field or return an error.
func TestResponseDecodeNeverPanics(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		payload := map[string]any{}
		if rapid.Bool().Draw(t, "hasText") {
			payload["text"] = rapid.String().Draw(t, "text")
		}
		if rapid.Bool().Draw(t, "hasReply") {
			payload["replyid"] = rapid.Int64().Draw(t, "replyid")
		}
		if rapid.Bool().Draw(t, "hasTopic") {
			payload["topicid"] = rapid.Int64().Draw(t, "topicid")
		}

		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}

		var msg ResponseMessage
		decodeErr := msg.Decode(data)

		complete := len(payload) == 3
		if complete && decodeErr != nil {
			t.Fatalf("complete payload rejected: %v", decodeErr)
		}
		if !complete && decodeErr == nil {
			t.Fatalf("incomplete payload %v accepted", payload)
		}
	})
}
