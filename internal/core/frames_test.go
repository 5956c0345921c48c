package core

import (
	"encoding/json"
	"testing"

	"github.com/hearthhq/hearth/internal/domain"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	frame, err := Encode(TypeJoinRoom, JoinRoomPayload{RoomID: "kitchen", UserID: "u1", UserName: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	env, err := Decode(frame)
	if err != nil {
		t.Fatal(err)
	}
	if env.Type != TypeJoinRoom {
		t.Fatalf("type = %q", env.Type)
	}
	var p JoinRoomPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.RoomID != "kitchen" || p.UserName != "alice" {
		t.Fatalf("payload = %+v", p)
	}
}

func TestEncodeNilPayloadOmitted(t *testing.T) {
	frame, err := Encode(TypePing, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(frame) != `{"type":"ping"}` {
		t.Fatalf("frame = %s", frame)
	}
}

func TestDecodeMalformed(t *testing.T) {
	if _, err := Decode(Frame(`{"type":`)); err == nil {
		t.Fatal("malformed frame decoded without error")
	}
}

func TestSendMessagePayloadOptionalFields(t *testing.T) {
	frame, err := Encode(TypeSendMessage, SendMessagePayload{Content: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	env, _ := Decode(frame)
	var p SendMessagePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.ConversationID != domain.ConversationID("") || p.ParentID != "" {
		t.Fatalf("optional fields = %+v", p)
	}
}
