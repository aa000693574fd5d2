package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestFromObjectInfersKindFromShape(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		obj  map[string]any
		want Kind
	}{
		{name: "geolocation", obj: map[string]any{"latitude": 13.7, "longitude": 100.5}, want: KindGeolocationResponse},
		{name: "error", obj: map[string]any{"error": "boom"}, want: KindErrorMessage},
		{name: "extraction", obj: map[string]any{"stores": []any{"A"}, "location": "Bangkok"}, want: KindStoreExtractionResponse},
		{name: "search", obj: map[string]any{"query": "q", "results": []any{}}, want: KindWebSearchResponse},
		{name: "health", obj: map[string]any{"agent_name": "geo", "status": "healthy"}, want: KindAgentHealth},
		{name: "string coordinates", obj: map[string]any{"latitude": "13.7", "longitude": "100.5"}, want: KindUnknown},
		{name: "nothing matches", obj: map[string]any{"foo": "bar"}, want: KindUnknown},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := FromObject(tc.obj)
			if got.Kind() != tc.want {
				t.Fatalf("FromObject() kind = %s, want %s", got.Kind(), tc.want)
			}
		})
	}
}

func TestFromObjectHonoursTypeTag(t *testing.T) {
	t.Parallel()

	msg := FromObject(map[string]any{"type": "HealthCheck"})
	if _, ok := msg.(HealthCheck); !ok {
		t.Fatalf("FromObject() = %#v, want HealthCheck", msg)
	}

	unknown := FromObject(map[string]any{"type": "Nope", "foo": 1.0})
	u, ok := unknown.(Unknown)
	if !ok {
		t.Fatalf("FromObject() = %#v, want Unknown", unknown)
	}
	if u.Raw["foo"] != 1.0 {
		t.Fatalf("Unknown.Raw = %#v, want the raw object", u.Raw)
	}
}

func TestEncodeTaggedRoundTrip(t *testing.T) {
	t.Parallel()

	in := StoreExtractionResponse{Stores: []string{"Uniqlo", "Zara"}, Location: "Siam"}
	raw, err := EncodeTagged(in)
	if err != nil {
		t.Fatalf("EncodeTagged() error = %v", err)
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got, ok := FromObject(obj).(StoreExtractionResponse)
	if !ok {
		t.Fatalf("FromObject() kind mismatch for %s", raw)
	}
	if got.Location != "Siam" || len(got.Stores) != 2 {
		t.Fatalf("FromObject() = %+v", got)
	}
}

func TestDecodeGeolocationResponseRequiresBothCoordinates(t *testing.T) {
	t.Parallel()

	_, err := Decode(KindGeolocationResponse, []byte(`{"latitude": 1.5}`))
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("Decode() error = %v, want ErrMalformed", err)
	}

	msg, err := Decode(KindGeolocationResponse, []byte(`{"latitude": 0, "longitude": 0}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got := msg.(GeolocationResponse); got.Latitude != 0 || got.Longitude != 0 {
		t.Fatalf("Decode() = %+v", got)
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	t.Parallel()

	_, err := Decode(Kind("Bogus"), []byte(`{}`))
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("Decode() error = %v, want ErrUnknownKind", err)
	}
}

func TestChatMessageContentWireFormat(t *testing.T) {
	t.Parallel()

	msg := ChatMessage{
		Timestamp: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		MsgID:     "m-1",
		Content:   []Content{StartSession{}, Text{Text: "Siam Paragon"}, EndSession{}},
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	for _, want := range []string{`"type":"start-session"`, `"type":"text","text":"Siam Paragon"`, `"type":"end-session"`} {
		if !strings.Contains(string(raw), want) {
			t.Fatalf("Marshal() = %s, missing %s", raw, want)
		}
	}

	decoded, err := Decode(KindChatMessage, []byte(`{"msg_id":"m-2","content":[{"type":"text","text":"hi"},{"type":"resource","uri":"x"}]}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	chat := decoded.(ChatMessage)
	if len(chat.Content) != 2 {
		t.Fatalf("content len = %d, want 2", len(chat.Content))
	}
	if text, ok := chat.Content[0].(Text); !ok || text.Text != "hi" {
		t.Fatalf("content[0] = %#v", chat.Content[0])
	}
	if other, ok := chat.Content[1].(UnknownContent); !ok || other.Type != "resource" {
		t.Fatalf("content[1] = %#v", chat.Content[1])
	}
}

func TestDigests(t *testing.T) {
	t.Parallel()

	for _, k := range Kinds {
		d := SchemaDigest(k)
		if !strings.HasPrefix(d, "model:") {
			t.Fatalf("SchemaDigest(%s) = %s", k, d)
		}
		got, ok := KindForDigest(d)
		if !ok || got != k {
			t.Fatalf("KindForDigest(%s) = %s, %v", d, got, ok)
		}
	}

	if ProtocolDigest("Geolocation-Protocol", "0.1.0") == ProtocolDigest("Geolocation-Protocol", "0.2.0") {
		t.Fatal("ProtocolDigest() ignores version")
	}

	a := DeriveAddress("seed")
	if a != DeriveAddress("seed") || !strings.HasPrefix(string(a), "agent1") {
		t.Fatalf("DeriveAddress() = %s", a)
	}
}
