package drone

import (
	"errors"
	"testing"
	"time"
)

const sampleLine = "mid:-1;x:0;y:0;z:0;mpry:0,0,0;pitch:0;roll:0;yaw:0;vgx:0;vgy:0;vgz:0;" +
	"templ:62;temph:65;tof:10;h:0;bat:87;baro:-26.36;time:0;agx:-1.00;agy:0.00;agz:-998.00;\r\n"

func TestTelemetryDecode(t *testing.T) {
	codec := NewTelemetryCodec(nil)

	u, err := codec.Decode([]byte(sampleLine))
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if len(u.Values) != 21 {
		t.Errorf("Expected 21 values, got %d", len(u.Values))
	}
	if len(u.Dropped) != 0 {
		t.Errorf("Expected nothing dropped, got %v", u.Dropped)
	}

	if v := u.Values["bat"]; v.Kind() != KindInt || v.Int() != 87 {
		t.Errorf("Expected bat=87 int, got %s %s", v.Kind(), v)
	}
	if v := u.Values["mid"]; v.Int() != -1 {
		t.Errorf("Expected mid=-1, got %s", v)
	}
	if v := u.Values["baro"]; v.Kind() != KindFloat || v.Float() != -26.36 {
		t.Errorf("Expected baro=-26.36 float, got %s %s", v.Kind(), v)
	}
	if v := u.Values["agz"]; v.Float() != -998 {
		t.Errorf("Expected agz=-998, got %s", v)
	}
	if v := u.Values["mpry"]; v.Kind() != KindText || v.String() != "0,0,0" {
		t.Errorf("Expected mpry text 0,0,0, got %s %s", v.Kind(), v)
	}
}

func TestTelemetryDecodeLenient(t *testing.T) {
	codec := NewTelemetryCodec(nil)

	u, err := codec.Decode([]byte("bat:abc;h:30;pitch:-100.00;wind:strong;;novalue;:5;yaw:1.5"))
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}

	if _, ok := u.Values["bat"]; ok {
		t.Errorf("Expected unparsable bat to be dropped")
	}
	if _, ok := u.Values["yaw"]; ok {
		t.Errorf("Expected fractional yaw to be dropped")
	}
	if len(u.Dropped) != 2 {
		t.Errorf("Expected 2 dropped keys, got %v", u.Dropped)
	}
	if v := u.Values["h"]; v.Int() != 30 {
		t.Errorf("Expected h=30, got %s", v)
	}
	if v := u.Values["pitch"]; v.Kind() != KindInt || v.Int() != -100 {
		t.Errorf("Expected pitch=-100, got %s %s", v.Kind(), v)
	}
	if v := u.Values["wind"]; v.Kind() != KindText || v.String() != "strong" {
		t.Errorf("Expected unknown key kept as text, got %s %s", v.Kind(), v)
	}
	if len(u.Values) != 3 {
		t.Errorf("Expected 3 values, got %d", len(u.Values))
	}
}

func TestTelemetryDecodeNoPairs(t *testing.T) {
	codec := NewTelemetryCodec(nil)

	for _, line := range []string{"", "garbage", ";;;", "\r\n"} {
		if _, err := codec.Decode([]byte(line)); !errors.Is(err, ErrNoPairs) {
			t.Errorf("%q: expected ErrNoPairs, got %v", line, err)
		}
	}
}

func TestTelemetryExtraKeyTypes(t *testing.T) {
	codec := NewTelemetryCodec(map[string]Kind{"armed": KindBool, "bat": KindFloat})

	u, err := codec.Decode([]byte("armed:true;bat:87.5"))
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if v := u.Values["armed"]; v.Kind() != KindBool || !v.Bool() {
		t.Errorf("Expected armed=true bool, got %s %s", v.Kind(), v)
	}
	if v := u.Values["bat"]; v.Kind() != KindFloat || v.Float() != 87.5 {
		t.Errorf("Expected overridden bat=87.5 float, got %s %s", v.Kind(), v)
	}
}

func TestParseKind(t *testing.T) {
	for name, want := range map[string]Kind{"int": KindInt, "Float": KindFloat, "bool": KindBool, "string": KindText} {
		got, err := ParseKind(name)
		if err != nil || got != want {
			t.Errorf("%s: expected %s, got %s (%v)", name, want, got, err)
		}
	}
	if _, err := ParseKind("complex"); err == nil {
		t.Errorf("Expected unknown kind to fail")
	}
}

func TestSnapshotMerge(t *testing.T) {
	var store snapshotStore
	codec := NewTelemetryCodec(nil)

	if s := store.load(); s.Seq() != 0 || s.Len() != 0 {
		t.Fatalf("Expected empty snapshot, got seq %d len %d", s.Seq(), s.Len())
	}

	first, _ := codec.Decode([]byte("bat:87;h:10"))
	at := time.Now()
	s1 := store.apply(first, at)

	second, _ := codec.Decode([]byte("bat:abc;h:20"))
	s2 := store.apply(second, at.Add(100*time.Millisecond))

	if v, _ := s2.Int("bat"); v != 87 {
		t.Errorf("Expected stale bat=87 kept, got %d", v)
	}
	if v, _ := s2.Int("h"); v != 20 {
		t.Errorf("Expected h=20, got %d", v)
	}
	if s2.Seq() != 2 || !s2.Captured().Equal(at.Add(100*time.Millisecond)) {
		t.Errorf("Expected seq 2 at second capture, got %d at %s", s2.Seq(), s2.Captured())
	}

	// published snapshots never change
	if v, _ := s1.Int("h"); v != 10 {
		t.Errorf("Expected first snapshot to keep h=10, got %d", v)
	}

	keys := s2.Keys()
	if len(keys) != 2 || keys[0] != "bat" || keys[1] != "h" {
		t.Errorf("Expected sorted keys [bat h], got %v", keys)
	}

	store.reset()
	if store.load().Len() != 0 {
		t.Errorf("Expected reset to clear the snapshot")
	}
}
