package kafka

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jhump/protoreflect/dynamic"
	"github.com/stretchr/testify/require"

	"github.com/surrealdb/surreal-sync/core"
)

const testProto = `
syntax = "proto3";
package loadtest;

import "google/protobuf/timestamp.proto";

enum Status {
  STATUS_UNKNOWN = 0;
  STATUS_ACTIVE = 1;
}

message UserEvent {
  string id = 1;
  int64 count = 2;
  bool active = 3;
  repeated string tags = 4;
  Status status = 5;
  google.protobuf.Timestamp created_at = 6;
  bytes payload = 7;
}
`

func writeProto(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.proto")
	require.NoError(t, os.WriteFile(path, []byte(testProto), 0o644))
	return path
}

func TestNewProtoDecoderResolvesMessage(t *testing.T) {
	path := writeProto(t)

	d, err := NewProtoDecoder(path, "UserEvent")
	require.NoError(t, err)
	require.Equal(t, "loadtest.UserEvent", d.MessageName())

	d, err = NewProtoDecoder(path, "loadtest.UserEvent")
	require.NoError(t, err)
	require.Equal(t, "loadtest.UserEvent", d.MessageName())

	// Single-message schemas resolve implicitly.
	d, err = NewProtoDecoder(path, "")
	require.NoError(t, err)
	require.Equal(t, "loadtest.UserEvent", d.MessageName())

	_, err = NewProtoDecoder(path, "Nope")
	require.Error(t, err)

	_, err = NewProtoDecoder(filepath.Join(t.TempDir(), "absent.proto"), "")
	require.Error(t, err)
}

func TestDecodePayload(t *testing.T) {
	path := writeProto(t)
	decoder, err := NewProtoDecoder(path, "UserEvent")
	require.NoError(t, err)

	created := time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)
	msg := dynamic.NewMessage(decoder.message)
	msg.SetFieldByName("id", "evt-1")
	msg.SetFieldByName("count", int64(42))
	msg.SetFieldByName("active", true)
	msg.SetFieldByName("tags", []interface{}{"a", "b"})
	msg.SetFieldByName("status", int32(1))

	ts := dynamic.NewMessage(decoder.message.FindFieldByName("created_at").GetMessageType())
	ts.SetFieldByNumber(1, created.Unix())
	ts.SetFieldByNumber(2, int32(0))
	msg.SetFieldByName("created_at", ts)
	msg.SetFieldByName("payload", []byte{0x01, 0x02})

	payload, err := msg.Marshal()
	require.NoError(t, err)

	fields, err := decoder.Decode(payload)
	require.NoError(t, err)

	// Field order follows field numbers.
	require.Equal(t, []string{"id", "count", "active", "tags", "status", "created_at", "payload"}, fields.Names())

	id, _ := fields.Get("id")
	require.Equal(t, core.Text("evt-1"), id)
	count, _ := fields.Get("count")
	require.Equal(t, core.Int64(42), count)
	active, _ := fields.Get("active")
	require.Equal(t, core.Bool(true), active)
	tags, _ := fields.Get("tags")
	require.Equal(t, core.Array{Elem: core.Simple(core.KindText), Items: []core.Value{core.Text("a"), core.Text("b")}}, tags)
	status, _ := fields.Get("status")
	require.Equal(t, core.Text("STATUS_ACTIVE"), status)
	at, _ := fields.Get("created_at")
	require.Equal(t, created, at.(core.Timestamp).T)
	bin, _ := fields.Get("payload")
	require.Equal(t, core.Bytes{0x01, 0x02}, bin)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	decoder, err := NewProtoDecoder(writeProto(t), "UserEvent")
	require.NoError(t, err)

	_, err = decoder.Decode([]byte{0xff, 0xff, 0xff})
	require.Error(t, err)
}

func TestPositionCLIString(t *testing.T) {
	require.Equal(t, "broker-managed", Position{}.ToCLIString())
	p := Position{Topic: "events", Partition: 2, Offset: 100}
	require.Equal(t, "events/2/100", p.ToCLIString())
	require.True(t, p.Equal(Position{Topic: "events", Partition: 2, Offset: 100}))
	require.False(t, p.Equal(Position{}))
}
