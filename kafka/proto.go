// Package kafka implements the Kafka source adapter: a consumer-group reader
// whose protobuf payloads are decoded against .proto schemas parsed at
// runtime, without code generation. Offsets are committed to the broker only
// after the corresponding target write succeeded.
package kafka

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/jhump/protoreflect/dynamic"

	"github.com/surrealdb/surreal-sync/core"
)

// ProtoDecoder decodes protobuf message payloads against a runtime-parsed
// schema.
type ProtoDecoder struct {
	message *desc.MessageDescriptor
}

// NewProtoDecoder parses the .proto file and resolves the named message
// type. When messageType is empty and the file declares exactly one message,
// that message is used.
func NewProtoDecoder(protoPath, messageType string) (*ProtoDecoder, error) {
	parser := protoparse.Parser{}
	files, err := parser.ParseFiles(protoPath)
	if err != nil {
		return nil, &core.ConfigError{Msg: "parsing proto schema " + protoPath, Err: err}
	}
	if len(files) == 0 {
		return nil, &core.ConfigError{Msg: "proto schema " + protoPath + " is empty"}
	}
	file := files[0]

	if messageType == "" {
		messages := file.GetMessageTypes()
		if len(messages) != 1 {
			return nil, &core.ConfigError{Msg: fmt.Sprintf("proto schema %s declares %d messages, name one explicitly", protoPath, len(messages))}
		}
		return &ProtoDecoder{message: messages[0]}, nil
	}

	md := file.FindMessage(messageType)
	if md == nil {
		// Unqualified names resolve against the file's package.
		if pkg := file.GetPackage(); pkg != "" {
			md = file.FindMessage(pkg + "." + messageType)
		}
	}
	if md == nil {
		return nil, &core.ConfigError{Msg: fmt.Sprintf("message type %q not found in %s", messageType, protoPath)}
	}
	return &ProtoDecoder{message: md}, nil
}

// MessageName returns the fully-qualified decoded message type.
func (d *ProtoDecoder) MessageName() string { return d.message.GetFullyQualifiedName() }

// Decode unmarshals one payload into ordered fields. Field order follows the
// schema's field numbers.
func (d *ProtoDecoder) Decode(payload []byte) (*core.Fields, error) {
	msg := dynamic.NewMessage(d.message)
	if err := msg.Unmarshal(payload); err != nil {
		return nil, &core.TypeConversionError{Field: d.MessageName(), Got: "protobuf payload", Err: err}
	}

	fds := append([]*desc.FieldDescriptor(nil), d.message.GetFields()...)
	sort.Slice(fds, func(i, j int) bool { return fds[i].GetNumber() < fds[j].GetNumber() })

	fields := core.NewFields()
	for _, fd := range fds {
		v, err := fieldValue(msg, fd)
		if err != nil {
			return nil, err
		}
		fields.Set(fd.GetName(), v)
	}
	return fields, nil
}

func fieldValue(msg *dynamic.Message, fd *desc.FieldDescriptor) (core.Value, error) {
	path := fd.GetFullyQualifiedName()
	if fd.IsRepeated() && !fd.IsMap() {
		raw := msg.GetField(fd).([]interface{})
		items := make([]core.Value, 0, len(raw))
		var elem core.Type
		for i, rv := range raw {
			v, err := scalarValue(path, fd, rv)
			if err != nil {
				return nil, err
			}
			if i == 0 {
				elem = v.Type()
			}
			items = append(items, v)
		}
		return core.Array{Elem: elem, Items: items}, nil
	}
	if fd.IsMap() {
		raw := msg.GetField(fd).(map[interface{}]interface{})
		valueField := fd.GetMessageType().FindFieldByNumber(2)
		entries := make([]core.MapEntry, 0, len(raw))
		for k, rv := range raw {
			v, err := scalarValue(path, valueField, rv)
			if err != nil {
				return nil, err
			}
			entries = append(entries, core.MapEntry{K: core.Text(fmt.Sprint(k)), V: v})
		}
		sort.Slice(entries, func(i, j int) bool {
			return string(entries[i].K.(core.Text)) < string(entries[j].K.(core.Text))
		})
		var valueType core.Type
		if len(entries) > 0 {
			valueType = entries[0].V.Type()
		}
		return core.Map{Key: core.Simple(core.KindText), Value: valueType, Entries: entries}, nil
	}
	return scalarValue(path, fd, msg.GetField(fd))
}

func scalarValue(path string, fd *desc.FieldDescriptor, raw interface{}) (core.Value, error) {
	switch v := raw.(type) {
	case nil:
		return core.Null{}, nil
	case bool:
		return core.Bool(v), nil
	case int32:
		if enum := fd.GetEnumType(); enum != nil {
			if ev := enum.FindValueByNumber(v); ev != nil {
				return core.Text(ev.GetName()), nil
			}
		}
		return core.Int32(v), nil
	case int64:
		return core.Int64(v), nil
	case uint32:
		return core.Int64(int64(v)), nil
	case uint64:
		return core.Int64(int64(v)), nil
	case float32:
		return core.Float32(v), nil
	case float64:
		return core.Float64(v), nil
	case string:
		return core.Text(v), nil
	case []byte:
		return core.Bytes(v), nil
	case *dynamic.Message:
		return messageValue(path, v)
	case interface {
		GetSeconds() int64
		GetNanos() int32
	}:
		// Well-known timestamps decode to the generated Go type rather than
		// a dynamic message.
		if mt := fd.GetMessageType(); mt != nil && mt.GetFullyQualifiedName() == "google.protobuf.Timestamp" {
			return core.Timestamp{T: time.Unix(v.GetSeconds(), int64(v.GetNanos())).UTC()}, nil
		}
	}
	return nil, &core.UnsupportedError{What: fmt.Sprintf("protobuf value %T at %s", raw, path)}
}

// messageValue maps nested messages: well-known timestamps become temporal
// values, everything else serialises to JSON.
func messageValue(path string, msg *dynamic.Message) (core.Value, error) {
	if msg.GetMessageDescriptor().GetFullyQualifiedName() == "google.protobuf.Timestamp" {
		seconds, _ := msg.GetFieldByNumber(1).(int64)
		nanos, _ := msg.GetFieldByNumber(2).(int32)
		return core.Timestamp{T: time.Unix(seconds, int64(nanos)).UTC()}, nil
	}
	b, err := msg.MarshalJSON()
	if err != nil {
		return nil, &core.TypeConversionError{Field: path, Got: "protobuf message", Err: err}
	}
	return core.Json{Raw: json.RawMessage(b)}, nil
}
