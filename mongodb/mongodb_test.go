package mongodb

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/surrealdb/surreal-sync/core"
)

func rawDoc(t *testing.T, doc interface{}) bson.Raw {
	t.Helper()
	b, err := bson.Marshal(doc)
	require.NoError(t, err)
	return bson.Raw(b)
}

func TestDocumentToRow(t *testing.T) {
	doc := rawDoc(t, bson.D{
		{Key: "_id", Value: "x"},
		{Key: "v", Value: int32(1)},
		{Key: "score", Value: 1.5},
		{Key: "big", Value: int64(1 << 40)},
		{Key: "ok", Value: true},
		{Key: "at", Value: primitive.NewDateTimeFromTime(time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC))},
	})

	row, err := documentToRow(nil, "docs", doc)
	require.NoError(t, err)
	require.Equal(t, core.Text("x"), row.PrimaryKey)
	require.Equal(t, []string{"_id", "v", "score", "big", "ok", "at"}, row.Fields.Names())

	v, _ := row.Fields.Get("v")
	require.Equal(t, core.Int32(1), v)
	at, _ := row.Fields.Get("at")
	require.Equal(t, time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC), at.(core.Timestamp).T)
}

func TestDocumentToRowRequiresID(t *testing.T) {
	_, err := documentToRow(nil, "docs", rawDoc(t, bson.D{{Key: "v", Value: 1}}))
	require.Error(t, err)
}

func TestDecodeValueDecimal128(t *testing.T) {
	d, err := primitive.ParseDecimal128("12345678901234.56789")
	require.NoError(t, err)
	doc := rawDoc(t, bson.D{{Key: "balance", Value: d}})

	fields, err := decodeDocument(nil, "docs", doc)
	require.NoError(t, err)
	balance, _ := fields.Get("balance")
	require.Equal(t, core.Decimal{Text: "12345678901234.56789"}, balance)
}

func TestDecodeValueObjectIDAndNested(t *testing.T) {
	oid := primitive.NewObjectID()
	doc := rawDoc(t, bson.D{
		{Key: "_id", Value: oid},
		{Key: "meta", Value: bson.D{{Key: "tags", Value: bson.A{"a", "b"}}}},
	})

	fields, err := decodeDocument(nil, "docs", doc)
	require.NoError(t, err)

	id, _ := fields.Get("_id")
	require.Equal(t, core.Text(oid.Hex()), id)

	meta, _ := fields.Get("meta")
	require.JSONEq(t, `{"tags": ["a", "b"]}`, string(meta.(core.Json).Raw))
}

func makeEvent(t *testing.T, opType, collection string, fullDoc, docKey bson.D) *streamEvent {
	t.Helper()
	raw := rawDoc(t, bson.D{
		{Key: "operationType", Value: opType},
		{Key: "ns", Value: bson.D{{Key: "db", Value: "test"}, {Key: "coll", Value: collection}}},
		{Key: "fullDocument", Value: fullDoc},
		{Key: "documentKey", Value: docKey},
	})
	var ev streamEvent
	require.NoError(t, bson.Unmarshal(raw, &ev))
	return &ev
}

func TestEventMapping(t *testing.T) {
	stream := &changeStream{}

	insert := makeEvent(t, "insert", "docs",
		bson.D{{Key: "_id", Value: "x"}, {Key: "v", Value: int32(1)}},
		bson.D{{Key: "_id", Value: "x"}})
	c, err := stream.toChange(insert)
	require.NoError(t, err)
	require.Equal(t, core.OpCreate, c.Op)
	require.Equal(t, core.Text("x"), c.Key)
	require.NotNil(t, c.After)

	update := makeEvent(t, "update", "docs",
		bson.D{{Key: "_id", Value: "x"}, {Key: "v", Value: int32(2)}},
		bson.D{{Key: "_id", Value: "x"}})
	c, err = stream.toChange(update)
	require.NoError(t, err)
	require.Equal(t, core.OpUpdate, c.Op)

	del := makeEvent(t, "delete", "docs", nil, bson.D{{Key: "_id", Value: "x"}})
	c, err = stream.toChange(del)
	require.NoError(t, err)
	require.Equal(t, core.OpDelete, c.Op)
	require.Equal(t, core.Text("x"), c.Key)
	require.Nil(t, c.After)
}

func TestEventMappingStructuralEventsAreFatal(t *testing.T) {
	stream := &changeStream{}
	for _, opType := range []string{"drop", "rename", "invalidate"} {
		ev := makeEvent(t, opType, "docs", nil, nil)
		_, err := stream.toChange(ev)
		var unsErr *core.UnsupportedError
		require.True(t, errors.As(err, &unsErr), opType)
	}
}
