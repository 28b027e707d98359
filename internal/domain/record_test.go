package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"scholarships/pkg/jsonpatch"
)

func TestNewRecordDropsClientID(t *testing.T) {
	body := jsonpatch.MustParse(`{"id":"client","name":"Golden Door"}`).(*jsonpatch.Object)
	rec := NewRecord("server", body)

	assert.Equal(t, "server", rec.ID)
	assert.False(t, rec.Body.Has(FieldID))
	assert.True(t, body.Has(FieldID), "the input body must not be modified")

	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"server","name":"Golden Door"}`, string(out))
}

func TestRecordCopyIsDeep(t *testing.T) {
	rec := NewRecord("1", jsonpatch.MustParse(`{"tags":["a"]}`).(*jsonpatch.Object))
	rec.Version = 3

	cp := rec.Copy()
	tags, _ := cp.Body.Get("tags")
	tags.(*jsonpatch.Array).Append(jsonpatch.String("b"))
	cp.SetRevision(4)

	assert.Equal(t, int64(3), rec.Revision())
	assert.True(t, jsonpatch.Equal(jsonpatch.MustParse(`{"tags":["a"]}`), rec.Body))
}

func TestRecordBSONRoundTrip(t *testing.T) {
	body := jsonpatch.MustParse(`{
		"name": "TheDream.US",
		"amount": 33000,
		"ratio": 0.25,
		"big": 123456789012345678901234567890,
		"open": true,
		"due": null,
		"tags": ["national", {"deadline": "2026-03-01T00:00:00Z"}]
	}`).(*jsonpatch.Object)
	rec := NewRecord("abc", body)
	rec.Version = 7

	data, err := bson.Marshal(rec)
	require.NoError(t, err)

	var raw bson.D
	require.NoError(t, bson.Unmarshal(data, &raw))
	assert.Equal(t, "_id", raw[0].Key)
	assert.Equal(t, VersionField, raw[1].Key)
	assert.Equal(t, int64(7), raw[1].Value)

	var decoded Record
	require.NoError(t, bson.Unmarshal(data, &decoded))
	assert.Equal(t, "abc", decoded.ID)
	assert.Equal(t, int64(7), decoded.Version)
	assert.True(t, jsonpatch.Equal(rec.Body, decoded.Body), "body should survive BSON")
	assert.Equal(t, rec.Body.Keys(), decoded.Body.Keys(), "member order should survive BSON")
}

func TestRecordFromForeignBSON(t *testing.T) {
	oid := primitive.NewObjectID()
	data, err := bson.Marshal(bson.D{
		{Key: "_id", Value: oid},
		{Key: "id", Value: "ignored"},
		{Key: "name", Value: "Legacy"},
		{Key: "count", Value: int32(2)},
	})
	require.NoError(t, err)

	var rec Record
	require.NoError(t, bson.Unmarshal(data, &rec))
	assert.Equal(t, oid.Hex(), rec.ID)
	assert.Equal(t, int64(0), rec.Version)
	assert.True(t, jsonpatch.Equal(jsonpatch.MustParse(`{"name":"Legacy","count":2}`), rec.Body))
}

func TestNumberToBSONKeepsLiteralValue(t *testing.T) {
	tests := map[string]interface{}{
		"7":                              int64(0),
		"0.25":                           float64(0),
		"0.1":                            float64(0),
		"1e3":                            int64(0),
		"0.10000000000000000001":         primitive.Decimal128{},
		"123456789012345678901234567890": primitive.Decimal128{},
	}

	for literal, want := range tests {
		t.Run(literal, func(t *testing.T) {
			got, err := numberToBSON(jsonpatch.Number(literal))
			require.NoError(t, err)
			assert.IsType(t, want, got)
		})
	}
}
