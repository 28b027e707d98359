package domain

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"scholarships/pkg/jsonpatch"
)

// VersionField is the stored name of Record.Version.
const VersionField = "_rev"

// MarshalBSON stores the record as {_id, _rev, ...body}.
func (r *Record) MarshalBSON() ([]byte, error) {
	d := bson.D{
		{Key: "_id", Value: r.ID},
		{Key: VersionField, Value: r.Version},
	}
	if r.Body != nil {
		for _, k := range r.Body.Keys() {
			if k == FieldID || k == "_id" || k == VersionField {
				continue
			}
			v, _ := r.Body.Get(k)
			bv, err := toBSON(v)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			d = append(d, bson.E{Key: k, Value: bv})
		}
	}
	return bson.Marshal(d)
}

// UnmarshalBSON restores a record stored by MarshalBSON. Documents written by
// other clients are accepted: an ObjectID _id becomes its hex string and a
// missing _rev is version zero.
func (r *Record) UnmarshalBSON(data []byte) error {
	elems, err := bson.Raw(data).Elements()
	if err != nil {
		return err
	}

	r.ID = ""
	r.Version = 0
	r.Body = jsonpatch.NewObject()

	for _, e := range elems {
		key, val := e.Key(), e.Value()
		switch key {
		case "_id":
			id, err := idFromBSON(val)
			if err != nil {
				return err
			}
			r.ID = id
		case VersionField:
			v, err := versionFromBSON(val)
			if err != nil {
				return err
			}
			r.Version = v
		case FieldID:
			// the API id always mirrors _id
		default:
			v, err := fromBSON(val)
			if err != nil {
				return fmt.Errorf("field %q: %w", key, err)
			}
			r.Body.Set(key, v)
		}
	}
	return nil
}

func idFromBSON(val bson.RawValue) (string, error) {
	switch val.Type {
	case bsontype.String:
		return val.StringValue(), nil
	case bsontype.ObjectID:
		return val.ObjectID().Hex(), nil
	default:
		return "", fmt.Errorf("unsupported _id type %s", val.Type)
	}
}

func versionFromBSON(val bson.RawValue) (int64, error) {
	switch val.Type {
	case bsontype.Int32:
		return int64(val.Int32()), nil
	case bsontype.Int64:
		return val.Int64(), nil
	case bsontype.Double:
		return int64(val.Double()), nil
	default:
		return 0, fmt.Errorf("%s has type %s", VersionField, val.Type)
	}
}

func toBSON(v jsonpatch.Value) (interface{}, error) {
	switch t := v.(type) {
	case nil, jsonpatch.Null:
		return nil, nil
	case jsonpatch.Bool:
		return bool(t), nil
	case jsonpatch.String:
		return string(t), nil
	case jsonpatch.Number:
		return numberToBSON(t)
	case *jsonpatch.Array:
		out := make(bson.A, 0, t.Len())
		for _, item := range t.Items() {
			bv, err := toBSON(item)
			if err != nil {
				return nil, err
			}
			out = append(out, bv)
		}
		return out, nil
	case *jsonpatch.Object:
		out := make(bson.D, 0, t.Len())
		for _, k := range t.Keys() {
			item, _ := t.Get(k)
			bv, err := toBSON(item)
			if err != nil {
				return nil, err
			}
			out = append(out, bson.E{Key: k, Value: bv})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value %T", v)
	}
}

// numberToBSON keeps numbers exact: int64 for integers that fit, a double when
// it reproduces the literal, Decimal128 otherwise.
func numberToBSON(n jsonpatch.Number) (interface{}, error) {
	s := string(n)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	if r, ok := n.Rat(); ok && r.IsInt() {
		if i, ok := n.Int64(); ok {
			return i, nil
		}
		d, err := primitive.ParseDecimal128(r.Num().String())
		if err != nil {
			return nil, fmt.Errorf("number %s out of range: %w", s, err)
		}
		return d, nil
	}
	if f, err := n.Float64(); err == nil && exactFloat(n, f) {
		return f, nil
	}
	d, err := primitive.ParseDecimal128(s)
	if err != nil {
		return nil, fmt.Errorf("number %s out of range: %w", s, err)
	}
	return d, nil
}

// exactFloat reports whether the shortest form of f has the value of n.
func exactFloat(n jsonpatch.Number, f float64) bool {
	want, ok := n.Rat()
	if !ok {
		return false
	}
	got, ok := new(big.Rat).SetString(strconv.FormatFloat(f, 'g', -1, 64))
	return ok && got.Cmp(want) == 0
}

func fromBSON(val bson.RawValue) (jsonpatch.Value, error) {
	switch val.Type {
	case bsontype.Null, bsontype.Undefined:
		return jsonpatch.Null{}, nil
	case bsontype.Boolean:
		return jsonpatch.Bool(val.Boolean()), nil
	case bsontype.String:
		return jsonpatch.String(val.StringValue()), nil
	case bsontype.Symbol:
		return jsonpatch.String(val.Symbol()), nil
	case bsontype.Int32:
		return jsonpatch.NumberFromInt(int64(val.Int32())), nil
	case bsontype.Int64:
		return jsonpatch.NumberFromInt(val.Int64()), nil
	case bsontype.Double:
		n, err := jsonpatch.NumberFromFloat(val.Double())
		if err != nil {
			return jsonpatch.Null{}, nil
		}
		return n, nil
	case bsontype.Decimal128:
		n := jsonpatch.Number(val.Decimal128().String())
		if _, ok := n.Rat(); !ok {
			return jsonpatch.Null{}, nil
		}
		return n, nil
	case bsontype.DateTime:
		t := time.UnixMilli(val.DateTime()).UTC()
		return jsonpatch.String(t.Format(time.RFC3339Nano)), nil
	case bsontype.ObjectID:
		return jsonpatch.String(val.ObjectID().Hex()), nil
	case bsontype.EmbeddedDocument:
		elems, err := val.Document().Elements()
		if err != nil {
			return nil, err
		}
		obj := jsonpatch.NewObject()
		for _, e := range elems {
			v, err := fromBSON(e.Value())
			if err != nil {
				return nil, err
			}
			obj.Set(e.Key(), v)
		}
		return obj, nil
	case bsontype.Array:
		values, err := val.Array().Values()
		if err != nil {
			return nil, err
		}
		arr := jsonpatch.NewArray()
		for _, item := range values {
			v, err := fromBSON(item)
			if err != nil {
				return nil, err
			}
			arr.Append(v)
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unsupported BSON type %s", val.Type)
	}
}
