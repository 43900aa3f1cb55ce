package docstore

import (
	"cmp"
	"reflect"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Normalized value kinds, ordered the way MongoDB orders mixed types.
const (
	kindNull = iota
	kindNumber
	kindString
	kindBool
	kindDateTime
	kindOther
)

type value struct {
	kind int
	num  float64
	str  string
	b    bool
	ts   int64
}

func compareValues(a, b value) int {
	if a.kind != b.kind {
		return cmp.Compare(a.kind, b.kind)
	}
	switch a.kind {
	case kindNumber:
		return cmp.Compare(a.num, b.num)
	case kindString, kindOther:
		return cmp.Compare(a.str, b.str)
	case kindBool:
		switch {
		case a.b == b.b:
			return 0
		case !a.b:
			return -1
		default:
			return 1
		}
	case kindDateTime:
		return cmp.Compare(a.ts, b.ts)
	}
	return 0
}

func fromRaw(rv bson.RawValue) value {
	switch rv.Type {
	case bson.TypeNull, bson.TypeUndefined:
		return value{kind: kindNull}
	case bson.TypeString:
		return value{kind: kindString, str: rv.StringValue()}
	case bson.TypeBoolean:
		return value{kind: kindBool, b: rv.Boolean()}
	case bson.TypeInt32:
		return value{kind: kindNumber, num: float64(rv.Int32())}
	case bson.TypeInt64:
		return value{kind: kindNumber, num: float64(rv.Int64())}
	case bson.TypeDouble:
		return value{kind: kindNumber, num: rv.Double()}
	case bson.TypeDateTime:
		return value{kind: kindDateTime, ts: rv.DateTime()}
	}
	return value{kind: kindOther, str: string(rv.Value)}
}

// fromGo normalizes a filter value. Named types (e.g. `type Status string`)
// are handled through their underlying kind.
func fromGo(v any) value {
	switch t := v.(type) {
	case nil:
		return value{kind: kindNull}
	case time.Time:
		return value{kind: kindDateTime, ts: t.UnixMilli()}
	case *time.Time:
		if t == nil {
			return value{kind: kindNull}
		}
		return value{kind: kindDateTime, ts: t.UnixMilli()}
	case bson.DateTime:
		return value{kind: kindDateTime, ts: int64(t)}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return value{kind: kindString, str: rv.String()}
	case reflect.Bool:
		return value{kind: kindBool, b: rv.Bool()}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return value{kind: kindNumber, num: float64(rv.Int())}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return value{kind: kindNumber, num: float64(rv.Uint())}
	case reflect.Float32, reflect.Float64:
		return value{kind: kindNumber, num: rv.Float()}
	case reflect.Pointer:
		if rv.IsNil() {
			return value{kind: kindNull}
		}
		return fromGo(rv.Elem().Interface())
	}

	if _, data, err := bson.MarshalValue(v); err == nil {
		return value{kind: kindOther, str: string(data)}
	}
	return value{kind: kindOther}
}

func lookup(doc bson.Raw, field string) value {
	rv, err := doc.LookupErr(field)
	if err != nil {
		return value{kind: kindNull}
	}
	return fromRaw(rv)
}

func matches(doc bson.Raw, filters []Filter) bool {
	for _, f := range filters {
		if compareValues(lookup(doc, f.Field), fromGo(f.Value)) != 0 {
			return false
		}
	}
	return true
}
