package torm

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"
)

// Number is the set of types Scalar can decode into.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// ShapeKind names the ways a result set can be turned into a Go value.
type ShapeKind int

const (
	ShapeCollection ShapeKind = iota + 1
	ShapeScalar
	ShapeRaw
	ShapeStruct
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeCollection:
		return "collection"
	case ShapeScalar:
		return "scalar"
	case ShapeRaw:
		return "raw"
	case ShapeStruct:
		return "struct"
	}
	return fmt.Sprintf("ShapeKind(%d)", int(k))
}

// Shape decodes the rows of one statement into T. The set of shapes is
// closed: use Collection, Scalar, Raw or Struct.
type Shape[T any] interface {
	Kind() ShapeKind
	Decode(rows []Value) (T, error)
	sealed()
}

// Collection decodes every row into an element of a slice. Zero rows give
// an empty slice. For non-struct element types single-column rows are
// unwrapped, so Collection[string] reads "SELECT name FROM ...".
func Collection[E any]() Shape[[]E] {
	return collectionShape[E]{}
}

// Scalar decodes the first row into a number. A row with exactly one
// column is unwrapped; further rows are ignored. No rows and NULL give 0.
func Scalar[N Number]() Shape[N] {
	return scalarShape[N]{}
}

// Raw returns the intermediate values as they are.
func Raw() Shape[[]Value] {
	return rawShape{}
}

// Struct decodes at most one row into *T. No rows give nil; more than one
// row is a *TooManyRowsError.
func Struct[T any]() Shape[*T] {
	return structShape[T]{}
}

type collectionShape[E any] struct{}

func (collectionShape[E]) sealed()         {}
func (collectionShape[E]) Kind() ShapeKind { return ShapeCollection }

func (collectionShape[E]) Decode(rows []Value) ([]E, error) {
	out := make([]E, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	elem := reflect.TypeOf((*E)(nil)).Elem()
	in := rows
	if unwrapsColumns(elem) {
		in = make([]Value, len(rows))
		for i, r := range rows {
			in[i] = unwrapSingle(r)
		}
	}
	if err := decodeInto(in, &out); err != nil {
		return nil, &DecodeError{Type: reflect.TypeOf((*[]E)(nil)).Elem().String(), Err: err}
	}
	return out, nil
}

type scalarShape[N Number] struct{}

func (scalarShape[N]) sealed()         {}
func (scalarShape[N]) Kind() ShapeKind { return ShapeScalar }

func (scalarShape[N]) Decode(rows []Value) (N, error) {
	var out N
	if len(rows) == 0 {
		return out, nil
	}
	v := unwrapSingle(rows[0])
	if err := setNumber(reflect.ValueOf(&out).Elem(), v); err != nil {
		return out, &DecodeError{Type: reflect.TypeOf((*N)(nil)).Elem().String(), Err: err}
	}
	return out, nil
}

type rawShape struct{}

func (rawShape) sealed()         {}
func (rawShape) Kind() ShapeKind { return ShapeRaw }

func (rawShape) Decode(rows []Value) ([]Value, error) {
	if rows == nil {
		return []Value{}, nil
	}
	return rows, nil
}

type structShape[T any] struct{}

func (structShape[T]) sealed()         {}
func (structShape[T]) Kind() ShapeKind { return ShapeStruct }

func (structShape[T]) Decode(rows []Value) (*T, error) {
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
	default:
		return nil, &TooManyRowsError{Type: reflect.TypeOf((*T)(nil)).Elem().String(), Rows: len(rows)}
	}
	out := new(T)
	if err := decodeInto(rows[0], out); err != nil {
		return nil, &DecodeError{Type: reflect.TypeOf((*T)(nil)).Elem().String(), Err: err}
	}
	return out, nil
}

// unwrapSingle returns the only column of a one-column row, or v unchanged.
func unwrapSingle(v Value) Value {
	row, ok := v.(map[string]any)
	if !ok || len(row) != 1 {
		return v
	}
	for _, col := range row {
		return col
	}
	return v
}

func unwrapsColumns(t reflect.Type) bool {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct, reflect.Map, reflect.Interface:
		return false
	}
	return true
}

func setNumber(dst reflect.Value, v Value) error {
	switch dst.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := toInt64(v)
		if err != nil {
			return err
		}
		if dst.OverflowInt(n) {
			return fmt.Errorf("value %d overflows %s", n, dst.Type())
		}
		dst.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := toUint64(v)
		if err != nil {
			return err
		}
		if dst.OverflowUint(n) {
			return fmt.Errorf("value %d overflows %s", n, dst.Type())
		}
		dst.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := toFloat64(v)
		if err != nil {
			return err
		}
		if dst.Kind() == reflect.Float32 && math.Abs(f) > math.MaxFloat32 {
			return fmt.Errorf("value %g overflows %s", f, dst.Type())
		}
		dst.SetFloat(f)
	default:
		return errors.New("not a numeric type")
	}
	return nil
}

// Text is parsed as base 10 only; cast would read "010" as octal.
func toInt64(v Value) (int64, error) {
	switch x := v.(type) {
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", x)
		}
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("value %g is not an integer", x)
		}
		if x < math.MinInt64 || x >= math.MaxInt64 {
			return 0, fmt.Errorf("value %g overflows int64", x)
		}
		return int64(x), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(x)), 10, 64)
	}
	return cast.ToInt64E(v)
}

func toUint64(v Value) (uint64, error) {
	switch x := v.(type) {
	case int64:
		if x < 0 {
			return 0, fmt.Errorf("negative value %d for unsigned target", x)
		}
		return uint64(x), nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("value %g is not an integer", x)
		}
		if x < 0 || x >= math.MaxUint64 {
			return 0, fmt.Errorf("value %g overflows uint64", x)
		}
		return uint64(x), nil
	case string:
		return strconv.ParseUint(strings.TrimSpace(x), 10, 64)
	case []byte:
		return strconv.ParseUint(strings.TrimSpace(string(x)), 10, 64)
	}
	return cast.ToUint64E(v)
}

func toFloat64(v Value) (float64, error) {
	switch x := v.(type) {
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
	}
	return cast.ToFloat64E(v)
}

func decodeInto(in any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "db",
		WeaklyTypedInput: true,
		MatchName:        matchColumn,
		DecodeHook:       mapstructure.TextUnmarshallerHookFunc(),
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

// matchColumn lets first_name fill FirstName.
func matchColumn(column, field string) bool {
	return strings.EqualFold(strings.ReplaceAll(column, "_", ""), strings.ReplaceAll(field, "_", ""))
}
