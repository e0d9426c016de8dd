package aggregator

import (
	"fmt"
	"strconv"

	"github.com/valyala/fastjson"
)

var parserPool fastjson.ParserPool

// maxLoggedPayload bounds payloads quoted in warnings.
const maxLoggedPayload = 256

// withObject parses payload as a JSON object and passes it to fn. The
// value is only valid inside fn.
func withObject(payload string, fn func(v *fastjson.Value) error) error {
	p := parserPool.Get()
	defer parserPool.Put(p)

	v, err := p.Parse(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPayload, err)
	}
	if v.Type() != fastjson.TypeObject {
		return fmt.Errorf("%w: not an object", ErrPayload)
	}
	return fn(v)
}

// int64Field reads an integer field that may be encoded as a JSON number or
// as a numeric string.
func int64Field(v *fastjson.Value, key string) (int64, error) {
	f := v.Get(key)
	if f == nil || f.Type() == fastjson.TypeNull {
		return 0, fmt.Errorf("%w: missing %s", ErrPayload, key)
	}
	switch f.Type() {
	case fastjson.TypeNumber:
		if n, err := f.Int64(); err == nil {
			return n, nil
		}
		// Whole numbers written with an exponent or fraction.
		fl, err := f.Float64()
		if err != nil || fl != float64(int64(fl)) {
			return 0, fmt.Errorf("%w: %s is not an integer", ErrPayload, key)
		}
		return int64(fl), nil
	case fastjson.TypeString:
		n, err := strconv.ParseInt(string(f.GetStringBytes()), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s is not an integer", ErrPayload, key)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: %s has type %s", ErrPayload, key, f.Type())
	}
}
