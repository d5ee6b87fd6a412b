package heap

import (
	"fmt"
	"strconv"

	"github.com/clarete/golox/internal/value"
)

// Stringify renders v the way the language's print statement and REPL
// echo do: "nil"/"true"/"false", a minimal float representation, or
// the object's own textual form.
func Stringify(v value.Value) string {
	switch {
	case v.IsNil():
		return "nil"
	case v.IsBool():
		if v.AsBool() {
			return "true"
		}
		return "false"
	case v.IsNumber():
		return strconv.FormatFloat(v.AsNumber(), 'g', -1, 64)
	case v.IsObject():
		return stringifyObject(v.AsObject())
	default:
		return "?"
	}
}

func stringifyObject(o value.Object) string {
	switch v := o.(type) {
	case *String:
		return v.Go()
	case *Function:
		if v.Name == nil {
			return "<script>"
		}
		return fmt.Sprintf("<fn %s>", v.Name.Go())
	case *NativeFunction:
		return fmt.Sprintf("<native fn %s>", v.Name)
	case *Closure:
		return stringifyObject(v.Function)
	case *Upvalue:
		return "<upvalue>"
	case *Class:
		return v.Name.Go()
	case *Instance:
		return fmt.Sprintf("%s instance", v.Class.Name.Go())
	case *BoundMethod:
		return stringifyObject(v.Method)
	default:
		return "<object>"
	}
}
