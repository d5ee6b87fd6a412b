package value_test

import (
	"testing"

	"github.com/clarete/golox/internal/value"
	"github.com/stretchr/testify/assert"
)

type fakeObject struct {
	value.Header
}

func (f *fakeObject) ObjType() value.ObjType { return value.ObjString }
func (f *fakeObject) Head() *value.Header    { return &f.Header }

func TestValueVariants(t *testing.T) {
	assert.True(t, value.Nil().IsNil())
	assert.True(t, value.Bool(true).IsBool())
	assert.True(t, value.Number(3.14).IsNumber())

	obj := &fakeObject{}
	v := value.Obj(obj)
	assert.True(t, v.IsObject())
	assert.Same(t, obj, v.AsObject())
	assert.True(t, v.IsObjType(value.ObjString))
	assert.False(t, v.IsObjType(value.ObjClass))
}

func TestIsFalsey(t *testing.T) {
	assert.True(t, value.Nil().IsFalsey())
	assert.True(t, value.Bool(false).IsFalsey())
	assert.False(t, value.Bool(true).IsFalsey())
	assert.False(t, value.Number(0).IsFalsey())
}

func TestEqual(t *testing.T) {
	assert.True(t, value.Number(1).Equal(value.Number(1)))
	assert.False(t, value.Number(1).Equal(value.Number(2)))
	assert.False(t, value.Number(1).Equal(value.Bool(true)))
	assert.True(t, value.Nil().Equal(value.Nil()))

	a := &fakeObject{}
	b := &fakeObject{}
	assert.True(t, value.Obj(a).Equal(value.Obj(a)))
	assert.False(t, value.Obj(a).Equal(value.Obj(b)))
}
