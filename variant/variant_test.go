package variant_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/latticehsm/hsm/variant"
)

func TestScalarConversions(t *testing.T) {
	tests := []struct {
		name string
		v    variant.Value
		i64  int64
		u64  uint64
		f64  float64
		b    bool
		s    string
	}{
		{"int", variant.NewInt(-7), -7, uint64(int64(-7)), -7, true, "-7"},
		{"uint", variant.NewUint(42), 42, 42, 42, true, "42"},
		{"float", variant.NewFloat(3.5), 3, 3, 3.5, true, "3.5"},
		{"bool-true", variant.NewBool(true), 1, 1, 1, true, "true"},
		{"bool-false", variant.NewBool(false), 0, 0, 0, false, "false"},
		{"string-num", variant.NewString("10"), 10, 10, 10, true, "10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.i64, tt.v.Int64())
			assert.Equal(t, tt.u64, tt.v.Uint64())
			assert.Equal(t, tt.f64, tt.v.Float64())
			assert.Equal(t, tt.b, tt.v.Bool())
			assert.Equal(t, tt.s, tt.v.String())
		})
	}
}

func TestInvalidValueZero(t *testing.T) {
	var v variant.Value
	assert.False(t, v.IsValid())
	assert.Equal(t, variant.Invalid, v.Kind())
	assert.Equal(t, "<invalid>", v.String())
}

func TestBytesClonedOnConstruction(t *testing.T) {
	src := []byte{1, 2, 3}
	v := variant.NewBytes(src)
	src[0] = 0xff
	assert.Equal(t, "010203", v.String())
}

func TestListEquality(t *testing.T) {
	a := variant.NewList(variant.NewInt(1), variant.NewString("x"))
	b := variant.NewList(variant.NewInt(1), variant.NewString("x"))
	c := variant.NewList(variant.NewInt(1), variant.NewString("y"))
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestPairAccessors(t *testing.T) {
	p := variant.NewPair(variant.NewInt(1), variant.NewString("two"))
	assert.Equal(t, int64(1), p.First().Int64())
	assert.Equal(t, "two", p.Second().String())
	assert.Equal(t, "(1,two)", p.String())
}

func TestMapSetGetPreservesOrder(t *testing.T) {
	m := variant.NewMap()
	m.Set(variant.NewString("b"), variant.NewInt(2))
	m.Set(variant.NewString("a"), variant.NewInt(1))

	keys := m.Keys()
	assert.Len(t, keys, 2)
	assert.Equal(t, "b", keys[0].String())
	assert.Equal(t, "a", keys[1].String())

	v, ok := m.Get(variant.NewString("a"))
	assert.True(t, ok)
	assert.Equal(t, int64(1), v.Int64())

	_, ok = m.Get(variant.NewString("missing"))
	assert.False(t, ok)
}

func TestMapSetOverwritesExistingKey(t *testing.T) {
	m := variant.NewMap()
	m.Set(variant.NewString("k"), variant.NewInt(1))
	m.Set(variant.NewString("k"), variant.NewInt(2))

	v, ok := m.Get(variant.NewString("k"))
	assert.True(t, ok)
	assert.Equal(t, int64(2), v.Int64())
	assert.Len(t, m.Keys(), 1)
}

func TestCloneIsIndependent(t *testing.T) {
	inner := variant.NewList(variant.NewInt(1))
	orig := variant.NewList(inner)
	clone := orig.Clone()
	assert.True(t, orig.Equal(clone))

	m := variant.NewMap()
	m.Set(variant.NewString("k"), variant.NewInt(1))
	mc := m.Clone()
	m.Set(variant.NewString("k"), variant.NewInt(99))
	v, _ := mc.Get(variant.NewString("k"))
	assert.Equal(t, int64(1), v.Int64(), "mutating the original map must not affect the clone")
}

func TestLessOrdersWithinKindAndAcrossKinds(t *testing.T) {
	assert.True(t, variant.NewInt(1).Less(variant.NewInt(2)))
	assert.False(t, variant.NewInt(2).Less(variant.NewInt(1)))
	assert.True(t, variant.NewString("a").Less(variant.NewString("b")))

	// Mismatched kinds order by Kind tag rather than panicking.
	lo, hi := variant.NewInt(100), variant.NewString("a")
	assert.True(t, lo.Less(hi))
	assert.False(t, hi.Less(lo))
}

func TestStringSlice(t *testing.T) {
	out := variant.StringSlice([]variant.Value{variant.NewInt(1), variant.NewString("x")})
	assert.Equal(t, []string{"1", "x"}, out)
	assert.Nil(t, variant.StringSlice(nil))
}
