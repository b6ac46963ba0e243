package growable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type BufferSuite struct {
	suite.Suite
}

func (s *BufferSuite) TestNew() {
	b := New(16)
	s.True(b.IsEmpty())
	s.Equal(0, b.Size())
	s.Equal(16, b.Cap())
	s.Len(b.Data(), 16)
}

func (s *BufferSuite) TestReserveKeepsContent() {
	b := New(4)
	b.Append([]byte("abcd"))
	b.Reserve(3)
	s.Equal(4, b.Cap())

	b.Reserve(5)
	s.Equal(8, b.Cap())
	s.Equal("abcd", b.String())

	b.Reserve(100)
	s.Equal(100, b.Cap())
	s.Equal("abcd", b.String())
}

func (s *BufferSuite) TestAppendGrows() {
	b := New(2)
	s.Equal(5, b.Append([]byte("hello")))
	s.Equal(6, b.AppendString(" world"))
	s.Equal("hello world", b.String())
	s.GreaterOrEqual(b.Cap(), b.Size())
	s.Equal(0, b.Append(nil))
}

func (s *BufferSuite) TestAppendRange() {
	b := New(0)
	s.Equal(3, b.AppendRange([]byte("0123456"), 2, 3))
	s.Equal("234", b.String())
	s.Equal(2, b.AppendRange([]byte("0123456"), 5, 10))
	s.Equal("23456", b.String())
	s.Equal(0, b.AppendRange([]byte("01"), 5, 1))
	s.Equal(0, b.AppendRange([]byte("01"), -1, 1))
}

func (s *BufferSuite) TestClearKeepsCapacity() {
	b := New(8)
	b.Append([]byte("0123456789"))
	c := b.Cap()
	b.Clear()
	s.True(b.IsEmpty())
	s.Equal(c, b.Cap())
}

func (s *BufferSuite) TestResize() {
	b := New(2)
	b.Resize(10)
	s.Equal(10, b.Size())
	b.Resize(-1)
	s.Equal(0, b.Size())
}

func TestBuffer(t *testing.T) {
	suite.Run(t, new(BufferSuite))
}

func TestZeroValue(t *testing.T) {
	var b Buffer
	assert.True(t, b.IsEmpty())
	assert.Equal(t, 0, b.Cap())
	b.Append([]byte{1})
	assert.Equal(t, 1, b.Size())
}
