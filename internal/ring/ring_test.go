package ring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndReadAt_S1(t *testing.T) {
	b := New()
	b.Add(NewEntry([]byte("hello\n")))
	b.Add(NewEntry([]byte("world\n")))

	require.Equal(t, 12, b.TotalSize())

	out := make([]byte, 64)
	n := b.ReadAt(out, 0)
	assert.Equal(t, "hello\nworld\n", string(out[:n]))
}

func TestOverflowEviction_S2(t *testing.T) {
	b := New()
	var evicted []*Entry
	labels := []string{"a1", "a2", "a3", "a4", "a5", "a6", "a7", "a8", "a9", "b0", "b1"}
	for _, l := range labels {
		if e := b.Add(NewEntry([]byte(l + "\n"))); e != nil {
			evicted = append(evicted, e)
		}
	}

	require.Equal(t, 10, b.Count())
	require.Len(t, evicted, 1)
	assert.Equal(t, "a1\n", string(evicted[0].Bytes()))

	require.Equal(t, 30, b.TotalSize())

	out := make([]byte, 64)
	n := b.ReadAt(out, 0)
	assert.Equal(t, "a2\na3\na4\na5\na6\na7\na8\na9\nb0\nb1\n", string(out[:n]))
}

func TestFIFOEvictionOrder(t *testing.T) {
	b := New()
	var evicted []string
	for i := 0; i < 25; i++ {
		e := b.Add(NewEntry([]byte(fmt.Sprintf("%d\n", i))))
		if e != nil {
			evicted = append(evicted, string(e.Bytes()))
		}
	}
	// the i-th entry evicted is the i-th entry inserted
	for i, v := range evicted {
		assert.Equal(t, fmt.Sprintf("%d\n", i), v)
	}
}

func TestCapacityInvariant(t *testing.T) {
	b := New()
	for i := 0; i < 47; i++ {
		b.Add(NewEntry([]byte(fmt.Sprintf("cmd%d\n", i))))
		assert.LessOrEqual(t, b.Count(), 10)

		sum := 0
		b.ForEach(func(e *Entry) { sum += e.Size() })
		assert.Equal(t, sum, b.TotalSize())
	}
}

func TestFindAtEmptyRing(t *testing.T) {
	b := New()
	_, _, ok := b.FindAt(0)
	assert.False(t, ok)
}

func TestReadCoverage(t *testing.T) {
	b := New()
	cmds := []string{"foo\n", "bar\n", "baz\n"}
	for _, c := range cmds {
		b.Add(NewEntry([]byte(c)))
	}

	var got []byte
	pos := 0
	for {
		buf := make([]byte, 2) // small reads to exercise cross-entry copying
		n := b.ReadAt(buf, pos)
		if n == 0 {
			break
		}
		got = append(got, buf[:n]...)
		pos += n
	}

	assert.Equal(t, "foo\nbar\nbaz\n", string(got))
}

func TestNthFromOldestAndOffsetOfNth(t *testing.T) {
	b := New()
	b.Add(NewEntry([]byte("hello\n")))
	b.Add(NewEntry([]byte("world\n")))

	e, ok := b.NthFromOldest(1)
	require.True(t, ok)
	assert.Equal(t, "world\n", string(e.Bytes()))

	assert.Equal(t, 6, b.OffsetOfNth(1))

	_, ok = b.NthFromOldest(2)
	assert.False(t, ok)
}
