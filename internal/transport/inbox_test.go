package transport

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestInbox_DrainEmpties(t *testing.T) {
	b := NewInbox()
	b.Push([]byte("a"))
	b.Push([]byte("b"))
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, b.Drain())
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Drain())
}

func TestInbox_ConcurrentProducersKeepPerProducerOrder(t *testing.T) {
	b := NewInbox()
	const producers, each = 8, 200
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				b.Push([]byte(fmt.Sprintf("%d:%d", p, i)))
			}
		}(p)
	}
	wg.Wait()

	frames := b.Drain()
	assert.Len(t, frames, producers*each)
	next := make([]int, producers)
	for _, f := range frames {
		var p, i int
		_, err := fmt.Sscanf(string(f), "%d:%d", &p, &i)
		assert.NoError(t, err)
		assert.Equal(t, next[p], i, "producer %d out of order", p)
		next[p]++
	}
}

func TestProperty_InboxFIFO(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := NewInbox()
		var want []string
		ops := rapid.SliceOfN(rapid.IntRange(0, 3), 1, 50).Draw(t, "ops")
		var got []string
		for i, op := range ops {
			if op == 0 {
				for _, f := range b.Drain() {
					got = append(got, string(f))
				}
				continue
			}
			s := fmt.Sprint(i)
			want = append(want, s)
			b.Push([]byte(s))
		}
		for _, f := range b.Drain() {
			got = append(got, string(f))
		}
		if len(got) != len(want) {
			t.Fatalf("got %d frames, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("frame %d: got %s, want %s", i, got[i], want[i])
			}
		}
	})
}
