package deeplink

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch_DeliversToAllListeners(t *testing.T) {
	d := NewDispatcher("myapp")
	defer d.Close()

	var a, b []string
	unsubA := d.Listen(func(u string) { a = append(a, u) })
	unsubB := d.Listen(func(u string) { b = append(b, u) })
	defer unsubA()
	defer unsubB()

	d.Dispatch("myapp://auth/callback?code=1")
	d.Dispatch("myapp://auth/callback?code=2")

	assert.Equal(t, []string{"myapp://auth/callback?code=1", "myapp://auth/callback?code=2"}, a)
	assert.Equal(t, a, b)
}

func TestDispatch_DropsForeignScheme(t *testing.T) {
	d := NewDispatcher("myapp")
	defer d.Close()

	var got []string
	defer d.Listen(func(u string) { got = append(got, u) })()

	d.Dispatch("https://example.com/callback?code=1")
	d.Dispatch("otherapp://auth/callback?code=2")
	d.Dispatch("::not a url::")
	d.Dispatch("myapp://auth/callback?code=3")

	require.Len(t, got, 1)
	assert.Equal(t, "myapp://auth/callback?code=3", got[0])
}

func TestDispatch_SchemeMatchIsCaseInsensitive(t *testing.T) {
	d := NewDispatcher("MyApp")
	defer d.Close()

	var got []string
	defer d.Listen(func(u string) { got = append(got, u) })()

	d.Dispatch("myapp://auth/callback")
	assert.Len(t, got, 1)
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	d := NewDispatcher("myapp")
	defer d.Close()

	var got []string
	unsub := d.Listen(func(u string) { got = append(got, u) })

	d.Dispatch("myapp://auth/callback?code=1")
	unsub()
	d.Dispatch("myapp://auth/callback?code=2")

	assert.Equal(t, []string{"myapp://auth/callback?code=1"}, got)
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	d := NewDispatcher("myapp")

	unsub := d.Listen(func(string) {})
	unsub()
	unsub()

	d.Close()
	unsub() // safe after Close too
}

func TestListen_AfterCloseIsInert(t *testing.T) {
	d := NewDispatcher("myapp")
	d.Close()

	called := false
	unsub := d.Listen(func(string) { called = true })
	d.Dispatch("myapp://auth/callback")
	unsub()

	assert.False(t, called)
}

func TestDispatch_OrderPreservedUnderConcurrency(t *testing.T) {
	d := NewDispatcher("myapp")
	defer d.Close()

	var mu sync.Mutex
	var got []string
	defer d.Listen(func(u string) {
		mu.Lock()
		got = append(got, u)
		mu.Unlock()
	})()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Dispatch(fmt.Sprintf("myapp://auth/callback?code=%d", i))
		}()
	}
	wg.Wait()

	// Arrival order across goroutines is unspecified, but every event must
	// arrive exactly once.
	assert.Len(t, got, 8)
	seen := make(map[string]bool)
	for _, u := range got {
		assert.False(t, seen[u])
		seen[u] = true
	}
}
