package id

import (
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hex32 = regexp.MustCompile(`^[0-9a-f]{32}$`)

func TestConnection_Format(t *testing.T) {
	got := Connection()
	assert.Regexp(t, hex32, got)
	assert.True(t, Valid(got))
}

func TestUUID_Format(t *testing.T) {
	got := UUID()
	assert.Len(t, got, 36)
	assert.True(t, Valid(got))
}

func TestShort(t *testing.T) {
	assert.Len(t, Short(), 16)
}

func TestValid(t *testing.T) {
	assert.False(t, Valid("conn-1"))
	assert.False(t, Valid(""))
}

func TestConnection_Unique(t *testing.T) {
	const n = 1000
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, n)
		wg   sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := Connection()
			mu.Lock()
			seen[v] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, seen, n)
}
