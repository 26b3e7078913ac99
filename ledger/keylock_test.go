package ledger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutexSerialisesOneKey(t *testing.T) {
	m := newKeyedMutex[string]()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("alice")
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
	assert.Equal(t, 0, m.size())
}

func TestKeyedMutexKeysAreIndependent(t *testing.T) {
	m := newKeyedMutex[string]()
	unlockA := m.Lock("alice")

	done := make(chan struct{})
	go func() {
		unlock := m.Lock("bob")
		unlock()
		close(done)
	}()
	<-done

	require.Equal(t, 1, m.size())
	unlockA()
	require.Equal(t, 0, m.size())
}
