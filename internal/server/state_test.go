package server

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActiveSource(t *testing.T) {
	a := NewActiveSource("/tmp/live.sqlite")
	assert.Equal(t, "/tmp/live.sqlite", a.Path())

	a.Set("/tmp/uploaded.sqlite")
	assert.Equal(t, "/tmp/uploaded.sqlite", a.Path())

	wg := sync.WaitGroup{}
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			a.Set("/tmp/other.sqlite")
		}()
		go func() {
			defer wg.Done()
			_ = a.Path()
		}()
	}
	wg.Wait()
	assert.Equal(t, "/tmp/other.sqlite", a.Path())
}
