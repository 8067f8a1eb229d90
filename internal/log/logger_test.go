package log

import (
	"bytes"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithComponent(t *testing.T) {
	buf := &bytes.Buffer{}
	Configure(Config{Level: "debug", Output: buf, Service: "test"})
	t.Cleanup(func() { Configure(Config{}) })

	l := WithComponent("loader")
	l.Debug().Str("store", "A.zarr").Msg("opened")

	entry := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "loader", entry["component"])
	assert.Equal(t, "test", entry["service"])
	assert.Equal(t, "A.zarr", entry["store"])
	assert.Equal(t, "debug", entry["level"])
}

func TestLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	Configure(Config{Level: "warn", Output: buf})
	t.Cleanup(func() { Configure(Config{}) })

	l := Base()
	l.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	l.Warn().Msg("kept")
	assert.Contains(t, buf.String(), `"service":"minian"`)
}

func TestConcurrentUse(t *testing.T) {
	buf := &bytes.Buffer{}
	t.Cleanup(func() { Configure(Config{}) })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			l := WithComponent("worker")
			_ = l.GetLevel()
		}()
		go func() {
			defer wg.Done()
			Configure(Config{Level: "error", Output: buf})
		}()
	}
	wg.Wait()

	assert.Equal(t, "error", Base().GetLevel().String())
	assert.Zero(t, buf.Len())
}
