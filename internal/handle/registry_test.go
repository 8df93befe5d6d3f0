package handle

import (
	stderrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VAR-META-Tech/intent-verification/internal/errors"
	"github.com/VAR-META-Tech/intent-verification/internal/logging"
)

func TestRegistryRelease(t *testing.T) {
	r := NewRegistry(logging.Discard())

	r.Register(0x1000, AnalysisResult)
	r.Register(0x2000, String)
	assert.Equal(t, 2, r.Live())

	require.NoError(t, r.Release(0x1000, AnalysisResult))
	assert.Equal(t, 1, r.Live())

	err := r.Release(0x1000, AnalysisResult)
	assert.True(t, stderrors.Is(err, errors.ErrDoubleRelease))

	err = r.Release(0x2000, AnalysisResult)
	assert.True(t, stderrors.Is(err, errors.ErrDoubleRelease))
	assert.Equal(t, 1, r.Live(), "a mismatched release keeps the allocation")

	require.NoError(t, r.Release(0x2000, String))
	assert.Equal(t, 0, r.Live())
}

func TestRegistryZeroAddress(t *testing.T) {
	r := NewRegistry(logging.Discard())

	r.Register(0, String)
	assert.Equal(t, 0, r.Live())
	assert.NoError(t, r.Release(0, String))
	assert.NoError(t, r.Release(0, AnalysisResult))
}

func TestRegistryReusedAddress(t *testing.T) {
	r := NewRegistry(logging.Discard())

	r.Register(0x3000, String)
	require.NoError(t, r.Release(0x3000, String))
	r.Register(0x3000, AnalysisResult)
	assert.NoError(t, r.Release(0x3000, AnalysisResult))
}

func TestRegistryConcurrentUse(t *testing.T) {
	r := NewRegistry(logging.Discard())

	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(addr uintptr) {
			defer wg.Done()
			r.Register(addr, String)
			assert.NoError(t, r.Release(addr, String))
		}(uintptr(i * 16))
	}
	wg.Wait()
	assert.Equal(t, 0, r.Live())
}
