package mock

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/arakoodev/gutty/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	m := NewMockEmbedder()
	ctx := context.Background()

	a, err := m.Embed(ctx, core.ImageRef("a.jpg"))
	require.NoError(t, err)
	again, err := m.Embed(ctx, core.ImageRef("a.jpg"))
	require.NoError(t, err)
	b, err := m.Embed(ctx, core.ImageRef("b.jpg"))
	require.NoError(t, err)

	assert.Equal(t, a, again)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, DefaultDimension)
	assert.InDelta(t, 1.0, core.Norm(a), 1e-5)
	assert.Equal(t, 3, m.CallCount())
	assert.Equal(t, 2, m.CallsFor(core.ImageRef("a.jpg")))
}

func TestMockEmbedder_CustomFunc(t *testing.T) {
	boom := errors.New("boom")
	m := NewMockEmbedder().WithEmbedFunc(func(ctx context.Context, p core.Payload) ([]float32, error) {
		return nil, boom
	})

	_, err := m.Embed(context.Background(), core.TextRef("x"))
	assert.ErrorIs(t, err, boom)

	m.Reset()
	assert.Zero(t, m.CallCount())
	_, err = m.Embed(context.Background(), core.TextRef("x"))
	assert.NoError(t, err)
}

func TestMockEmbedder_Concurrent(t *testing.T) {
	m := NewMockEmbedder().WithDimension(4)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Embed(context.Background(), core.TextRef("same"))
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, m.CallCount())
}

func TestMockGenerator_Echo(t *testing.T) {
	g := NewMockGenerator()
	img := core.ImageRef("q.jpg")

	raw, err := g.GenerateStructured(context.Background(), "describe", &img, []string{"pho"})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "describe", got["prompt"])
	assert.Equal(t, "q.jpg", got["image"])
	assert.Equal(t, 1, g.CallCount())
	assert.Equal(t, []string{"pho"}, g.LastInput())
}

func TestMockProvider(t *testing.T) {
	p := NewMockProvider()
	mp := p.(*MockProvider)

	assert.Equal(t, "mock-coarse", p.Embedder().Name())
	assert.Equal(t, "mock-fine", p.FineEmbedder().Name())
	assert.NotNil(t, p.Generator())
	assert.NotSame(t, mp.GetMockEmbedder(), mp.GetMockFineEmbedder())
	assert.NoError(t, p.Close())

	bare := NewMockProviderWithServices(NewMockEmbedder(), NewMockEmbedder(), nil)
	assert.Nil(t, bare.Generator())
}
