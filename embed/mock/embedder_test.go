package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/searchit/core"
)

func TestMockEmbedderDeterministic(t *testing.T) {
	m := NewMockEmbedder()
	ctx := context.Background()

	a, err := m.EmbedText(ctx, "hello world")
	require.NoError(t, err)
	b, err := m.EmbedText(ctx, "hello world")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := m.EmbedText(ctx, "something else")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	assert.Len(t, a, core.Dim)
	assert.True(t, core.IsNormalized(a))
	assert.Equal(t, 3, m.CallCount())
}

func TestMockEmbedderBatch(t *testing.T) {
	m := NewMockEmbedder()

	vectors, err := m.EmbedTexts(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)

	single, err := m.EmbedText(context.Background(), "one")
	require.NoError(t, err)
	assert.Equal(t, single, vectors[0])
}

func TestMockEmbedderInjection(t *testing.T) {
	m := NewMockEmbedder()
	wantErr := errors.New("embedding service down")
	m.EmbedTextFunc = func(_ context.Context, _ string) ([]float32, error) {
		return nil, wantErr
	}

	_, err := m.EmbedText(context.Background(), "anything")
	assert.ErrorIs(t, err, wantErr)

	m.Reset()
	assert.Zero(t, m.CallCount())
	_, err = m.EmbedText(context.Background(), "anything")
	assert.NoError(t, err)
}
