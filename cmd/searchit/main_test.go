package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/searchit/core"
)

func TestSetupLogger(t *testing.T) {
	newApp := func() *cli.App {
		return &cli.App{
			Name: "test",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "log-level",
					Value: "info",
				},
			},
			Before: setupLogger,
			Action: func(c *cli.Context) error { return nil },
		}
	}

	t.Run("valid log levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error"} {
			t.Run(level, func(t *testing.T) {
				require.NoError(t, newApp().Run([]string{"test", "--log-level", level}))
			})
		}
	})

	t.Run("case insensitive", func(t *testing.T) {
		for _, level := range []string{"DEBUG", "Info", "WaRn"} {
			t.Run(level, func(t *testing.T) {
				require.NoError(t, newApp().Run([]string{"test", "--log-level", level}))
			})
		}
	})

	t.Run("invalid log level returns error", func(t *testing.T) {
		err := newApp().Run([]string{"test", "--log-level", "loud"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}

func TestParseGranularity(t *testing.T) {
	granularity, err := parseGranularity("page")
	require.NoError(t, err)
	assert.Equal(t, core.GranularityPage, granularity)

	granularity, err = parseGranularity("Statement")
	require.NoError(t, err)
	assert.Equal(t, core.GranularityStatement, granularity)

	_, err = parseGranularity("paragraph")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "paragraph")
}

func TestQueryVectorFlag(t *testing.T) {
	var vector []float32
	var vectorErr error
	app := &cli.App{
		Name: "test",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "vector"},
		},
		Action: func(c *cli.Context) error {
			vector, vectorErr = queryVector(c.Context, c)
			return nil
		},
	}

	require.NoError(t, app.Run([]string{"test", "--vector", "[0.5, 0.5]"}))
	require.NoError(t, vectorErr)
	assert.Equal(t, []float32{0.5, 0.5}, vector)

	require.NoError(t, app.Run([]string{"test", "--vector", "not json"}))
	require.Error(t, vectorErr)
	assert.Contains(t, vectorErr.Error(), "invalid query vector")

	require.NoError(t, app.Run([]string{"test"}))
	require.Error(t, vectorErr)
	assert.Contains(t, vectorErr.Error(), "query text or --vector is required")
}

func TestMeanPooled(t *testing.T) {
	a := make([]float32, core.Dim)
	b := make([]float32, core.Dim)
	a[0] = 1
	b[1] = 1

	pooled := meanPooled([][]float32{a, b})
	require.Len(t, pooled, core.Dim)
	assert.True(t, core.IsNormalized(pooled))
	assert.InDelta(t, pooled[0], pooled[1], 1e-6)
}

func TestPagesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.tsv")
	content := "https://example.com/a\tPage A\tfirst|second\n" +
		"\n" +
		"https://example.com/b\tPage B\tonly\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	pages, err := pagesFromFile(path)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "https://example.com/a", pages[0].url)
	assert.Equal(t, []string{"first", "second"}, pages[0].statements)
	assert.Equal(t, "Page B", pages[1].title)
}

func TestPagesFromFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.tsv")
	require.NoError(t, os.WriteFile(path, []byte("https://example.com/a only two\n"), 0o644))

	_, err := pagesFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed seed line")
}
