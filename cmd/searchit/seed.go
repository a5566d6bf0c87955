package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/searchit/core"
	"github.com/poiesic/searchit/embed"
	"github.com/poiesic/searchit/ingest"
)

// samplePage is one synthetic page for seeding a development cluster.
type samplePage struct {
	url        string
	title      string
	statements []string
}

var samplePages = []samplePage{
	{
		url:   "https://example.com/astronomy/comets",
		title: "Observing Comets",
		statements: []string{
			"A bright comet streaked across the horizon at midnight.",
			"Comet tails always point away from the sun.",
			"Binoculars reveal the coma around a comet's nucleus.",
		},
	},
	{
		url:   "https://example.com/cooking/bread",
		title: "Baking Bread at Home",
		statements: []string{
			"Fresh bread is best baked just before dawn.",
			"A long cold ferment deepens the flavor of the crumb.",
			"Steam in the first ten minutes gives the crust its shine.",
		},
	},
	{
		url:   "https://example.com/sailing/lighthouses",
		title: "Lighthouses of the North Coast",
		statements: []string{
			"The lighthouse beam cut through fog, guiding sailors safely.",
			"Each light flashes a distinct pattern so crews can tell them apart.",
			"The abandoned lighthouse still broadcasts its warning every third Tuesday.",
		},
	},
	{
		url:   "https://example.com/gardens/hummingbirds",
		title: "Attracting Hummingbirds",
		statements: []string{
			"The hummingbird hovered beside a vibrant purple flower.",
			"Tubular red blossoms draw hummingbirds from across the valley.",
			"A shallow mister gives the birds somewhere to bathe.",
		},
	},
	{
		url:   "https://example.com/engineering/queues",
		title: "Queueing in Distributed Systems",
		statements: []string{
			"Packets take the scenic route through deprecated protocols.",
			"Backpressure keeps a slow consumer from drowning in work.",
			"The event bus took a detour through event-driven architecture.",
		},
	},
	{
		url:   "https://example.com/engineering/caching",
		title: "Cache Invalidation Strategies",
		statements: []string{
			"The cache invalidation problem solved itself out of spite.",
			"Time-to-live expiry trades staleness for simplicity.",
			"Write-through caches keep the store and the cache in step.",
		},
	},
	{
		url:   "https://example.com/music/valley-melodies",
		title: "Melodies of the Valley",
		statements: []string{
			"He composed a melody that echoed through the valleys.",
			"The old clock chimed thirteen times in an abandoned town.",
			"Her laughter echoed through the empty halls of the old manor.",
		},
	},
	{
		url:   "https://example.com/weather/storms",
		title: "Reading Summer Storms",
		statements: []string{
			"A sudden thunderclap shattered the silence of the forest.",
			"Rain drummed on the rooftop, creating a soothing rhythm.",
			"A storm rolled in, bringing thunder and lightning.",
		},
	},
}

func seedCommand(c *cli.Context) error {
	ctx := context.Background()

	pages := samplePages
	if src := c.String("src"); src != "" {
		loaded, err := pagesFromFile(src)
		if err != nil {
			return err
		}
		pages = loaded
	}

	cluster, err := openCluster(c)
	if err != nil {
		return err
	}
	defer cluster.Close()

	embedder, err := newEmbedder(c)
	if err != nil {
		return err
	}

	pipeline, err := cluster.NewIngestPipeline()
	if err != nil {
		return err
	}
	defer pipeline.Release()

	for _, page := range pages {
		if err := seedPage(ctx, pipeline, embedder, page); err != nil {
			return fmt.Errorf("seeding %s: %w", page.url, err)
		}
	}

	fmt.Fprintf(os.Stderr, "Seeded %d pages\n", len(pages))
	return nil
}

func seedPage(ctx context.Context, pipeline *ingest.Pipeline, embedder embed.Embedder, page samplePage) error {
	if _, err := pipeline.BeginFetch(ctx, page.url, time.Now()); err != nil {
		return err
	}
	if err := pipeline.ApplyParsed(ctx, page.url, ingest.Parsed{
		Page: core.PageDetail{HTTPStatus: 200, Title: page.title},
	}); err != nil {
		return err
	}

	doc := &core.DocumentRecord{
		Headings: []core.Heading{{Level: 1, Text: page.title}},
	}
	for _, text := range page.statements {
		doc.Statements = append(doc.Statements, core.Statement{
			Text:        text,
			Path:        "body/p",
			HeadingRefs: []int{0},
			Kind:        core.StatementText,
		})
	}
	base, err := pipeline.ApplyLabelled(ctx, page.url, doc)
	if err != nil {
		return err
	}

	vectors, err := embedder.EmbedTexts(ctx, page.statements)
	if err != nil {
		return err
	}
	for i := range vectors {
		vectors[i] = core.Normalize(vectors[i])
	}
	return pipeline.ApplyEmbeddings(ctx, page.url, base, meanPooled(vectors), vectors)
}

// meanPooled averages the statement vectors into one page vector.
func meanPooled(vectors [][]float32) []float32 {
	pooled := make([]float32, core.Dim)
	for _, v := range vectors {
		for i := range v {
			pooled[i] += v[i]
		}
	}
	n := float32(len(vectors))
	for i := range pooled {
		pooled[i] /= n
	}
	return core.Normalize(pooled)
}

// pagesFromFile reads seed pages from a file. Each line holds a url,
// a title, and pipe-separated statements, joined by tabs.
func pagesFromFile(filename string) ([]samplePage, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []samplePage
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) != 3 {
			return nil, fmt.Errorf("malformed seed line %q: want url<TAB>title<TAB>statements", line)
		}
		pages = append(pages, samplePage{
			url:        fields[0],
			title:      fields[1],
			statements: strings.Split(fields[2], "|"),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return pages, nil
}
