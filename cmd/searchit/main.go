// Copyright 2026 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/searchit"
	"github.com/poiesic/searchit/core"
	"github.com/poiesic/searchit/embed"
	"github.com/poiesic/searchit/embed/openai"
	"github.com/poiesic/searchit/query"
	"github.com/poiesic/searchit/reindex"
	"github.com/poiesic/searchit/shard"
)

func main() {
	app := &cli.App{
		Name:  "searchit",
		Usage: "Sharded semantic search over fetched web resources",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "query",
				Usage:     "Embed a text query and search the cluster",
				ArgsUsage: "<query text>",
				Action:    queryCommand,
				Flags: append(clusterFlags(),
					&cli.IntFlag{
						Name:  "k",
						Usage: "Number of results to return",
						Value: 5,
					},
					&cli.StringFlag{
						Name:  "granularity",
						Usage: "Query granularity (page, statement)",
						Value: "page",
					},
					&cli.StringFlag{
						Name:  "vector",
						Usage: "Query vector as a JSON array, bypassing the embedder",
					},
					&cli.StringFlag{
						Name:  "embedding-host",
						Usage: "Embedding service host URL",
						Value: embed.DefaultConfig().Host,
					},
					&cli.StringFlag{
						Name:  "embedding-model",
						Usage: "Embedding model name",
						Value: embed.DefaultConfig().Model,
					},
				),
			},
			{
				Name:      "lookup",
				Usage:     "Resolve a URL to its uid and show the stored resource record",
				ArgsUsage: "<url>",
				Action:    lookupCommand,
				Flags:     clusterFlags(),
			},
			{
				Name:   "seed",
				Usage:  "Ingest sample pages into a development cluster",
				Action: seedCommand,
				Flags: append(clusterFlags(),
					&cli.StringFlag{
						Name:  "src",
						Usage: "File of seed pages (url<TAB>title<TAB>statements)",
					},
					&cli.StringFlag{
						Name:  "embedding-host",
						Usage: "Embedding service host URL",
						Value: embed.DefaultConfig().Host,
					},
					&cli.StringFlag{
						Name:  "embedding-model",
						Usage: "Embedding model name",
						Value: embed.DefaultConfig().Model,
					},
				),
			},
			{
				Name:   "reindex",
				Usage:  "Rebuild the vector indexes from stored embedding records",
				Action: reindexCommand,
				Flags: append(clusterFlags(),
					&cli.IntFlag{
						Name:  "checkpoint-every",
						Usage: "Write a scan checkpoint every N records",
						Value: reindex.DefaultConfig().CheckpointEvery,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N vectors",
						Value: reindex.DefaultConfig().ReportInterval,
					},
				),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func clusterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "db",
			Aliases:  []string{"d"},
			Usage:    "Path to the cluster directory",
			Required: true,
		},
		&cli.IntFlag{
			Name:  "shards",
			Usage: "Shard count of the deployment",
			Value: shard.DefaultCount,
		},
	}
}

func openCluster(c *cli.Context) (*searchit.Cluster, error) {
	cluster, err := searchit.OpenCluster(c.String("db"), searchit.WithShards(c.Int("shards")))
	if err != nil {
		return nil, fmt.Errorf("failed to open cluster: %w", err)
	}
	return cluster, nil
}

func newEmbedder(c *cli.Context) (embed.Embedder, error) {
	config := embed.NewConfig(
		embed.WithHost(c.String("embedding-host")),
		embed.WithModel(c.String("embedding-model")),
	)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid embedding configuration: %w", err)
	}
	return openai.NewEmbedder(config)
}

func parseGranularity(s string) (core.Granularity, error) {
	switch strings.ToLower(s) {
	case "page":
		return core.GranularityPage, nil
	case "statement":
		return core.GranularityStatement, nil
	default:
		return 0, fmt.Errorf("invalid granularity %q: must be page or statement", s)
	}
}

// queryVector produces the query vector, either parsed from the --vector
// JSON flag or by embedding the argument text.
func queryVector(ctx context.Context, c *cli.Context) ([]float32, error) {
	if raw := c.String("vector"); raw != "" {
		var vector []float32
		if err := json.Unmarshal([]byte(raw), &vector); err != nil {
			return nil, fmt.Errorf("invalid query vector: %w", err)
		}
		return vector, nil
	}

	text := strings.Join(c.Args().Slice(), " ")
	if text == "" {
		return nil, fmt.Errorf("query text or --vector is required")
	}
	embedder, err := newEmbedder(c)
	if err != nil {
		return nil, err
	}
	vector, err := embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return vector, nil
}

func queryCommand(c *cli.Context) error {
	ctx := context.Background()

	granularity, err := parseGranularity(c.String("granularity"))
	if err != nil {
		return err
	}
	vector, err := queryVector(ctx, c)
	if err != nil {
		return err
	}

	cluster, err := openCluster(c)
	if err != nil {
		return err
	}
	defer cluster.Close()

	// The indexes live in memory, so a fresh process rebuilds them from
	// the stored embedding records before searching.
	reindexer, err := cluster.Reindex(nil, os.Stderr)
	if err != nil {
		return err
	}
	if err := reindexer.Run(ctx); err != nil {
		return fmt.Errorf("reindexing failed: %w", err)
	}

	orchestrator, err := cluster.NewOrchestrator()
	if err != nil {
		return err
	}
	defer orchestrator.Release()

	resp, err := orchestrator.Search(ctx, query.Request{
		Vector:      core.Normalize(vector),
		K:           c.Int("k"),
		Granularity: granularity,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	fmt.Printf("Found %d hits\n", len(resp.Results))
	if resp.Partial {
		fmt.Println("(partial: one or more shards did not answer)")
	}
	for i, result := range resp.Results {
		marker := ""
		if result.Partial {
			marker = " (degraded)"
		}
		fmt.Printf("%d: '%s' %s (%d)[%0.3f]%s\n",
			i, result.Title, result.URL, result.UID, result.Score, marker)
	}
	return nil
}

func lookupCommand(c *cli.Context) error {
	ctx := context.Background()

	url := c.Args().First()
	if url == "" {
		return fmt.Errorf("url is required")
	}

	cluster, err := openCluster(c)
	if err != nil {
		return err
	}
	defer cluster.Close()

	orchestrator, err := cluster.NewOrchestrator()
	if err != nil {
		return err
	}
	defer orchestrator.Release()

	uid, err := orchestrator.LookupUID(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", url, err)
	}
	fmt.Printf("uid: %d\n", uid)

	record, err := orchestrator.GetResource(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to load resource record: %w", err)
	}
	fmt.Printf("state: %s\n", record.State)
	if title := record.Title(); title != "" {
		fmt.Printf("title: %s\n", title)
	}
	return nil
}

func reindexCommand(c *cli.Context) error {
	ctx := context.Background()

	config := &reindex.Config{
		CheckpointEvery: c.Int("checkpoint-every"),
		ReportInterval:  c.Int("report-interval"),
		Processor:       reindex.DefaultConfig().Processor,
	}
	if config.CheckpointEvery <= 0 {
		return fmt.Errorf("checkpoint-every must be greater than 0")
	}
	if config.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}

	cluster, err := openCluster(c)
	if err != nil {
		return err
	}
	defer cluster.Close()

	fmt.Fprintf(os.Stderr, "Cluster: %s (%d shards)\n\n", c.String("db"), cluster.Shards())

	reindexer, err := cluster.Reindex(config, os.Stderr)
	if err != nil {
		return err
	}
	if err := reindexer.Run(ctx); err != nil {
		return fmt.Errorf("reindexing failed: %w", err)
	}
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
