package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli"

	"github.com/forgekit/assetcore/store"
)

var queryCommand = cli.Command{
	Name:  "query",
	Usage: "query the persisted asset record store",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "path-glob", Usage: `e.g. "textures/*.png"`},
		cli.StringSliceFlag{Name: "tag", Usage: "repeatable; all given tags must be present"},
		cli.Int64Flag{Name: "min-size"},
		cli.Int64Flag{Name: "max-size"},
		cli.StringFlag{Name: "sort", Value: "path", Usage: "path|size|modified|access-count"},
		cli.BoolFlag{Name: "desc"},
		cli.IntFlag{Name: "limit", Value: 50},
		cli.IntFlag{Name: "offset"},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		ctx := context.Background()
		e, err := bootstrap(ctx, cfg)
		if err != nil {
			return err
		}
		defer e.close(5 * time.Second)

		f := store.Filter{
			PathGlob: c.String("path-glob"),
			Tags:     c.StringSlice("tag"),
			MinSize:  c.Int64("min-size"),
			MaxSize:  c.Int64("max-size"),
			Sort:     parseSortKey(c.String("sort")),
			Desc:     c.Bool("desc"),
			Limit:    c.Int("limit"),
			Offset:   c.Int("offset"),
		}
		page, err := e.store.Query(ctx, f)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		fmt.Printf("%d of %d records\n", len(page.Records), page.Total)
		for _, r := range page.Records {
			fmt.Printf("%-6d %-40s %-10s %10d  tags=%s\n",
				r.ID, r.Path, r.Type, r.SizeBytes, strings.Join(r.Tags, ","))
		}
		return nil
	},
}

func parseSortKey(s string) store.SortKey {
	switch s {
	case "size":
		return store.SortBySize
	case "modified":
		return store.SortByLastModified
	case "access-count":
		return store.SortByAccessCount
	default:
		return store.SortByPath
	}
}
