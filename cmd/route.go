/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"skyweb/router"
	"skyweb/views"

	"github.com/urfave/cli/v2"
)

func routeCmd() *cli.Command {
	return &cli.Command{
		Name:      "route",
		Usage:     "Match paths against the client routes",
		ArgsUsage: "PATH...",
		Description: `Matches each path against the route table of the web client and prints
the matched pattern and parameters. Without arguments the route table is
printed.`,
		Action: func(ctx *cli.Context) error {
			// Matching never runs loaders, the pages need no dependencies
			r := views.Register(router.New(), views.Deps{})

			if ctx.NArg() == 0 {
				for _, route := range r.Routes() {
					fmt.Println(route.Pattern)
				}
				return nil
			}

			unmatched := 0
			for _, path := range ctx.Args().Slice() {
				match := r.Match(path)
				if !match.Matched {
					unmatched++
				}
				printMatch(os.Stdout, path, match)
			}
			if unmatched > 0 {
				return cli.Exit(errors.New("some paths did not match a route"), 1)
			}
			return nil
		},
	}
}

func printMatch(w io.Writer, path string, match router.RouteMatch) {
	if !match.Matched {
		fmt.Fprintf(w, "%s\tnot found\n", path)
		return
	}

	fmt.Fprintf(w, "%s\t%s", path, match.Pattern)
	names := make([]string, 0, len(match.Params))
	for name := range match.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "\t%s=%s", name, match.Params[name])
	}
	fmt.Fprintln(w)
}
