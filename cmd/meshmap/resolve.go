package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"meshmap/internal/topology"
	"meshmap/internal/viewctx"
)

func newResolveCmd(flags *rootFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "resolve <payload>",
		Short: "Print the gateway assignment of every node in a payload file",
		Long:  "Reads a topology payload (\"-\" for stdin) and prints each node's gateway, hop count, route quality and path.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			opts, err := parseOptions(cfg)
			if err != nil {
				return err
			}
			snap, err := readPayload(cmd.InOrStdin(), cmd.ErrOrStderr(), args[0], opts)
			if err != nil {
				return err
			}
			res := topology.NewResolver(snap).Resolve()
			if asJSON {
				return writeResolutionJSON(cmd.OutOrStdout(), res)
			}
			return writeResolution(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func readPayload(stdin io.Reader, stderr io.Writer, path string, opts topology.ParseOptions) (*topology.Snapshot, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	snap, err := topology.ParsePayload(data, opts)
	if err != nil {
		return nil, err
	}
	for _, w := range snap.Warnings {
		fmt.Fprintln(stderr, "warning:", w)
	}
	return snap, nil
}

func sortedAssignments(res *topology.Resolution) []topology.Assignment {
	out := make([]topology.Assignment, 0, len(res.Assignments))
	for _, a := range res.Assignments {
		out = append(out, a)
	}
	slices.SortFunc(out, func(x, y topology.Assignment) int { return viewctx.NaturalCompare(x.Node, y.Node) })
	return out
}

func writeResolution(w io.Writer, res *topology.Resolution) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NODE\tGATEWAY\tHOPS\tQUALITY\tVIA\tPATH")
	for _, a := range sortedAssignments(res) {
		if !a.Assigned() {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t%s\n", a.Node, strings.Join(a.Path, " > "))
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\t%s\t%s\n", a.Node, a.Gateway, a.Hops, a.Quality, a.Protocol, strings.Join(a.Path, " > "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	st := res.Stats
	_, err := fmt.Fprintf(w, "\n%d nodes, %d gateways, %d served, %d unassigned, %.2f nodes per gateway, %.2f mean hops\n",
		st.Nodes, st.Gateways, st.Served, st.Unassigned, st.MeanNodesPerGateway, st.MeanRouteLength)
	return err
}

func writeResolutionJSON(w io.Writer, res *topology.Resolution) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"gateways":    res.Gateways,
		"assignments": sortedAssignments(res),
		"stats":       res.Stats,
	})
}
