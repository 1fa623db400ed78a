package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conversekit/kbresolve/internal/entity"
	"github.com/conversekit/kbresolve/internal/output"
	"github.com/conversekit/kbresolve/internal/resolver"
)

// resolveOptions holds CLI flags for resolve.
type resolveOptions struct {
	exact  bool
	limit  int
	format string // "text", "json"
}

func newResolveCmd() *cobra.Command {
	var opts resolveOptions

	cmd := &cobra.Command{
		Use:   "resolve <entity-type> <text>...",
		Short: "Resolve a mention to canonical records",
		Long: `Resolve an entity mention against the knowledge base.

By default the ranked fuzzy path is used, returning scored candidates.
With --exact the in-memory synonym table is consulted instead, returning
full records; an exact miss falls back to the raw text.

Examples:
  kbresolve resolve city "big apple"
  kbresolve resolve city SEA --exact
  kbresolve resolve dish "pad thai" --limit 5 --format json`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args[1:], " ")
			return runResolve(cmd.Context(), cmd, args[0], text, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.exact, "exact", false, "Use exact synonym-table resolution")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of fuzzy candidates (default from config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runResolve(ctx context.Context, cmd *cobra.Command, entityType, text string, opts resolveOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("invalid format %q: must be 'text' or 'json'", opts.format)
	}

	cfg, root, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.limit > 0 {
		cfg.Resolve.TopK = opts.limit
	}

	reg := openRegistry(cfg, root)
	defer func() { _ = reg.Close() }()

	res := reg.Resolver(entityType)
	if err := res.Load(ctx); err != nil {
		return err
	}

	result, err := res.Predict(ctx, entity.Entity{Text: text, Type: entityType}, opts.exact)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		return printResultJSON(cmd, result)
	}
	printResultText(newWriter(cmd), result)
	return nil
}

// resolveOutput is the JSON shape of a resolution.
type resolveOutput struct {
	Kind       string               `json:"kind"`
	Items      []map[string]any     `json:"items,omitempty"`
	Candidates []resolver.Candidate `json:"candidates,omitempty"`
	Text       string               `json:"text,omitempty"`
	Value      any                  `json:"value,omitempty"`
}

func printResultJSON(cmd *cobra.Command, result resolver.Result) error {
	out := resolveOutput{
		Kind:       result.Kind.String(),
		Candidates: result.Candidates,
		Text:       result.Text,
		Value:      result.Value,
	}
	for _, item := range result.Items {
		entry := map[string]any{"cname": item.Cname}
		if item.ID != "" {
			entry["id"] = item.ID
		}
		for k, v := range item.Extra {
			entry[k] = v
		}
		out.Items = append(out.Items, entry)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printResultText(out *output.Writer, result resolver.Result) {
	switch result.Kind {
	case resolver.KindExactMatches:
		out.Successf("%d match(es)", len(result.Items))
		for _, item := range result.Items {
			if item.ID != "" {
				out.KeyValue(item.Cname, "id="+item.ID)
			} else {
				out.KeyValue(item.Cname, "")
			}
		}
	case resolver.KindRankedCandidates:
		out.Successf("%d candidate(s)", len(result.Candidates))
		for i, c := range result.Candidates {
			out.Plainf("  %2d. %-30s score=%.3f hits=%d", i+1, c.Cname, c.Score, c.HitCount)
		}
	case resolver.KindUnresolved:
		out.Warningf("unresolved, passing through: %s", result.Text)
	case resolver.KindPassthrough:
		out.Plainf("passthrough: %v", result.Value)
	}
}
