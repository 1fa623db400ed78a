package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// entityStatus describes one entity type's mapping and index state.
type entityStatus struct {
	EntityType string `json:"entity_type"`
	Records    int    `json:"records"`
	Indexed    bool   `json:"indexed"`
	Documents  uint64 `json:"documents,omitempty"`
}

func newEntitiesCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "entities",
		Short: "List entity types and their index state",
		Long: `List every entity type under the mapping directory, with its record
count and whether its synonym index has been built.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEntities(cmd, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	return cmd
}

func runEntities(cmd *cobra.Command, format string) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid format %q: must be 'text' or 'json'", format)
	}

	cfg, root, err := loadConfig()
	if err != nil {
		return err
	}

	reg := openRegistry(cfg, root)
	defer func() { _ = reg.Close() }()
	loader := mappingLoader(cfg, root)

	types, err := loader.EntityTypes()
	if err != nil {
		return err
	}

	statuses := make([]entityStatus, 0, len(types))
	for _, entityType := range types {
		status := entityStatus{EntityType: entityType}
		if records, err := loader.Load(entityType); err == nil {
			status.Records = len(records)
		}

		res := reg.Resolver(entityType)
		if n, err := reg.DocCount(res.IndexName()); err == nil {
			status.Indexed = true
			status.Documents = n
		}
		statuses = append(statuses, status)
	}

	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(statuses)
	}

	out := newWriter(cmd)
	if len(statuses) == 0 {
		out.Warning("no entity types found under the mapping directory")
		return nil
	}

	out.Header("Entity Types")
	for _, s := range statuses {
		state := "not indexed"
		if s.Indexed {
			state = fmt.Sprintf("%d documents", s.Documents)
		}
		out.KeyValue(s.EntityType, fmt.Sprintf("%d records, %s", s.Records, state))
	}
	return nil
}
