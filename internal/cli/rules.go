package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/parque/internal/core"
	"github.com/JonMunkholm/parque/internal/policy"
)

func newRulesCmd() *cobra.Command {
	var rulesFile string
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List business rules with thresholds and scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := core.LoadRuleSet(rulesFile)
			if err != nil {
				return fmt.Errorf("load rules: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCAMPO\tTIPO\tUMBRAL\tSEVERIDAD\tACTIVA\tALCANCE")
			for _, r := range rules.All() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%v\t%s\n",
					r.ID, r.Field, r.Kind, threshold(r), r.Severity, r.IsActive(), scope(r))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&rulesFile, "rules", "", "YAML file overriding business rules")
	return cmd
}

func threshold(r *policy.Rule) string {
	if len(r.Values) > 0 {
		return strings.Join(r.Values, ",")
	}
	if v, ok := r.Threshold(); ok {
		return strings.TrimSpace(fmt.Sprintf("%s %g", r.Operator, v))
	}
	if r.Pattern != "" {
		return r.Pattern
	}
	return "-"
}

func scope(r *policy.Rule) string {
	var parts []string
	if len(r.Providers) > 0 {
		parts = append(parts, "proveedores="+strings.Join(r.Providers, ","))
	}
	if len(r.Sites) > 0 {
		parts = append(parts, "sitios="+strings.Join(r.Sites, ","))
	}
	if len(parts) == 0 {
		return "todos"
	}
	return strings.Join(parts, " ")
}
