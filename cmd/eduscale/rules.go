package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"eduscale/internal/rules"
)

func newRulesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect routing rules",
	}
	cmd.AddCommand(newRulesValidateCommand(ctx))
	cmd.AddCommand(newRulesShowCommand(ctx))
	return cmd
}

func newRulesValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate a rule document against the schema",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := rulesPath(ctx, args)
			if err != nil {
				return err
			}
			ruleSet, err := rules.Load(path)
			if err != nil {
				return fmt.Errorf("validate %s: %w", path, err)
			}
			if _, err := rules.NewEngine(ruleSet); err != nil {
				return fmt.Errorf("validate %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rules OK\n", path, len(ruleSet))
			return nil
		},
	}
}

func newRulesShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show [path]",
		Short: "Print the rule set in evaluation order",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := rulesPath(ctx, args)
			if err != nil {
				return err
			}
			ruleSet, err := rules.Load(path)
			if err != nil {
				return fmt.Errorf("load %s: %w", path, err)
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, ruleSet)
			}

			rows := make([][]string, 0, len(ruleSet))
			for i, rule := range ruleSet {
				predicates := make([]string, 0, len(rule.Predicates))
				for _, p := range rule.Predicates {
					predicates = append(predicates, fmt.Sprintf("%s %s %q", p.Attribute, p.Operator, p.Value))
				}
				rows = append(rows, []string{
					strconv.Itoa(i + 1),
					rule.Name,
					rule.Destination,
					strings.Join(predicates, ", "),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"#", "Rule", "Destination", "Predicates"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func rulesPath(ctx *commandContext, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(cfg.Rules.Path) == "" {
		return "", fmt.Errorf("no rules path configured and none given")
	}
	return cfg.Rules.Path, nil
}
