package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/reposcout/reposcout/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage validation rules",
}

var rulesSyncCmd = &cobra.Command{
	Use:   "sync <rules-file>",
	Short: "Sync a YAML rule file into the rule store",
	Long: `Upsert the rules defined in a YAML file into the rule store by
name. Rules in the store that the file does not mention are left
untouched.

Example file:

  rules:
    - name: has-readme
      kind: file_structure
      required: true
      weight: 10
      criteria:
        required_files: [README.md]`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		store, err := openStore(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer store.Close()

		result, err := rules.LoadAndSync(ctx, store, args[0])
		if err != nil {
			fatal("%v", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Rules synced: %d created, %d updated\n", green("✓"), result.Created, result.Updated)
	},
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List validation rules",
	Run: func(cmd *cobra.Command, args []string) {
		enabledOnly, _ := cmd.Flags().GetBool("enabled")

		ctx := context.Background()
		store, err := openStore(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer store.Close()

		all, err := store.ListRules(ctx, enabledOnly)
		if err != nil {
			fatal("%v", err)
		}
		if len(all) == 0 {
			fmt.Println("No rules configured.")
			return
		}

		green := color.New(color.FgGreen).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		for _, rule := range all {
			marker := green("on ")
			if !rule.Enabled {
				marker = yellow("off")
			}
			flag := "optional"
			if rule.Required {
				flag = "required"
			}
			fmt.Printf("  [%s] %-24s %-16s %s  weight=%d\n", marker, rule.Name, rule.Kind, flag, rule.Weight)
		}
	},
}

var rulesDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a validation rule",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		store, err := openStore(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer store.Close()

		if err := store.DeleteRule(ctx, args[0]); err != nil {
			fatal("%v", err)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Deleted rule %s\n", green("✓"), args[0])
	},
}

func init() {
	rulesListCmd.Flags().Bool("enabled", false, "show only enabled rules")
	rulesCmd.AddCommand(rulesSyncCmd)
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesDeleteCmd)
}
