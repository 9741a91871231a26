package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/kuitang/persona-e2e/internal/config"
	"github.com/kuitang/persona-e2e/internal/runner"
	"github.com/kuitang/persona-e2e/internal/suite"
)

var listTestsPattern string

var listTestsCmd = &cobra.Command{
	Use:     "list-tests",
	Short:   "List scenarios",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		selected, err := suite.Default().Match(listTestsPattern)
		if err != nil {
			return err
		}
		t := runner.NewTable(cmd.OutOrStdout(),
			runner.Column{Header: "SCENARIO", Width: 26},
			runner.Column{Header: "TAGS", Width: 22},
			runner.Column{Header: "DESCRIPTION"},
		)
		t.PrintHeader()
		for _, s := range selected {
			t.PrintRow(nil, s.Name, strings.Join(s.Tags, ","), s.Description)
		}
		return nil
	},
}

var listBrowsersCmd = &cobra.Command{
	Use:   "list-browsers",
	Short: "List supported browsers",
	Run: func(cmd *cobra.Command, args []string) {
		for _, b := range config.Browsers {
			fmt.Fprintln(cmd.OutOrStdout(), b)
		}
	},
}

var listEnvsCmd = &cobra.Command{
	Use:   "list-envs",
	Short: "List named environments",
	Run: func(cmd *cobra.Command, args []string) {
		t := runner.NewTable(cmd.OutOrStdout(),
			runner.Column{Header: "ENV", Width: 6},
			runner.Column{Header: "PERSONA", Width: 36},
			runner.Column{Header: "123DONE", Width: 32},
			runner.Column{Header: "MYFAVORITEBEER"},
		)
		t.PrintHeader()
		for _, env := range config.NamedEnvironments() {
			t.PrintRow(nil, env.Name, env.Persona, env.OneTwoThree, env.MyFavoriteBeer)
		}
		t.PrintRow([]lipgloss.Style{runner.DimStyle}, config.FakeEnvName, "in-process, random port", "", "")
	},
}

func init() {
	rootCmd.AddCommand(listTestsCmd, listBrowsersCmd, listEnvsCmd)

	listTestsCmd.Flags().StringVarP(&listTestsPattern, "tests", "t", "", "Only scenarios matching these globs or tag:<tag>")
}
