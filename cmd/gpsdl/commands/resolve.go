package commands

import (
	"fmt"

	"github.com/fly-io/gpsdl/pkg/errors"
	"github.com/fly-io/gpsdl/pkg/source"
	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <url>",
	Short: "Show how a URL would be downloaded, without downloading it",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	url := args[0]

	d, ok := source.Resolve(url)
	if !ok {
		return errors.Wrap(errors.ErrUnrecognizedSource, url)
	}

	for _, p := range source.Patterns() {
		if p.Matches(url) {
			fmt.Printf("%-10s %s\n", "PATTERN", p.Name)
			break
		}
	}
	fmt.Printf("%-10s %s\n", "KIND", d.Kind)
	switch d.Kind {
	case source.KindBounds:
		fmt.Printf("%-10s %s\n", "BBOX", d.Bounds.String())
	default:
		fmt.Printf("%-10s %s\n", "URL", d.URL)
	}
	if mapped := source.MappedURL(url); mapped != url {
		fmt.Printf("%-10s %s\n", "MAPPED", mapped)
	}
	if name := source.FileName(url); name != "" {
		fmt.Printf("%-10s %s\n", "FILE", name)
	}

	return nil
}
