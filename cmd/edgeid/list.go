package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled faces",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(ctx context.Context) error {
	faces, err := DB.LoadAll(ctx)
	if err != nil {
		return err
	}

	if len(faces) == 0 {
		fmt.Println("no enrolled faces")
		return nil
	}

	for _, f := range faces {
		fmt.Printf("%s  %-24s  enrolled %s\n",
			f.ID, f.Name, f.CreatedAt.Local().Format(time.RFC3339))
	}
	return nil
}
