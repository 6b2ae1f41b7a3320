package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dudu/edgeid/internal/store"
)

var removeCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove an enrolled face",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRemove(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(removeCmd)
}

func runRemove(ctx context.Context, rawID string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid face id %q: %w", rawID, err)
	}

	if err := DB.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no face with id %s", id)
		}
		return err
	}

	fmt.Printf("removed %s\n", id)
	return nil
}
