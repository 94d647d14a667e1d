package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/mender/internal/stopfile"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask the active run to stop",
	Long: `Write the stop marker for the current project.

The active run notices the marker at its next step boundary, lets the
in-flight action finish, and aborts with the best partial patch it has.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		if err := stopfile.RequestStop(cwd); err != nil {
			return err
		}
		fmt.Println("Stop requested. The run will abort at its next step boundary.")
		return nil
	},
}
