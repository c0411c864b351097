package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jobrun/blobcache/internal/client"
)

var putCmd = &cobra.Command{
	Use:   "put [file]",
	Short: "upload a file (or stdin) to the server named by --server-addr",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		if cfg.ServerAddr == "" {
			return fmt.Errorf("put requires --server-addr")
		}

		r := os.Stdin
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer f.Close()
			r = f
		}

		key, err := client.Put(cfg.ServerAddr, r, nil)
		if err != nil {
			return fmt.Errorf("put failed: %w", err)
		}
		fmt.Println(key.Hex())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(putCmd)
}
