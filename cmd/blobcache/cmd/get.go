package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jobrun/blobcache/internal/blobkey"
	"github.com/jobrun/blobcache/internal/client"
)

var getCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "download a blob by its hex key from the server named by --server-addr, to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		if cfg.ServerAddr == "" {
			return fmt.Errorf("get requires --server-addr")
		}

		key, err := blobkey.ParseHex(args[0])
		if err != nil {
			return fmt.Errorf("invalid key %q: %w", args[0], err)
		}

		stream, err := client.Get(cfg.ServerAddr, key)
		if err != nil {
			return fmt.Errorf("get failed: %w", err)
		}
		defer stream.Close()

		_, err = io.Copy(os.Stdout, stream)
		return err
	},
}

var getURLCmd = &cobra.Command{
	Use:   "geturl [key]",
	Short: "check that a blob is present on the server named by --server-addr",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		if cfg.ServerAddr == "" {
			return fmt.Errorf("geturl requires --server-addr")
		}
		key, err := blobkey.ParseHex(args[0])
		if err != nil {
			return fmt.Errorf("invalid key %q: %w", args[0], err)
		}

		// geturl has no network form in the protocol: a file: URL is only
		// meaningful to the role holding the blob locally. As a client-side
		// convenience this performs a normal get as a presence check and
		// reports which server holds the blob; it prints no file: URL.
		stream, err := client.Get(cfg.ServerAddr, key)
		if err != nil {
			return fmt.Errorf("geturl failed: %w", err)
		}
		stream.Close()

		fmt.Printf("blobcache key %s is present on %s\n", key.Hex(), cfg.ServerAddr)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(getURLCmd)
}
