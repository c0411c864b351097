package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// configFileTemplate mirrors config.Config's blob-service.* keys with their
// defaults, so `blobcache config-init` produces a file a user can edit in
// place rather than needing to remember every key.
type configFileTemplate struct {
	BlobService struct {
		Directory string `yaml:"directory"`
		Port      int    `yaml:"port"`
		AdminPort int    `yaml:"admin_port"`
		ServerAddr string `yaml:"server_addr"`
		Tracing   struct {
			Exporter string `yaml:"exporter"`
		} `yaml:"tracing"`
		Redis struct {
			Addr string `yaml:"addr"`
		} `yaml:"redis"`
	} `yaml:"blob-service"`
}

var configInitCmd = &cobra.Command{
	Use:   "config-init [path]",
	Short: "write a starter blobcache config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		path := args[0]
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists, refusing to overwrite", path)
		}

		var tpl configFileTemplate
		tpl.BlobService.Port = 8080
		tpl.BlobService.AdminPort = 8081
		tpl.BlobService.Tracing.Exporter = "none"

		out, err := yaml.Marshal(&tpl)
		if err != nil {
			return fmt.Errorf("marshaling template: %w", err)
		}

		if err := os.WriteFile(path, out, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		fmt.Println("wrote", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configInitCmd)
}
