package main

import (
	"os"

	"github.com/spf13/cobra"

	"PatentLens/pkg/zlog"
)

var rootCmd = &cobra.Command{
	Use:   "importer",
	Short: "Patent image import tool",
	Long: `Imports patent images into MinIO and Milvus.

The design subcommand walks a structured grant corpus (one USD* directory
per patent with an XML description), uploads the images and writes one
vector record per image. The flat subcommand uploads a plain directory of
images to MinIO with resumable progress.`,
	SilenceUsage: true,
}

func main() {
	defer zlog.Sync()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
