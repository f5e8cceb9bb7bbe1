package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/yungbote/learnworld-backend/internal/realtime/feedclient"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Start generating a world from source material",
	RunE:  runGenerate,
}

var (
	generateTitle   string
	generateSubject string
	generateInput   string
)

func init() {
	generateCmd.Flags().StringVarP(&generateTitle, "title", "t", "", "World title (required)")
	generateCmd.Flags().StringVar(&generateSubject, "subject", "", "Optional subject hint")
	generateCmd.Flags().StringVarP(&generateInput, "in", "i", "-", "Source material file, - for stdin")
	_ = generateCmd.MarkFlagRequired("title")

	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	var (
		source []byte
		err    error
	)
	if generateInput == "-" {
		source, err = io.ReadAll(cmd.InOrStdin())
	} else {
		source, err = os.ReadFile(generateInput)
	}
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	out, err := client.Generate(cmd.Context(), feedclient.GenerateRequest{
		Title:         generateTitle,
		Subject:       generateSubject,
		SourceContent: string(source),
	})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
