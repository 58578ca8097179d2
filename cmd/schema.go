package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/kilianp07/fleetsim/config"
)

var schemaOut string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Write the JSON Schema of the configuration file",
	RunE:  runSchema,
}

func init() {
	schemaCmd.Flags().StringVarP(&schemaOut, "out", "o", "", "output path (stdout when empty)")
	rootCmd.AddCommand(schemaCmd)
}

func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(new(config.Config))
	schema.Title = "fleetsim configuration"
	schema.Description = "Simulation clock, road network, dispatcher, scenarios, reporting, metrics, status server and logging."
	return schema
}

func runSchema(cmd *cobra.Command, args []string) error {
	data, err := json.MarshalIndent(buildSchema(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	data = append(data, '\n')
	if schemaOut == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(schemaOut), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}
	return os.WriteFile(schemaOut, data, 0o644)
}
