package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/iocscore/internal/features"
	"github.com/ppiankov/iocscore/internal/ml"
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Inspect trained model artifacts",
}

var modelInspectCmd = &cobra.Command{
	Use:   "inspect <artifact.json>",
	Short: "Show a model's metadata and check it against the feature schema",
	Long: `Inspect loads a model artifact and reports its version, kind and feature
schema. It fails when the artifact expects features this build does not
produce, or in a different order, which would otherwise fail every call at
scoring time.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		clf, err := ml.Load(args[0])
		if err != nil {
			return err
		}

		info := ml.Describe(clf)
		data, err := yaml.Marshal(info)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(data))

		if !info.Compatible {
			return fmt.Errorf("model %s is incompatible with feature schema %s", info.Version, features.SchemaVersion)
		}
		return nil
	},
}

var modelSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the feature schema a model must be trained on",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "schema %s\n", features.SchemaVersion)
		for i, name := range features.ExpectedFeatures {
			fmt.Fprintf(cmd.OutOrStdout(), "%3d  %-28s %s\n", i, name, features.Label(name))
		}
	},
}

func init() {
	rootCmd.AddCommand(modelCmd)
	modelCmd.AddCommand(modelInspectCmd)
	modelCmd.AddCommand(modelSchemaCmd)
}
