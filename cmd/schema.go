package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/landuse-cli/internal/schema"
)

var schemaJSON bool

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the landuse schema in use",
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg, err := loadRegistry(cfg)
		if err != nil {
			return err
		}
		if schemaJSON {
			return writeSchemaJSON(os.Stdout, reg)
		}
		data, err := reg.Marshal()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

func init() {
	schemaCmd.Flags().BoolVar(&schemaJSON, "json", false, "print JSON instead of YAML")
	rootCmd.AddCommand(schemaCmd)
}

type tagView struct {
	Key    string          `json:"key"`
	Values json.RawMessage `json:"values"`
}

type categoryView struct {
	Key  string    `json:"key"`
	Tags []tagView `json:"tags"`
}

// schemaView keeps registry order, which a JSON object would not.
func schemaView(reg *schema.Registry) []categoryView {
	cats := reg.Categories()
	out := make([]categoryView, 0, len(cats))
	for _, c := range cats {
		cv := categoryView{Key: c.Key}
		for _, t := range c.Tags {
			cv.Tags = append(cv.Tags, tagView{Key: t.Key, Values: json.RawMessage(t.Values.JSON())})
		}
		out = append(out, cv)
	}
	return out
}

func writeSchemaJSON(w io.Writer, reg *schema.Registry) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(schemaView(reg)), "encode schema")
}
