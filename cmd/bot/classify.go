package main

import (
	"encoding/json"
	"strings"

	"github.com/siegecorps/siegebot/internal/intent"
	"github.com/siegecorps/siegebot/internal/models"
	"github.com/spf13/cobra"
)

type classification struct {
	Intent    models.IntentKind `json:"intent"`
	Query     string            `json:"query,omitempty"`
	Facet     string            `json:"facet,omitempty"`
	Answer    string            `json:"answer,omitempty"`
	Complex   bool              `json:"complex"`
	Sensitive bool              `json:"sensitive"`
}

var classifyCmd = &cobra.Command{
	Use:   "classify <text>",
	Short: "Print the intent a message would be classified as",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		in := intent.Classify(text)

		out := classification{
			Intent:    in.Kind,
			Query:     in.Query,
			Facet:     in.Facet,
			Complex:   intent.IsComplex(text, in.Kind),
			Sensitive: in.Kind == models.IntentSensitive,
		}
		if in.Resolved {
			out.Answer = in.Payload
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}
