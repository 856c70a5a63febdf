package cmd

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/joescharf/tagger/internal/llm"
	"github.com/joescharf/tagger/internal/output"
	"github.com/joescharf/tagger/internal/tagging"
)

var (
	suggestLimit int
	suggestBind  string
)

var suggestCmd = &cobra.Command{
	Use:   "suggest [text]",
	Short: "Suggest tags for a piece of text using an LLM",
	Long: `Ask the configured Anthropic model for tag names that fit the given text.
Existing tags are offered to the model so it reuses them where they fit.

Text is read from the arguments, or from stdin when none are given.
With --bind, the suggestions are bound to that instance and missing
tags are created.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		if text == "" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return errors.Wrap(err, "read stdin")
			}
			text = string(data)
		}
		client := newLLMClient()
		if client == nil {
			return errors.WithHint(
				errors.New("no Anthropic API key configured"),
				"set anthropic.api_key in the config file or ANTHROPIC_API_KEY",
			)
		}
		return suggestRun(cmd.Context(), client, text)
	},
}

func init() {
	suggestCmd.Flags().IntVar(&suggestLimit, "limit", llm.DefaultMaxSuggestions, "Maximum number of suggestions")
	suggestCmd.Flags().StringVar(&suggestBind, "bind", "", "Bind the suggestions to this instance id")
	rootCmd.AddCommand(suggestCmd)
}

// tagSuggester is the part of llm.Client used by suggest.
type tagSuggester interface {
	SuggestTags(ctx context.Context, text string, known []string, limit int) ([]string, error)
}

func suggestRun(ctx context.Context, client tagSuggester, text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("no text to suggest tags for")
	}
	svc, err := getService()
	if err != nil {
		return err
	}

	known, err := svc.List(ctx, tagging.ListOptions{Pagination: tagging.Pagination{PageSize: tagging.All}})
	if err != nil {
		return err
	}
	names := make([]string, len(known.List))
	for i, t := range known.List {
		names[i] = t.Name
	}

	ui.VerboseLog("Asking for up to %d tags (%d known)", suggestLimit, len(names))
	suggestions, err := client.SuggestTags(ctx, text, names, suggestLimit)
	if err != nil {
		return errors.Wrap(err, "suggest tags")
	}

	if suggestBind == "" {
		if ui.JSON {
			return ui.PrintJSON(map[string][]string{"tags": suggestions})
		}
		if len(suggestions) == 0 {
			ui.Info("No suggestions")
			return nil
		}
		for _, s := range suggestions {
			ui.Info("%s", output.Cyan(s))
		}
		return nil
	}

	if len(suggestions) == 0 {
		ui.Info("No suggestions to bind")
		return nil
	}
	// Suggestions are names even when they look numeric.
	refs := make([]tagging.Ref, len(suggestions))
	for i, s := range suggestions {
		refs[i] = tagging.ByName(s)
	}
	bindAutoCreate = true
	return bindRun(suggestBind, refs)
}
