package cmd

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/joescharf/tagger/internal/output"
	"github.com/joescharf/tagger/internal/tagging"
)

var (
	tagDesc     string
	tagDescribe bool
	tagRename   string

	listPage     int
	listPageSize int
	listAll      bool
	listCount    bool
)

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Manage tags",
	Long: `Create, list, update and remove tags.

A tag reference is either its numeric id or its name. All-digit references
are ids; prefix one with "name:" to address a tag named e.g. 2024 as
name:2024. Name patterns in 'tag list' accept % as a wildcard at the
start and/or end.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return tagListRun(nil)
	},
}

var tagListCmd = &cobra.Command{
	Use:     "list [match...]",
	Aliases: []string{"ls"},
	Short:   "List tags, optionally filtered by id, name or pattern",
	RunE: func(cmd *cobra.Command, args []string) error {
		return tagListRun(args)
	},
}

var tagNewCmd = &cobra.Command{
	Use:     "new <name>",
	Aliases: []string{"create"},
	Short:   "Create a new tag",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return tagNewRun(args[0])
	},
}

var tagUpdateCmd = &cobra.Command{
	Use:   "update <tag>",
	Short: "Rename a tag or change its description",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch := tagging.TagPatch{}
		if cmd.Flags().Changed("name") {
			patch.Name = &tagRename
		}
		if cmd.Flags().Changed("desc") {
			patch.Desc = &tagDesc
		}
		return tagUpdateRun(args[0], patch)
	},
}

var tagRemoveCmd = &cobra.Command{
	Use:     "remove <tag>",
	Aliases: []string{"rm", "delete"},
	Short:   "Remove a tag and all of its bindings",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return tagRemoveRun(args[0])
	},
}

func init() {
	tagNewCmd.Flags().StringVarP(&tagDesc, "desc", "d", "", "Tag description")
	tagNewCmd.Flags().BoolVar(&tagDescribe, "describe", false, "Ask the LLM for a description when --desc is empty")

	tagUpdateCmd.Flags().StringVar(&tagRename, "name", "", "New tag name")
	tagUpdateCmd.Flags().StringVarP(&tagDesc, "desc", "d", "", "New tag description")

	addPaginationFlags(tagListCmd)

	tagCmd.AddCommand(tagListCmd)
	tagCmd.AddCommand(tagNewCmd)
	tagCmd.AddCommand(tagUpdateCmd)
	tagCmd.AddCommand(tagRemoveCmd)
	rootCmd.AddCommand(tagCmd)
}

// addPaginationFlags registers --page, --page-size, --all and --count on a list command.
func addPaginationFlags(c *cobra.Command) {
	c.Flags().IntVar(&listPage, "page", tagging.DefaultPage, "Page number (1-based)")
	c.Flags().IntVar(&listPageSize, "page-size", tagging.DefaultPageSize, "Items per page")
	c.Flags().BoolVar(&listAll, "all", false, "Return every item on one page")
	c.Flags().BoolVar(&listCount, "count", false, "Also report the total number of matches")
}

func pagination() (tagging.Pagination, error) {
	if listPage < 1 {
		return tagging.Pagination{}, errors.Newf("--page must be at least 1, got %d", listPage)
	}
	p := tagging.Pagination{Page: listPage, PageSize: listPageSize, Count: listCount}
	if listAll {
		p.PageSize = tagging.All
	} else if listPageSize < 1 {
		return tagging.Pagination{}, errors.WithHint(
			errors.Newf("--page-size must be at least 1, got %d", listPageSize),
			"use --all to lift the page size limit",
		)
	}
	return p, nil
}

func tagListRun(match []string) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	p, err := pagination()
	if err != nil {
		return err
	}

	res, err := svc.List(context.Background(), tagging.ListOptions{
		Pagination: p,
		Match:      tagging.ParseRefs(match),
	})
	if err != nil {
		return err
	}
	return ui.TagTable(res)
}

func tagNewRun(name string) error {
	if strings.TrimSpace(name) == "" {
		return ui.Result("Create tag", tagging.MissingParameters("name"))
	}
	svc, err := getService()
	if err != nil {
		return err
	}
	ctx := context.Background()

	desc := tagDesc
	if desc == "" && tagDescribe {
		desc, err = describeTag(ctx, svc, name)
		if err != nil {
			return err
		}
		ui.VerboseLog("Suggested description: %s", desc)
	}

	if dryRun {
		ui.DryRunMsg("Would create tag: %s", output.Cyan(name))
		return nil
	}

	r, err := svc.New(ctx, tagging.TagDefine{Name: name, Desc: desc})
	if err != nil {
		return errors.Wrap(err, "create tag")
	}
	return ui.Result("Created tag "+output.Cyan(name), r)
}

// describeTag asks the LLM for a description, giving it up to ten existing
// tags as style examples.
func describeTag(ctx context.Context, svc *tagging.Service, name string) (string, error) {
	client := newLLMClient()
	if client == nil {
		return "", errors.WithHint(
			errors.New("--describe needs an Anthropic API key"),
			"set anthropic.api_key in the config file or ANTHROPIC_API_KEY",
		)
	}
	known, err := svc.List(ctx, tagging.ListOptions{Pagination: tagging.Pagination{PageSize: 10}})
	if err != nil {
		return "", err
	}
	examples := make([]string, 0, len(known.List))
	for _, t := range known.List {
		if t.Desc != "" && t.Desc != tagging.AutoCreateDesc {
			examples = append(examples, t.Name+": "+t.Desc)
		}
	}
	return client.DescribeTag(ctx, name, examples)
}

func tagUpdateRun(ref string, patch tagging.TagPatch) error {
	if patch.Name == nil && patch.Desc == nil {
		return errors.WithHint(errors.New("nothing to update"), "pass --name and/or --desc")
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return ui.Result("Update tag", tagging.MissingParameters("name"))
	}
	svc, err := getService()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would update tag: %s", ref)
		return nil
	}

	r, err := svc.Update(context.Background(), tagging.ParseRef(ref), patch)
	if err != nil {
		return errors.Wrap(err, "update tag")
	}
	return ui.Result("Updated tag "+output.Cyan(ref), r)
}

func tagRemoveRun(ref string) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would remove tag: %s", ref)
		return nil
	}

	r, err := svc.Remove(context.Background(), tagging.ParseRef(ref))
	if err != nil {
		return errors.Wrap(err, "remove tag")
	}
	return ui.Result("Removed tag "+output.Cyan(ref), r)
}
