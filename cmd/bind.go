package cmd

import (
	"context"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/joescharf/tagger/internal/output"
	"github.com/joescharf/tagger/internal/tagging"
)

var bindAutoCreate bool

var bindCmd = &cobra.Command{
	Use:   "bind <instance> <tag>...",
	Short: "Bind tags to an instance",
	Long: `Bind one or more tags to an instance id.

Either every tag is bound or none is. With --auto-create, tag names that
do not exist yet are created first. All-digit tags are read as ids; write
name:2024 to bind (or create) a tag named 2024.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return bindRun(args[0], tagging.ParseRefs(args[1:]))
	},
}

var unbindCmd = &cobra.Command{
	Use:   "unbind <instance> <tag>...",
	Short: "Remove tags from an instance",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return unbindRun(args[0], args[1:])
	},
}

var instancesCmd = &cobra.Command{
	Use:   "instances [tag...]",
	Short: "List instances carrying all of the given tags",
	Long: `List the instances bound to every given tag, in the order their tag
sets became complete. Without tags, every tagged instance is listed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return instancesRun(args)
	},
}

var instanceTagsCmd = &cobra.Command{
	Use:   "instance-tags <instance>",
	Short: "List the tags bound to an instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return instanceTagsRun(args[0])
	},
}

func init() {
	bindCmd.Flags().BoolVar(&bindAutoCreate, "auto-create", false, "Create missing tags by name")

	addPaginationFlags(instancesCmd)
	addPaginationFlags(instanceTagsCmd)

	rootCmd.AddCommand(bindCmd)
	rootCmd.AddCommand(unbindCmd)
	rootCmd.AddCommand(instancesCmd)
	rootCmd.AddCommand(instanceTagsCmd)
}

// parseInstanceID parses a non-negative instance id argument.
func parseInstanceID(s string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, errors.WithHint(
			errors.Newf("invalid instance id %q", s),
			"instance ids are non-negative integers",
		)
	}
	return id, nil
}

func bindRun(instance string, refs []tagging.Ref) error {
	id, err := parseInstanceID(instance)
	if err != nil {
		return err
	}
	svc, err := getService()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would bind %s to instance %d", joinRefs(refs), id)
		return nil
	}

	r, err := svc.Bind(context.Background(), tagging.BindOptions{
		InstanceID:    id,
		Tags:          refs,
		AutoCreateTag: bindAutoCreate,
	})
	if err != nil {
		return errors.Wrap(err, "bind tags")
	}
	return ui.Result("Bound "+joinRefs(refs)+" to instance "+output.Cyan(instance), r)
}

func unbindRun(instance string, tags []string) error {
	id, err := parseInstanceID(instance)
	if err != nil {
		return err
	}
	svc, err := getService()
	if err != nil {
		return err
	}

	refs := tagging.ParseRefs(tags)
	if dryRun {
		ui.DryRunMsg("Would unbind %s from instance %d", joinRefs(refs), id)
		return nil
	}

	r, err := svc.Unbind(context.Background(), tagging.UnbindOptions{
		InstanceID: id,
		Tags:       refs,
	})
	if err != nil {
		return errors.Wrap(err, "unbind tags")
	}
	return ui.Result("Unbound "+joinRefs(refs)+" from instance "+output.Cyan(instance), r)
}

func instancesRun(tags []string) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	p, err := pagination()
	if err != nil {
		return err
	}

	res, err := svc.ListInstance(context.Background(), tagging.ListInstanceOptions{
		Pagination: p,
		Tags:       tagging.ParseRefs(tags),
	})
	if err != nil {
		return err
	}
	return ui.InstanceTable(res)
}

func instanceTagsRun(instance string) error {
	id, err := parseInstanceID(instance)
	if err != nil {
		return err
	}
	svc, err := getService()
	if err != nil {
		return err
	}
	p, err := pagination()
	if err != nil {
		return err
	}

	res, err := svc.ListInstanceTags(context.Background(), tagging.ListInstanceTagsOptions{
		Pagination: p,
		InstanceID: id,
	})
	if err != nil {
		return err
	}
	return ui.TagTable(res)
}

func joinRefs(refs []tagging.Ref) string {
	names := make([]string, len(refs))
	for i, r := range refs {
		names[i] = output.Cyan(r.String())
	}
	return strings.Join(names, ", ")
}
