package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/buildyard/internal/dispatch"
	"github.com/zulandar/buildyard/internal/models"
)

type submitFlags struct {
	configPath string
	sha        string
	project    string
	repository string
	callsign   string
	author     string
	label      string
	target     string
	message    string
	tag        string
	cause      string
	patchPath  string
	patchData  string
}

func newSubmitCmd() *cobra.Command {
	var f submitFlags

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a build",
		Long: `Resolves --sha in the target repository and creates one build per eligible
project, then queues their jobs. Exactly one of --project, --repository or
--callsign selects the projects. With --patch, the diff is applied on top of
the revision and projects whose file whitelist it does not touch are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", defaultConfigPath, "path to Buildyard config file")
	fl.StringVar(&f.sha, "sha", "", "commit, branch or tag to build (required)")
	fl.StringVar(&f.project, "project", "", "project slug")
	fl.StringVar(&f.repository, "repository", "", "repository url; builds every active project")
	fl.StringVar(&f.callsign, "callsign", "", "repository callsign; builds every active project")
	fl.StringVar(&f.author, "author", "", "build author (default: commit author)")
	fl.StringVar(&f.label, "label", "", "build label (default: commit subject)")
	fl.StringVar(&f.target, "target", "", "build target (default: short sha)")
	fl.StringVar(&f.message, "message", "", "build message (default: commit message)")
	fl.StringVar(&f.tag, "tag", "", "build tag (default: patch for patch builds)")
	fl.StringVar(&f.cause, "cause", "manual", "what triggered the build")
	fl.StringVar(&f.patchPath, "patch", "", "unified diff file to apply, - for stdin")
	fl.StringVar(&f.patchData, "patch-data", "", "JSON object stored with the patched source")
	cmd.MarkFlagRequired("sha")
	cmd.MarkFlagsMutuallyExclusive("project", "repository", "callsign")
	return cmd
}

func runSubmit(cmd *cobra.Command, f submitFlags) error {
	req := dispatch.Request{
		Ref:         f.sha,
		Author:      f.author,
		Label:       f.label,
		BuildTarget: f.target,
		Tag:         f.tag,
		Cause:       f.cause,
	}
	switch {
	case f.project != "":
		req.Target = dispatch.ProjectTarget(f.project)
	case f.repository != "":
		req.Target = dispatch.RepositoryTarget(f.repository)
	case f.callsign != "":
		req.Target = dispatch.CallsignTarget(f.callsign)
	default:
		return dispatch.ErrNoTarget
	}
	if cmd.Flags().Changed("message") {
		msg := f.message
		req.Message = &msg
	}
	if f.patchData != "" {
		req.PatchData = []byte(f.patchData)
	}
	if f.patchPath != "" {
		patch, err := readPatch(cmd.InOrStdin(), f.patchPath)
		if err != nil {
			return err
		}
		req.Patch = patch
	}

	cfg, gormDB, err := connectFromConfig(f.configPath)
	if err != nil {
		return err
	}
	log := newLogger(cmd, cfg)

	ctx := context.Background()
	q, closeQueue, err := newQueue(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeQueue()

	n, err := newNotifier(cfg)
	if err != nil {
		return err
	}
	d, err := newDispatcher(ctx, cfg, gormDB, q, n, log)
	if err != nil {
		return err
	}

	builds, err := d.Submit(ctx, req)
	if len(builds) > 0 {
		printBuilds(cmd.OutOrStdout(), builds)
	}
	if err != nil {
		if errors.Is(err, dispatch.ErrNoEligibleProjects) {
			return fmt.Errorf("no project matched this submission: %w", err)
		}
		return err
	}
	return nil
}

func readPatch(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read patch: %w", err)
	}
	return data, nil
}

func printBuilds(out io.Writer, builds []models.Build) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCOLLECTION\tPROJECT\tSTATUS\tRESULT\tTARGET\tLABEL")
	for _, b := range builds {
		result := b.Result
		if result == models.ResultUnknown {
			result = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", b.ID, b.CollectionID, b.Project.Slug, b.Status, result, b.Target, b.Label)
	}
	w.Flush()
}
