package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/jonathan/daily-brief/internal/observability"
	"github.com/jonathan/daily-brief/internal/pipeline"
	"github.com/jonathan/daily-brief/internal/types"
)

type runOptions struct {
	user         string
	persona      string
	tone         string
	technicality string
	length       string
	noPublish    bool
	jsonOut      bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <topic>",
		Short: "Produce one brief for a topic",
		Long: `Runs the full pipeline once: expand the topic, resolve and fetch sources,
score items, synthesize themed sections, compose the brief, update the
preference profile and publish.

Per-run overrides (--persona, --tone, --technicality, --length) apply to this
brief and are saved to the profile.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBrief(cmd, root, opts, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVarP(&opts.user, "user", "u", defaultUser, "Profile to read and update")
	cmd.Flags().StringVar(&opts.persona, "persona", "", "Override the persona for this run")
	cmd.Flags().StringVar(&opts.tone, "tone", "", "Override the tone (neutral, casual, formal, enthusiastic)")
	cmd.Flags().StringVar(&opts.technicality, "technicality", "", "Override the technicality (low, medium, high)")
	cmd.Flags().StringVar(&opts.length, "length", "", "Override the length (short, medium, long)")
	cmd.Flags().BoolVar(&opts.noPublish, "no-publish", false, "Do not write the brief to the publish directory")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print the brief and trace as JSON")
	return cmd
}

func (o *runOptions) overrides() (types.Overrides, error) {
	var ov types.Overrides
	if o.persona != "" {
		ov.Persona = &o.persona
	}
	if o.tone != "" {
		t := types.Tone(o.tone)
		ov.Tone = &t
	}
	if o.technicality != "" {
		t := types.Technicality(o.technicality)
		ov.Technicality = &t
	}
	if o.length != "" {
		l := types.Length(o.length)
		ov.Length = &l
	}
	if err := validator.New().Struct(ov); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return ov, fmt.Errorf("invalid --%s: must be one of %s",
				strings.ToLower(verrs[0].Field()), strings.ReplaceAll(verrs[0].Param(), " ", ", "))
		}
		return ov, err
	}
	return ov, nil
}

func runBrief(cmd *cobra.Command, root *rootOptions, opts *runOptions, topic string) error {
	ctx := cmd.Context()
	overrides, err := opts.overrides()
	if err != nil {
		return err
	}

	cfg := root.cfg
	if opts.noPublish {
		cfg.Publish.Enabled = false
	}

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	orch, closeOrch, err := newOrchestrator(ctx, cfg, b, root.logger)
	if err != nil {
		return err
	}
	defer closeOrch()

	printer := observability.NewPrinter(cmd.ErrOrStderr())
	res, err := orch.Run(ctx, pipeline.Request{
		UserID:    opts.user,
		Topic:     topic,
		Overrides: overrides,
		OnProgress: func(e pipeline.ProgressEvent) {
			if root.verbose {
				fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s: %s\n", e.Category, e.Stage, e.Message)
			}
		},
	})
	if err != nil {
		var runErr *pipeline.RunError
		if root.verbose && errors.As(err, &runErr) {
			printer.PrintTrace(runErr.Trace)
		}
		return err
	}

	if root.verbose {
		if res.Trace.Expansion != nil {
			printer.PrintExpansion(*res.Trace.Expansion)
		}
		printer.PrintScored(res.Trace.Scored)
		printer.PrintTrace(res.Trace)
		printer.PrintProfile(res.Profile)
	}

	out := cmd.OutOrStdout()
	if opts.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprint(out, res.Brief.Text)
	if res.Publish != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Published to %s\n", res.Publish.Location)
	}
	return nil
}
