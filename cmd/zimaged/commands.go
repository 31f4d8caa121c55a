package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wenc23/zimagetool/internal/client"
	"github.com/wenc23/zimagetool/pkg/types"
)

// withClient adapts a client command body to cobra's RunE.
func withClient(root *rootOptions, fn func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := root.client()
		if err != nil {
			return err
		}
		return fn(cmd.Context(), cmd, c, args)
	}
}

func newStatusCmd(root *rootOptions) *cobra.Command {
	var showModels bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the model state",
		Args:  cobra.NoArgs,
		RunE: withClient(root, func(ctx context.Context, cmd *cobra.Command, c *client.Client, _ []string) error {
			st, err := c.Status(ctx)
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), st)
			if !showModels {
				return nil
			}
			ms, err := c.Models(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout())
			printModels(cmd.OutOrStdout(), ms.Models)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&showModels, "models", false, "also list discovered models")
	return cmd
}

func newLoadCmd(root *rootOptions) *cobra.Command {
	var req types.LoadRequest
	cmd := &cobra.Command{
		Use:   "load [model]",
		Short: "Load a model under a resource profile",
		Args:  cobra.MaximumNArgs(1),
		RunE: withClient(root, func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
			if len(args) == 1 {
				req.ModelPath = args[0]
			}
			resp, accepted, err := c.Load(ctx, req)
			if err != nil {
				return err
			}
			switch {
			case accepted:
				warnLine(cmd.OutOrStdout(), "%s", resp.Message)
			case resp.Degraded:
				warnLine(cmd.OutOrStdout(), "%s (minimal profile degraded to balanced optimizations)", resp.Message)
			default:
				okLine(cmd.OutOrStdout(), "%s", resp.Message)
			}
			return nil
		}),
	}
	cmd.Flags().StringVarP(&req.OptimizationMode, "optimization-mode", "m", "", "balanced or minimal")
	cmd.Flags().BoolVar(&req.Async, "async", false, "return immediately and load in the background")
	return cmd
}

func newUnloadCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unload",
		Short: "Unload the model after in-flight jobs finish",
		Args:  cobra.NoArgs,
		RunE: withClient(root, func(ctx context.Context, cmd *cobra.Command, c *client.Client, _ []string) error {
			resp, err := c.Unload(ctx)
			if err != nil {
				return err
			}
			okLine(cmd.OutOrStdout(), "%s", resp.Message)
			return nil
		}),
	}
}

type generateFlags struct {
	width, height, steps int
	filename             string
	profile              string
	rewrite              bool
	wait                 bool
	interval             time.Duration
	hints                types.PromptHints
}

func addHintFlags(cmd *cobra.Command, h *types.PromptHints) {
	fl := cmd.Flags()
	fl.StringVar(&h.ArtStyle, "style", "", "art style hint")
	fl.StringVar(&h.Character, "subject", "", "subject hint")
	fl.StringVar(&h.Pose, "pose", "", "pose hint")
	fl.StringVar(&h.Background, "setting", "", "background hint")
	fl.StringVar(&h.Clothing, "attire", "", "clothing hint")
	fl.StringVar(&h.Lighting, "lighting", "", "lighting hint")
	fl.StringVar(&h.Composition, "composition", "", "composition hint")
	fl.StringVar(&h.Details, "details", "", "additional details")
}

func newGenerateCmd(root *rootOptions) *cobra.Command {
	f := &generateFlags{}
	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Submit a generation job",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(root, func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
			req := types.GenerateRequest{
				Prompt:           args[0],
				Filename:         f.filename,
				OptimizePrompt:   f.rewrite,
				OptimizationMode: f.profile,
				PromptHints:      f.hints,
			}
			// unset flags leave the server defaults in place
			if cmd.Flags().Changed("width") {
				req.Width = &f.width
			}
			if cmd.Flags().Changed("height") {
				req.Height = &f.height
			}
			if cmd.Flags().Changed("steps") {
				req.Steps = &f.steps
			}
			out := cmd.OutOrStdout()
			resp, err := c.Generate(ctx, req)
			if err != nil {
				return err
			}
			if resp.Warning != "" {
				warnLine(out, "%s", resp.Warning)
			}
			if !f.wait {
				fmt.Fprintln(out, resp.TaskID)
				return nil
			}
			dimColor.Fprintf(out, "task %s\n", resp.TaskID)
			final, err := c.Wait(ctx, resp.TaskID, f.interval, func(p types.ProgressResponse) error {
				if !client.Terminal(p.Status) {
					printProgress(out, p)
				}
				return nil
			})
			if err != nil {
				return err
			}
			printJobResult(out, c, final)
			if final.Status == "failed" {
				return fmt.Errorf("job %s failed", resp.TaskID)
			}
			return nil
		}),
	}
	fl := cmd.Flags()
	fl.IntVar(&f.width, "width", 1024, "image width")
	fl.IntVar(&f.height, "height", 1024, "image height")
	fl.IntVar(&f.steps, "steps", 9, "inference steps")
	fl.StringVarP(&f.filename, "output", "o", "", "image file name")
	fl.StringVarP(&f.profile, "optimization-mode", "m", "", "profile to use if a load is needed")
	fl.BoolVar(&f.rewrite, "rewrite", false, "rewrite the prompt first")
	fl.BoolVarP(&f.wait, "wait", "w", false, "wait for the job and print progress")
	fl.DurationVar(&f.interval, "interval", 500*time.Millisecond, "poll interval with --wait")
	addHintFlags(cmd, &f.hints)
	return cmd
}

func newProgressCmd(root *rootOptions) *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "progress [task-id]",
		Short: "Show a job, or list jobs when no id is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: withClient(root, func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				js, err := c.Jobs(ctx)
				if err != nil {
					return err
				}
				printJobs(out, js.Jobs)
				return nil
			}
			if follow {
				var last types.ProgressResponse
				err := c.Events(ctx, args[0], func(p types.ProgressResponse) error {
					last = p
					if !client.Terminal(p.Status) {
						printProgress(out, p)
					}
					return nil
				})
				if err != nil {
					return err
				}
				printJobResult(out, c, last)
				return nil
			}
			p, err := c.Progress(ctx, args[0])
			if err != nil {
				return err
			}
			printJobResult(out, c, p)
			return nil
		}),
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "stream updates until the job finishes")
	return cmd
}

func newCancelCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a job",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(root, func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
			p, err := c.Cancel(ctx, args[0])
			if err != nil {
				return err
			}
			if client.Terminal(p.Status) {
				warnLine(cmd.OutOrStdout(), "job %s already %s", p.TaskID, p.Status)
				return nil
			}
			okLine(cmd.OutOrStdout(), "cancelling %s", p.TaskID)
			return nil
		}),
	}
}

func newGalleryCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gallery",
		Short: "Browse saved images",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:     "ls",
			Aliases: []string{"list"},
			Short:   "List saved images, newest first",
			Args:    cobra.NoArgs,
			RunE: withClient(root, func(ctx context.Context, cmd *cobra.Command, c *client.Client, _ []string) error {
				g, err := c.Gallery(ctx)
				if err != nil {
					return err
				}
				printGallery(cmd.OutOrStdout(), g.Images)
				return nil
			}),
		},
		&cobra.Command{
			Use:     "rm <folder>...",
			Aliases: []string{"delete"},
			Short:   "Delete gallery folders",
			Args:    cobra.MinimumNArgs(1),
			RunE: withClient(root, func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
				for _, folder := range args {
					resp, err := c.Delete(ctx, folder)
					if err != nil {
						return err
					}
					okLine(cmd.OutOrStdout(), "%s", resp.Message)
				}
				return nil
			}),
		},
	)
	return cmd
}

func newRewriteCmd(root *rootOptions) *cobra.Command {
	var hints types.PromptHints
	cmd := &cobra.Command{
		Use:   "rewrite <prompt>",
		Short: "Rewrite a prompt without generating",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(root, func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
			resp, err := c.Rewrite(ctx, types.RewriteRequest{Prompt: args[0], PromptHints: hints})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.OptimizedPrompt)
			dimColor.Fprintf(cmd.ErrOrStderr(), "source: %s\n", resp.Source)
			return nil
		}),
	}
	addHintFlags(cmd, &hints)
	return cmd
}
