package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/alacard/sdk/go/alacard"
)

type cli struct {
	server  string
	timeout time.Duration
}

func (c *cli) client() (*alacard.Client, error) {
	return alacard.NewClient(alacard.Config{BaseURL: c.server, Timeout: c.timeout})
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "alacardctl",
		Short:         "Generate and fetch Alacard notebooks",
		Long:          `alacardctl talks to an Alacard server: start notebook generation from recipe cards, follow progress, and download the result.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.server, "server", envOr("ALACARD_SERVER", "http://localhost:8080"), "Alacard server URL")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 30*time.Second, "per-request timeout")

	root.AddCommand(
		c.generateCmd(),
		c.statusCmd(),
		c.watchCmd(),
		c.downloadCmd(),
		c.cardsCmd(),
	)
	return root
}

func (c *cli) generateCmd() *cobra.Command {
	var (
		req   alacard.GenerateRequest
		watch bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Start generating a notebook",
		Example: `  alacardctl generate --model openai-community/gpt2
  alacardctl generate --model facebook/bart-large-cnn --topic healthcare --difficulty beginner --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := c.client()
			if err != nil {
				return err
			}
			resp, err := client.Generate(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "task %s %s (about %ds)\n", resp.TaskID, resp.Status, resp.EstimatedSeconds)
			if !watch {
				return nil
			}
			return follow(cmd, client, resp.TaskID)
		},
	}
	cmd.Flags().StringVar(&req.ModelID, "model", "", "model registry ID (required)")
	cmd.Flags().StringVar(&req.PromptPackID, "prompt-pack", "", "prompt pack card ID")
	cmd.Flags().StringVar(&req.TopicID, "topic", "", "topic card ID")
	cmd.Flags().StringVar(&req.Difficulty, "difficulty", "", "beginner, intermediate or advanced")
	cmd.Flags().StringVar(&req.UIComponent, "ui", "", "UI component type")
	cmd.Flags().BoolVar(&watch, "watch", false, "follow progress until the notebook is ready")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status TASK_ID",
		Short: "Show a generation task snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.client()
			if err != nil {
				return err
			}
			task, err := client.Status(cmd.Context(), args[0])
			if err != nil {
				if alacard.IsNotFound(err) {
					return fmt.Errorf("task %s not found or expired", args[0])
				}
				return err
			}
			return printJSON(cmd.OutOrStdout(), task)
		},
	}
}

func (c *cli) watchCmd() *cobra.Command {
	var (
		pollOnly bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch TASK_ID",
		Short: "Follow a task until it is ready or failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.client()
			if err != nil {
				return err
			}
			opts := []alacard.ObserveOption{alacard.WithPollInterval(interval)}
			if pollOnly {
				opts = append(opts, alacard.WithPollOnly())
			}
			return follow(cmd, client, args[0], opts...)
		},
	}
	cmd.Flags().BoolVar(&pollOnly, "poll-only", false, "poll the status endpoint instead of listening for pushes")
	cmd.Flags().DurationVar(&interval, "interval", alacard.DefaultPollInterval, "polling interval")
	return cmd
}

func (c *cli) downloadCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "download SHARE_ID",
		Short: "Download a generated notebook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.client()
			if err != nil {
				return err
			}
			d, err := client.Download(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			path := output
			if path == "" {
				path = filepath.Base(d.Filename)
			}
			if err := os.WriteFile(path, d.Content, 0o644); err != nil { //nolint:gosec // notebooks are meant to be shared
				return fmt.Errorf("write %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%d bytes)\n", path, len(d.Content))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: server-suggested name)")
	return cmd
}

func (c *cli) cardsCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "cards KIND",
		Short:     "List catalog cards",
		Long:      "List catalog cards of one kind: models, prompt-packs, topics, difficulties or ui-components.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"models", "prompt-packs", "topics", "difficulties", "ui-components"},
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.client()
			if err != nil {
				return err
			}
			cards, err := client.Cards(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), cards)
		},
	}
}

// follow prints progress for taskID until it finishes. A failed task is
// reported as an error.
func follow(cmd *cobra.Command, client *alacard.Client, taskID string, opts ...alacard.ObserveOption) error {
	o := client.Observe(cmd.Context(), taskID, opts...)
	defer o.Stop()

	out := cmd.OutOrStdout()
	for t := range o.Events() {
		fmt.Fprintf(out, "[%3d%%] %-10s %s\n", t.ProgressPercent, t.State, t.CurrentStep)
	}
	final, err := o.Wait(cmd.Context())
	if err != nil {
		if alacard.IsNotFound(err) {
			return fmt.Errorf("task %s not found or expired", taskID)
		}
		return err
	}
	if final.State == alacard.TaskFailed {
		return fmt.Errorf("generation failed: %s", final.ErrorMessage)
	}
	fmt.Fprintf(out, "notebook %s\n", final.DocumentRef)
	if final.Warning != "" {
		fmt.Fprintf(out, "warning: %s\n", final.Warning)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
