package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lodestar/internal/queue"
)

// NewQueueCmd builds the `queue` command group: enqueue, run, resume.
func NewQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Manage the ingestion work queue",
	}
	cmd.AddCommand(newQueueEnqueueCmd())
	cmd.AddCommand(newQueueRunCmd())
	cmd.AddCommand(newQueueResumeCmd())
	return cmd
}

func newQueueEnqueueCmd() *cobra.Command {
	var title, importance, projects string
	var rating float64
	var manual bool

	cmd := &cobra.Command{
		Use:   "enqueue <url>",
		Short: "Add a URL to the pending queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := newComponents(ctx)
			if err != nil {
				return err
			}
			controller, err := queue.NewController(c.cfg.Queue, c.cfg.RateLimit, c.pipeline())
			if err != nil {
				return err
			}
			defer controller.Close()

			item := queue.WorkItem{
				URL:        args[0],
				Title:      title,
				Rating:     rating,
				Importance: importance,
				Manual:     manual,
			}
			if projects != "" {
				item.Projects = strings.Split(projects, ",")
			}
			if err := controller.Enqueue(item); err != nil {
				return fmt.Errorf("enqueue: %w", err)
			}
			fmt.Printf("enqueued %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "optional title override")
	cmd.Flags().Float64Var(&rating, "rating", 0, "user rating (0-5)")
	cmd.Flags().StringVar(&importance, "importance", "", "importance: low, normal, high")
	cmd.Flags().StringVar(&projects, "projects", "", "comma-separated project labels")
	cmd.Flags().BoolVar(&manual, "manual", true, "whether this item was operator-submitted")
	return cmd
}

func newQueueRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process pending queue items until the queue is empty",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := newComponents(ctx)
			if err != nil {
				return err
			}
			controller, err := queue.NewController(c.cfg.Queue, c.cfg.RateLimit, c.pipeline())
			if err != nil {
				return err
			}
			defer controller.Close()

			if err := controller.Resume(); err != nil {
				return fmt.Errorf("resume: %w", err)
			}
			return controller.Run(context.Background())
		},
	}
}

func newQueueResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Move any items stuck in processing/ back to pending/",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := newComponents(ctx)
			if err != nil {
				return err
			}
			controller, err := queue.NewController(c.cfg.Queue, c.cfg.RateLimit, c.pipeline())
			if err != nil {
				return err
			}
			defer controller.Close()
			return controller.Resume()
		},
	}
}
