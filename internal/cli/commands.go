package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/SirClappington/wheelsched/internal/domain"
	"github.com/SirClappington/wheelsched/internal/scheduler"
)

func (a *app) newSubmitCmd() *cobra.Command {
	var (
		tenant      string
		name        string
		runIn       time.Duration
		runAt       int64
		payload     string
		maxAttempts int
		failureRate float64
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if runAt == 0 {
				runAt = time.Now().Add(runIn).UnixMilli()
			}
			body := map[string]any{
				"tenantId":    tenant,
				"name":        name,
				"runAt":       runAt,
				"maxAttempts": maxAttempts,
			}
			if payload != "" {
				if !json.Valid([]byte(payload)) {
					return fmt.Errorf("--payload is not valid JSON")
				}
				body["payload"] = json.RawMessage(payload)
			}
			if cmd.Flags().Changed("failure-rate") {
				body["failureRate"] = failureRate
			}

			raw, err := a.fetch(cmd.Context(), http.MethodPost, "/api/jobs", body)
			if err != nil {
				return fmt.Errorf("submit: %w", err)
			}
			return a.render(raw, nil)
		},
	}
	f := cmd.Flags()
	f.StringVar(&tenant, "tenant", "", "tenant id")
	f.StringVar(&name, "name", "", "job name")
	f.DurationVar(&runIn, "in", 0, "delay from now before the job is due")
	f.Int64Var(&runAt, "at", 0, "due time in unix milliseconds (overrides --in)")
	f.StringVar(&payload, "payload", "", "JSON payload")
	f.IntVar(&maxAttempts, "max-attempts", 0, "attempt budget (server default when 0)")
	f.Float64Var(&failureRate, "failure-rate", 0, "simulated failure probability")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (a *app) newHeartbeatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "heartbeat [node-id]",
		Short: "Heartbeat a node (a new id is generated when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{}
			if len(args) == 1 {
				body["nodeId"] = args[0]
			}
			raw, err := a.fetch(cmd.Context(), http.MethodPost, "/api/nodes/heartbeat", body)
			if err != nil {
				return fmt.Errorf("heartbeat: %w", err)
			}
			return a.render(raw, nil)
		},
	}
}

func withLimit(path string, limit int) string {
	if limit <= 0 {
		return path
	}
	return path + "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
}

func (a *app) newJobsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := a.fetch(cmd.Context(), http.MethodGet, withLimit("/api/jobs", limit), nil)
			if err != nil {
				return fmt.Errorf("list jobs: %w", err)
			}
			return a.render(raw, func(raw json.RawMessage) error {
				var jobs []domain.Job
				if err := json.Unmarshal(raw, &jobs); err != nil {
					return err
				}
				rows := make([][]string, 0, len(jobs))
				for _, j := range jobs {
					rows = append(rows, []string{
						j.ID, j.TenantID, j.Name, string(j.Status),
						fmt.Sprintf("%d/%d", j.Attempts, j.MaxAttempts),
						strconv.Itoa(j.ShardID),
						j.RunAt.Format(time.RFC3339),
					})
				}
				return a.out.tabular([]string{"ID", "TENANT", "NAME", "STATUS", "ATTEMPTS", "SHARD", "RUN AT"}, rows)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum jobs to show (server default 50)")
	return cmd
}

func (a *app) newJobCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "job <id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := a.fetch(cmd.Context(), http.MethodGet, "/api/jobs/"+url.PathEscape(args[0]), nil)
			if err != nil {
				return fmt.Errorf("get job: %w", err)
			}
			return a.render(raw, nil)
		},
	}
}

func (a *app) newExecutionsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "executions",
		Short: "List recent executions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := a.fetch(cmd.Context(), http.MethodGet, withLimit("/api/executions", limit), nil)
			if err != nil {
				return fmt.Errorf("list executions: %w", err)
			}
			return a.render(raw, func(raw json.RawMessage) error {
				var execs []domain.Execution
				if err := json.Unmarshal(raw, &execs); err != nil {
					return err
				}
				rows := make([][]string, 0, len(execs))
				for _, e := range execs {
					rows = append(rows, []string{e.ID, e.JobID, e.WorkerID, string(e.Status), e.StartedAt.Format(time.RFC3339)})
				}
				return a.out.tabular([]string{"ID", "JOB", "WORKER", "STATUS", "STARTED"}, rows)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum executions to show (server default 40)")
	return cmd
}

func (a *app) newNodesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "nodes",
		Short: "List nodes and the current leader",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := a.fetch(cmd.Context(), http.MethodGet, "/api/nodes", nil)
			if err != nil {
				return fmt.Errorf("list nodes: %w", err)
			}
			return a.render(raw, func(raw json.RawMessage) error {
				var view scheduler.NodesView
				if err := json.Unmarshal(raw, &view); err != nil {
					return err
				}
				rows := make([][]string, 0, len(view.Nodes))
				for _, n := range view.Nodes {
					leader := ""
					if string(view.LeaderID) == n.ID {
						leader = "*"
					}
					rows = append(rows, []string{n.ID, leader, n.ExpiresAt.Format(time.RFC3339)})
				}
				return a.out.tabular([]string{"ID", "LEADER", "EXPIRES"}, rows)
			})
		},
	}
}

func (a *app) newShardsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shards",
		Short: "Show job counts per shard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := a.fetch(cmd.Context(), http.MethodGet, "/api/shards", nil)
			if err != nil {
				return fmt.Errorf("list shards: %w", err)
			}
			return a.render(raw, func(raw json.RawMessage) error {
				var body struct {
					Shards []scheduler.ShardLoad `json:"shards"`
				}
				if err := json.Unmarshal(raw, &body); err != nil {
					return err
				}
				rows := make([][]string, 0, len(body.Shards))
				for _, s := range body.Shards {
					rows = append(rows, []string{strconv.Itoa(s.ShardID), s.Name, strconv.Itoa(s.JobCount)})
				}
				return a.out.tabular([]string{"ID", "NAME", "JOBS"}, rows)
			})
		},
	}
}

func (a *app) newEventsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent scheduler events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := a.fetch(cmd.Context(), http.MethodGet, withLimit("/api/events", limit), nil)
			if err != nil {
				return fmt.Errorf("list events: %w", err)
			}
			return a.render(raw, nil)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum events to show (all retained when 0)")
	return cmd
}

func (a *app) newSeedCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Submit a burst of demo jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := a.fetch(cmd.Context(), http.MethodPost, "/api/seed", map[string]int{"count": count})
			if err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			return a.render(raw, nil)
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "number of jobs (server default 12)")
	return cmd
}
