package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"engagement-engine/models"
	"engagement-engine/services"

	"github.com/spf13/cobra"
)

var (
	logRef     string
	rollupWeek string
	boardLimit int
)

func init() {
	logCmd.Flags().StringVar(&logRef, "ref", "", "reference id (message, demo or meeting)")
	streaksRollupCmd.Flags().StringVar(&rollupWeek, "week", "", "week key to roll up (YYYY-MM-DD Monday, default previous week)")
	seasonBoardCmd.Flags().IntVarP(&boardLimit, "limit", "n", 0, "rows to show (default season.top_n)")

	seasonCmd.AddCommand(seasonCurrentCmd, seasonRolloverCmd, seasonBoardCmd, seasonListCmd)
	streaksCmd.AddCommand(streaksRollupCmd, streaksShowCmd)
	policyCmd.AddCommand(policyGetCmd, policySetCmd, policyListCmd)
	rootCmd.AddCommand(logCmd, statsCmd, seasonCmd, streaksCmd, policyCmd, digestCmd, remindersCmd)
}

var logCmd = &cobra.Command{
	Use:   "log <user-id> <action-type>",
	Short: "Record an action and print the points credited",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		var ref *string
		if logRef != "" {
			ref = &logRef
		}
		points, err := a.engine.LogAction(cmd.Context(), args[0], models.ActionType(args[1]), ref)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s: +%d points\n", args[0], args[1], points)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats <user-id>",
	Short: "Show a member's week, season, streak and badges",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.engine.GetUserStats(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}

var seasonCmd = &cobra.Command{
	Use:   "season",
	Short: "Inspect and roll over seasons",
}

var seasonCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the active season, starting one if none exists",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.seasons.GetOrStartCurrentSeason(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(s)
	},
}

var seasonRolloverCmd = &cobra.Command{
	Use:   "rollover",
	Short: "Close the active season now and start the next one",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		out, err := a.seasons.EndCurrentSeason(cmd.Context())
		if err != nil {
			return err
		}
		if out == nil {
			fmt.Println("No active season.")
			return nil
		}
		fmt.Printf("Closed %s, started %s.\n", out.Closed.Name, out.Started.Name)
		return printBoard(out.TopScores)
	},
}

var seasonBoardCmd = &cobra.Command{
	Use:   "leaderboard [season-id]",
	Short: "Show a season leaderboard (default: active season)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		seasonID := ""
		if len(args) == 1 {
			seasonID = args[0]
		} else {
			s, err := a.seasons.GetOrStartCurrentSeason(cmd.Context())
			if err != nil {
				return err
			}
			seasonID = s.ID
		}
		limit := boardLimit
		if limit <= 0 {
			limit = int(a.policy.Int(models.PolicySeasonTopN))
		}
		board, err := a.seasons.Leaderboard(cmd.Context(), seasonID, limit)
		if err != nil {
			return err
		}
		return printBoard(board)
	},
}

var seasonListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all seasons",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		seasons, err := a.seasons.ListSeasons(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATUS\tSTART\tEND")
		for _, s := range seasons {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				s.ID, s.Name, s.Status,
				s.StartDate.In(a.loc).Format("2006-01-02"),
				s.EndDate.In(a.loc).Format("2006-01-02"),
			)
		}
		return w.Flush()
	},
}

var streaksCmd = &cobra.Command{
	Use:   "streaks",
	Short: "Weekly goal streaks",
}

var streaksRollupCmd = &cobra.Command{
	Use:   "rollup",
	Short: "Evaluate the weekly goal for a finished week",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		var summary *services.RollupSummary
		if rollupWeek != "" {
			start, err := services.ParseWeekKey(rollupWeek, a.loc)
			if err != nil {
				return err
			}
			summary, err = a.streaks.RollupWeek(cmd.Context(), start)
			if err != nil {
				return err
			}
		} else {
			summary, err = a.streaks.RollupPreviousWeek(cmd.Context())
			if err != nil {
				return err
			}
		}
		fmt.Printf("Week %s: %d evaluated, %d met the goal, %d reset, %d already applied.\n",
			summary.WeekKey, summary.Evaluated, summary.GoalsMet, summary.Resets, summary.Skipped)
		return nil
	},
}

var streaksShowCmd = &cobra.Command{
	Use:   "show <user-id>",
	Short: "Show a member's streak",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.streaks.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(s)
	},
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Read and change engine policy values",
}

var policyGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one policy value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Println(a.policy.String(args[0]))
		return nil
	},
}

var policySetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a policy value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.policy.Set(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("%s = %s\n", args[0], args[1])
		return nil
	},
}

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored policy values",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		all, err := a.policy.All(cmd.Context())
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(all))
		for k := range all {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tVALUE")
		for _, k := range keys {
			fmt.Fprintf(w, "%s\t%s\n", k, all[k])
		}
		return w.Flush()
	},
}

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Build and publish last week's community digest",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.digests.PublishWeekly(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(d)
	},
}

var remindersCmd = &cobra.Command{
	Use:   "reminders",
	Short: "Dispatch reminders that are due",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.reminder.DispatchDue(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Dispatched %d reminder(s).\n", n)
		return nil
	},
}

func printBoard(board []models.ScoreEntry) error {
	if len(board) == 0 {
		fmt.Println("No scores yet.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tUSER\tPOINTS")
	for _, e := range board {
		fmt.Fprintf(w, "%d\t%s\t%d\n", e.Rank, e.UserID, e.Points)
	}
	return w.Flush()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
