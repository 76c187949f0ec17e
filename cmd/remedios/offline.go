package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/coelhotv/meus-remedios/internal/dosing"
)

// fixture is the YAML input of the offline commands. It carries everything
// the engine needs so results can be reproduced without a database.
type fixture struct {
	Timezone               string             `yaml:"timezone"`
	Now                    *time.Time         `yaml:"now"`
	UnknownFrequencyPolicy string             `yaml:"unknown_frequency_policy"`
	RecurrenceAwareTotals  bool               `yaml:"recurrence_aware_totals"`
	Protocols              []dosing.Protocol  `yaml:"protocols"`
	Logs                   []dosing.IntakeLog `yaml:"logs"`
}

func loadFixture(path string) (*fixture, error) {
	if path == "" {
		return nil, fmt.Errorf("--fixture is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var f fixture
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

func (f *fixture) engine() (*dosing.Engine, error) {
	tz := f.Timezone
	if tz == "" {
		tz = "America/Sao_Paulo"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("fixture timezone %q: %w", tz, err)
	}
	policy, ok := dosing.ParseUnknownFrequencyPolicy(f.UnknownFrequencyPolicy)
	if !ok {
		return nil, fmt.Errorf("fixture unknown_frequency_policy %q is not due or not_due", f.UnknownFrequencyPolicy)
	}
	opts := []dosing.Option{
		dosing.WithLocation(loc),
		dosing.WithUnknownFrequencyPolicy(policy),
		dosing.WithRecurrenceAwareTotals(f.RecurrenceAwareTotals),
	}
	if f.Now != nil {
		opts = append(opts, dosing.WithClock(dosing.FixedClock(*f.Now)))
	}
	return dosing.New(opts...), nil
}

func (f *fixture) protocol(id string) (dosing.Protocol, error) {
	for _, p := range f.Protocols {
		if p.ID == id {
			return p, nil
		}
	}
	return dosing.Protocol{}, fmt.Errorf("protocol %q not found in fixture", id)
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fixtureEngine(cmd *cobra.Command) (*fixture, *dosing.Engine, error) {
	path, _ := cmd.Flags().GetString("fixture")
	f, err := loadFixture(path)
	if err != nil {
		return nil, nil, err
	}
	e, err := f.engine()
	if err != nil {
		return nil, nil, err
	}
	return f, e, nil
}

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile one day of a fixture and print the classified doses",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, e, err := fixtureEngine(cmd)
			if err != nil {
				return err
			}
			day := e.Today()
			if s, _ := cmd.Flags().GetString("date"); s != "" {
				if day, err = dosing.ParseDate(s); err != nil {
					return err
				}
			}
			logs := dosing.LogsOn(day, f.Logs, e.Location())
			return writeJSON(cmd, struct {
				Date dosing.CivilDate `json:"date"`
				dosing.DayResult
			}{day, e.ReconcileDay(&day, logs, f.Protocols)})
		},
	}
	cmd.Flags().String("fixture", "", "YAML fixture with protocols and logs")
	cmd.Flags().String("date", "", "Day to reconcile (YYYY-MM-DD, default today)")
	return cmd
}

func adherenceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adherence",
		Short: "Compute adherence stats over a window ending today",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, e, err := fixtureEngine(cmd)
			if err != nil {
				return err
			}
			days, _ := cmd.Flags().GetInt("days")
			stats, err := e.Aggregate(f.Logs, f.Protocols, days)
			if err != nil {
				return err
			}
			return writeJSON(cmd, stats)
		},
	}
	cmd.Flags().String("fixture", "", "YAML fixture with protocols and logs")
	cmd.Flags().Int("days", 30, "Window length in days")
	return cmd
}

func titrationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "titration",
		Short: "Print the titration timeline of a fixture protocol",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, e, err := fixtureEngine(cmd)
			if err != nil {
				return err
			}
			id, _ := cmd.Flags().GetString("protocol")
			p, err := f.protocol(id)
			if err != nil {
				return err
			}
			if summary, _ := cmd.Flags().GetBool("summary"); summary {
				s, err := e.TitrationSummary(p)
				if err != nil {
					return err
				}
				return writeJSON(cmd, s)
			}
			tl, err := e.ComputeTimeline(p)
			if err != nil {
				return err
			}
			return writeJSON(cmd, tl)
		},
	}
	cmd.Flags().String("fixture", "", "YAML fixture with protocols and logs")
	cmd.Flags().String("protocol", "", "Protocol id")
	cmd.Flags().Bool("summary", false, "Print the compact summary instead of the timeline")
	return cmd
}
