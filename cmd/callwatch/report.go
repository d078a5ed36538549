package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/callwatch/callwatch/internal/issues"
	"github.com/callwatch/callwatch/internal/monitor"
	"github.com/callwatch/callwatch/internal/types"
)

var reportCmd = &cobra.Command{
	Use:   "report <snapshot.json>",
	Short: "Render a stats snapshot as a terminal report",
	Long: `Read a stats snapshot (the JSON form of the monitor's Stats, as
serialized by an embedding application) and render it as a colorized
terminal report with an urgency roll-up of the issue history.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		data, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: reading snapshot: %v\n", err)
			os.Exit(1)
		}

		var stats monitor.Stats
		if err := json.Unmarshal(data, &stats); err != nil {
			fmt.Fprintf(os.Stderr, "Error: parsing snapshot: %v\n", err)
			os.Exit(1)
		}

		renderStats(stats, monitor.Health{})
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

// renderStats prints the efficiency snapshot and issue roll-up.
func renderStats(stats monitor.Stats, health monitor.Health) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s\n\n", cyan("=== Call Efficiency Report ==="))

	fmt.Printf("%s\n", yellow("Session:"))
	fmt.Printf("  Total calls:     %d\n", stats.TotalCalls)
	fmt.Printf("  Redundant calls: %d\n", stats.RedundantCalls)
	rateStr := fmt.Sprintf("%.1f%%", stats.RedundancyRate*100)
	if stats.RedundancyRate >= 0.25 {
		rateStr = red(rateStr)
	} else if stats.RedundancyRate > 0 {
		rateStr = yellow(rateStr)
	} else {
		rateStr = green(rateStr)
	}
	fmt.Printf("  Redundancy rate: %s\n", rateStr)
	fmt.Println()

	if len(stats.CallsByType) > 0 {
		fmt.Printf("%s\n", yellow("Calls by type:"))
		for _, ct := range []types.CallType{
			types.CallRemoteProcedure, types.CallAPIRoute,
			types.CallFetch, types.CallXHR, types.CallUnknown,
		} {
			if n := stats.CallsByType[ct]; n > 0 {
				fmt.Printf("  %-18s %d\n", string(ct)+":", n)
			}
		}
		fmt.Println()
	}

	fmt.Printf("%s\n", yellow("Redundancy patterns:"))
	if len(stats.RedundantPatterns) == 0 {
		fmt.Printf("  %s\n", gray("None detected"))
	}
	for _, p := range stats.RedundantPatterns {
		fmt.Printf("  %s %s: %d duplicates over %v\n",
			patternBadge(p.Class), p.Original.Endpoint(), p.DuplicateCount(), p.TimeWindow)
	}
	fmt.Println()

	fmt.Printf("%s\n", yellow("Issues:"))
	if len(stats.PersistentIssues) == 0 {
		fmt.Printf("  %s\n", green("No actionable issues"))
	}
	for _, issue := range stats.PersistentIssues {
		fmt.Printf("  %s [%s] %s\n", severityBadge(issue.Severity), issue.Category, issue.Type)
		fmt.Printf("    Fix:    %s\n", issue.RecommendedFix)
		fmt.Printf("    Impact: %s\n", gray(issue.BusinessImpact))
	}

	if len(stats.PersistentIssues) > 0 {
		report := issues.ClassifyByUrgency(stats.PersistentIssues)
		fmt.Println()
		fmt.Printf("%s", yellow("Urgency: "))
		fmt.Printf("%s critical, %s high, %d medium, %d low",
			red(fmt.Sprint(report.BySeverity[types.SeverityCritical])),
			yellow(fmt.Sprint(report.BySeverity[types.SeverityHigh])),
			report.BySeverity[types.SeverityMedium],
			report.BySeverity[types.SeverityLow])
		if report.HasCacheRelatedIssues {
			fmt.Printf(" %s", gray("(cache-related issues present)"))
		}
		fmt.Println()
	}

	if health.Ledger.BufferSize > 0 || health.Throttle.Processed > 0 {
		fmt.Println()
		fmt.Printf("%s\n", yellow("Monitor health:"))
		fmt.Printf("  Ledger:   %d records (%.0f%% full), %d lookup entries\n",
			health.Ledger.BufferSize, health.Ledger.EfficiencyRatio*100, health.Ledger.LookupSize)
		fmt.Printf("  Throttle: %d processed, %d throttled\n",
			health.Throttle.Processed, health.Throttle.Throttled)
	}
	fmt.Println()
}

func severityBadge(s types.Severity) string {
	switch s {
	case types.SeverityCritical:
		return color.New(color.FgRed, color.Bold).Sprint("●")
	case types.SeverityHigh:
		return color.New(color.FgRed).Sprint("●")
	case types.SeverityMedium:
		return color.New(color.FgYellow).Sprint("●")
	default:
		return color.New(color.FgHiBlack).Sprint("●")
	}
}

func patternBadge(c types.PatternClass) string {
	switch c {
	case types.PatternRapidFire:
		return color.New(color.FgRed).Sprint("▸▸▸")
	case types.PatternBurst:
		return color.New(color.FgYellow).Sprint("▸▸")
	default:
		return color.New(color.FgHiBlack).Sprint("▸")
	}
}
