package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"maze.io/x/duration"

	"github.com/hostsel/hostsel/config"
	"github.com/hostsel/hostsel/varz"
)

var dumpVarz bool

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Short:         "Host selection administration tool",
		Use:           "hostseladmin",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if !dumpVarz {
				return
			}
			for _, v := range varz.Snapshot("") {
				if v.Name == "cmdline" || v.Name == "memstats" {
					continue
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%s = %s\n", v.Name, v.Value)
			}
		},
	}
	rootCmd.PersistentFlags().BoolVar(&dumpVarz, "varz", false, "Print cache and allocation counters on exit")

	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database maintenance",
	}
	dbCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create any missing tables",
		Args:  cobra.NoArgs,
		RunE:  migrateDB,
	})

	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change instructors, slots, and capacity",
	}
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Change settings from a YAML file and/or flags",
		Args:  cobra.NoArgs,
		RunE:  setSettings,
	}
	setCmd.Flags().StringVar(&settingsFile, "file", "", "YAML settings file to start from")
	setCmd.Flags().StringVar(&instructors, "instructors", "", "Comma-separated instructor names")
	setCmd.Flags().IntVar(&capacity, "capacity", 0, "Participants per instructor per slot")
	setCmd.Flags().StringVar(&scoring, "scoring", "", `Pair scoring policy, "sum" or "max"`)
	setCmd.Flags().StringVar(&systemName, "name", "", "System name")
	settingsCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the current settings as YAML",
		Args:  cobra.NoArgs,
		RunE:  showSettings,
	}, setCmd)

	participantsCmd := &cobra.Command{
		Use:   "participants",
		Short: "Manage the roster",
	}
	importCmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import participants from a .yaml or .csv roster",
		Args:  cobra.ExactArgs(1),
		RunE:  importParticipants,
	}
	importCmd.Flags().BoolVar(&replace, "replace", false, "Remove everyone not in the file first")
	importCmd.Flags().BoolVar(&withSettings, "with-settings", false, "Also save the settings section of a YAML roster")
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List participants in allocation order",
		Args:  cobra.NoArgs,
		RunE:  listParticipants,
	}
	listCmd.Flags().BoolVar(&onlySubmitted, "submitted", false, "Only participants who submitted")
	setPrefsCmd := &cobra.Command{
		Use:   "set-preferences [participant-id] [instructors]",
		Short: "Rank every instructor for one participant, e.g. A,B,C,D",
		Args:  cobra.ExactArgs(2),
		RunE:  setPreferences,
	}
	setPrefsCmd.Flags().BoolVar(&submitPrefs, "submit", false, "Also submit, locking the ranking in")
	resetCmd := &cobra.Command{
		Use:   "reset [participant-id]",
		Short: "Clear a participant's preferences so they can submit again",
		Args:  cobra.MaximumNArgs(1),
		RunE:  resetParticipant,
	}
	resetCmd.Flags().BoolVar(&resetAll, "all", false, "Reset everyone and drop the current allocation")
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every participant and the current allocation",
		Args:  cobra.NoArgs,
		RunE:  clearParticipants,
	}
	clearCmd.Flags().BoolVar(&clearHistory, "history", false, "Delete run history too")
	participantsCmd.AddCommand(importCmd, listCmd, setPrefsCmd, &cobra.Command{
		Use:   "submit [participant-id]",
		Short: "Lock in a participant's saved ranking",
		Args:  cobra.ExactArgs(1),
		RunE:  submitPreferences,
	}, resetCmd, clearCmd)

	allocateCmd := &cobra.Command{
		Use:   "allocate",
		Short: "Generate a new allocation and make it current",
		Args:  cobra.NoArgs,
		RunE:  allocate,
	}
	allocateCmd.Flags().StringVar(&rosterFile, "roster", "", "Allocate this roster file in memory instead of the database")
	allocateCmd.Flags().Int64Var(&seed, "seed", 0, "Seed for the random fallback (default from config, 0 picks one)")
	allocateCmd.Flags().BoolVar(&onlySubmitted, "only-submitted", false, "Leave out participants who never submitted")

	allocationCmd := &cobra.Command{
		Use:   "allocation",
		Short: "Inspect allocations",
	}
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print an allocation with its statistics",
		Args:  cobra.NoArgs,
		RunE:  showAllocation,
	}
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write an allocation as CSV",
		Args:  cobra.NoArgs,
		RunE:  exportAllocation,
	}
	exportCmd.Flags().StringVarP(&outputFile, "output", "o", "", "File to write (default stdout)")
	for _, c := range []*cobra.Command{showCmd, exportCmd} {
		c.Flags().StringVar(&runID, "run", "", "Run id from history (default current)")
	}
	allocationCmd.AddCommand(showCmd, exportCmd, &cobra.Command{
		Use:   "watch",
		Short: "Print new allocations as they are generated elsewhere",
		Args:  cobra.NoArgs,
		RunE:  watchAllocations,
	}, &cobra.Command{
		Use:   "participant [participant-id]",
		Short: "Show where one participant was placed",
		Args:  cobra.ExactArgs(1),
		RunE:  showParticipantResult,
	}, &cobra.Command{
		Use:   "instructor [name]",
		Short: "List one instructor's participants per slot",
		Args:  cobra.ExactArgs(1),
		RunE:  showInstructor,
	})

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Past allocation runs",
	}
	historyListCmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		Args:  cobra.NoArgs,
		RunE:  listHistory,
	}
	historyListCmd.Flags().IntVar(&historyOffset, "offset", 0, "Runs to skip")
	historyListCmd.Flags().IntVar(&historyLimit, "limit", 20, "Runs to list, negative for all")
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old runs; the current one is always kept",
		Args:  cobra.NoArgs,
		RunE:  pruneHistory,
	}
	olderThan = duration.Duration(90 * 24 * time.Hour)
	pruneCmd.Flags().Func("older-than", "Delete runs older than this (e.g. 90d, 12h; default 90d)", func(s string) error {
		d, err := duration.ParseDuration(s)
		if err != nil {
			return err
		}
		olderThan = d
		return nil
	})
	historyCmd.AddCommand(historyListCmd, pruneCmd)

	for _, c := range []*cobra.Command{listCmd, historyListCmd} {
		c.Flags().StringVar(&outputFormat, "format", formatAuto, "auto, table or csv")
	}

	rootCmd.AddCommand(dbCmd, settingsCmd, participantsCmd, allocateCmd, allocationCmd, historyCmd, &cobra.Command{
		Use:   "summary",
		Short: "Roster, capacity, and current allocation at a glance",
		Args:  cobra.NoArgs,
		RunE:  showSummary,
	})
	return rootCmd
}

func main() {
	config.Init()

	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
