package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"treesync/internal/commit"
	"treesync/internal/diff"
	"treesync/internal/remote"
)

func printActions(w io.Writer, actions []remote.Action) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	if len(actions) == 0 {
		fmt.Fprintln(w, "Nothing to commit (remote is up to date)")
		return
	}
	for _, a := range actions {
		switch a.Kind {
		case remote.ActionCreate:
			fmt.Fprintf(w, "\t%s %s\n", green("A"), a.Path)
		case remote.ActionUpdate:
			fmt.Fprintf(w, "\t%s %s\n", yellow("M"), a.Path)
		case remote.ActionDelete:
			fmt.Fprintf(w, "\t%s %s\n", red("D"), a.Path)
		}
	}
}

func printResult(w io.Writer, result *commit.Result) {
	if !result.Submitted {
		fmt.Fprintln(w, "Nothing to commit (remote is up to date)")
		return
	}
	fmt.Fprintf(w, "Committed %d changes to %s (%s)\n", result.Actions, result.Ack.Branch, result.Ack.ID)
}

// printRecords renders parsed diff records the way a unified diff is shown,
// with a per-file summary line.
func printRecords(w io.Writer, records []diff.Record) {
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	header := color.New(color.FgCyan)
	file := color.New(color.Bold)

	if len(records) == 0 {
		fmt.Fprintln(w, "No differences")
		return
	}
	for _, r := range records {
		s := r.Stats()
		file.Fprintf(w, "%s (+%d -%d)\n", r.FilePath, s.Additions, s.Deletions)
		for _, h := range r.Hunks {
			header.Fprintln(w, h.Header)
			for _, line := range h.Lines {
				switch line.Type {
				case diff.Addition:
					added.Fprintln(w, line.Text)
				case diff.Deletion:
					removed.Fprintln(w, line.Text)
				default:
					fmt.Fprintln(w, line.Text)
				}
			}
		}
	}
}
