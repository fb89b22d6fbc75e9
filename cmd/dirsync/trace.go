package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bamsammich/dirsync/internal/mq"
)

func newTraceCmd(stdout io.Writer) *cobra.Command {
	var opFilter string

	cmd := &cobra.Command{
		Use:   "trace FILE",
		Short: "Print the worker messages recorded with --trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open trace: %w", err)
			}
			defer f.Close()

			var n int
			err = mq.ReadTrace(f, func(m mq.Message) error {
				n++
				if opFilter != "" && m.Op.String() != opFilter {
					return nil
				}
				_, werr := fmt.Fprintln(stdout, formatMessage(n, m))
				return werr
			})
			if err != nil {
				return fmt.Errorf("%s: message %d: %w", args[0], n, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opFilter, "op", "", "only print messages with this op code (e.g. FileEntry)")
	return cmd
}

// formatMessage renders one traced message as a single line:
// seq  from -> to  op  [payload]
func formatMessage(seq int, m mq.Message) string {
	line := fmt.Sprintf("%6d  %s -> %s  %s", seq, m.From, m.To, m.Op)
	switch m.Op {
	case mq.AnalyzeDir, mq.AnalyzeFile, mq.FileAnalyzed, mq.FileEntry:
		line += "  " + m.Entry.Path
		if m.Entry.HasDigest {
			line += "  digest=" + m.Entry.Digest.String()
		}
	case mq.ListComplete:
		line += fmt.Sprintf("  count=%d", m.Count)
	case mq.Terminate, mq.TerminateOk:
		if m.Count != 0 {
			line += fmt.Sprintf("  worker=%d", m.Count)
		}
	}
	if m.Err != "" {
		line += "  error=" + m.Err
	}
	return line
}
