package main

import (
	"errors"
	"fmt"

	"followgraph/pkg/social"
	"followgraph/pkg/ui"
	"followgraph/pkg/userset"

	"github.com/spf13/cobra"
)

var (
	splitSegments int
	splitSize     int
	splitOut      string
	splitDeal     bool
)

// usersetCmd groups user list helpers
var usersetCmd = &cobra.Command{
	Use:   "userset",
	Short: "Work with user ID lists",
}

var splitCmd = &cobra.Command{
	Use:   "split FILE",
	Short: "Split a user list into segments",
	Long: `Split a user list into --segments lists of near-equal size, or into
lists of at most --size users. Output files are numbered after --out (or the
input): users.txt becomes users_0.txt, users_1.txt, ...

Lists ending in .roar are read and written as roaring bitmaps.`,
	Example: `  followgraph userset split users.txt --segments 4
  followgraph userset split users.roar --size 10000 --out chunks/users.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runSplit,
}

func init() {
	rootCmd.AddCommand(usersetCmd)
	usersetCmd.AddCommand(splitCmd)

	splitCmd.Flags().IntVar(&splitSegments, "segments", 0, "number of segments")
	splitCmd.Flags().IntVar(&splitSize, "size", 0, "maximum users per segment")
	splitCmd.Flags().BoolVar(&splitDeal, "deal", false, "deal users round robin instead of contiguous runs")
	splitCmd.Flags().StringVarP(&splitOut, "out", "o", "", "output path pattern (default: the input path)")
	splitCmd.MarkFlagsMutuallyExclusive("segments", "size")
}

func runSplit(cmd *cobra.Command, args []string) error {
	ids, err := userset.Load(args[0])
	if err != nil {
		return err
	}

	var parts [][]social.UserID
	switch {
	case splitSize > 0:
		parts, err = userset.Chunk(ids, splitSize)
	case splitSegments > 0 && splitDeal:
		parts, err = userset.Distribute(ids, splitSegments)
	case splitSegments > 0:
		parts, err = userset.Split(ids, splitSegments)
	default:
		return errors.New("one of --segments or --size is required")
	}
	if err != nil {
		return err
	}

	out := splitOut
	if out == "" {
		out = args[0]
	}
	for i, part := range parts {
		path := userset.SegmentPath(out, i)
		if err := userset.Save(path, part); err != nil {
			return err
		}
		ui.PrintInfo(path, fmt.Sprintf("%d users", len(part)))
	}
	ui.PrintSuccess(fmt.Sprintf("Split %d users into %d lists", len(ids), len(parts)))
	return nil
}
