package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/c360/trajstream/codec"
)

func inspect(w io.Writer, path string, frames int) error {
	st, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	c, closer, err := openContainer(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = closer.Close() }()

	return report(w, path, uint64(st.Size()), c, frames)
}

// report writes a human readable summary of c. frames limits the frame
// listing; -1 lists every frame.
func report(w io.Writer, path string, size uint64, c *codec.Container, frames int) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "File:\t%s (%s)\n", path, humanize.IBytes(size))
	fmt.Fprintf(tw, "Version:\t%d\n", c.Version)
	fmt.Fprintf(tw, "Blocks:\t%d\n", len(c.Blocks))
	for i, b := range c.Blocks {
		fmt.Fprintf(tw, "  [%d]\t%s\toffset %d\t%s\n", i, b.Type, b.Offset, humanize.IBytes(uint64(len(b.Data))))
	}

	info := c.TrajectoryInfo
	fmt.Fprintf(tw, "Time step:\t%g\n", info.TimeStepSize)
	fmt.Fprintf(tw, "Total steps:\t%s\n", humanize.Comma(int64(info.TotalSteps)))
	fmt.Fprintf(tw, "Duration:\t%g\n", info.TotalDuration())
	if info.Size != nil {
		fmt.Fprintf(tw, "Box size:\t%g x %g x %g\n", info.Size.X, info.Size.Y, info.Size.Z)
	}
	if len(info.TypeMapping) > 0 {
		ids := make([]string, 0, len(info.TypeMapping))
		for id := range info.TypeMapping {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		fmt.Fprintf(tw, "Agent types:\t%d\n", len(ids))
		for _, id := range ids {
			fmt.Fprintf(tw, "  %s\t%s\n", id, info.TypeMapping[id].Name)
		}
	}
	if len(c.PlotData) > 0 {
		fmt.Fprintf(tw, "Plot data:\t%d keys\n", len(c.PlotData))
	}

	n := c.Frames.NumFrames()
	fmt.Fprintf(tw, "Frames:\t%s\n", humanize.Comma(int64(n)))
	if n > 0 {
		first, ferr := c.Frames.Header(0)
		last, lerr := c.Frames.Header(n - 1)
		if ferr == nil && lerr == nil {
			fmt.Fprintf(tw, "Time range:\t%g .. %g\n", first.Time, last.Time)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if frames < 0 || frames > n {
		frames = n
	}
	if frames == 0 {
		return nil
	}

	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nFRAME\tTIME\tAGENTS\tSIZE")
	for i := 0; i < frames; i++ {
		frame, err := c.Frames.Frame(i)
		if err != nil {
			fmt.Fprintf(tw, "#%d\t-\t-\terror: %v\n", i, err)
			continue
		}
		fmt.Fprintf(tw, "%d\t%g\t%d\t%s\n", frame.FrameNumber, frame.Time, len(frame.Agents), humanize.IBytes(uint64(frame.Size())))
	}
	if frames < n {
		fmt.Fprintf(tw, "...\t%s more\t\t\n", humanize.Comma(int64(n-frames)))
	}
	return tw.Flush()
}
