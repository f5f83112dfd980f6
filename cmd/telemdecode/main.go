// telemdecode converts recorded telemetry files to CSV, next to the input,
// and optionally loads the frames into a SQLite database.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"github.com/westphae/gorocket/telemetry"
	"go.uber.org/multierr"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var dbPath string
	flagSet := pflag.NewFlagSet("telemdecode", pflag.ContinueOnError)
	flagSet.StringVar(&dbPath, "sqlite", "", "also append the frames to this SQLite database")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: telemdecode [--sqlite db] <input>...\n")
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() == 0 {
		flagSet.Usage()
		return errors.New("no input file")
	}

	var db *telemetry.SQLiteExporter
	if dbPath != "" {
		var err error
		if db, err = telemetry.OpenSQLite(dbPath); err != nil {
			return err
		}
		defer db.Close()
	}

	for _, in := range flagSet.Args() {
		frames, err := decodeFile(in, in+".csv")
		if err != nil {
			return fmt.Errorf("%s: %w", in, err)
		}
		if db != nil {
			if err := db.Export(frames); err != nil {
				return fmt.Errorf("%s: exporting to %s: %w", in, dbPath, err)
			}
		}
	}
	return nil
}

// decodeFile writes every whole frame of in to out. A truncated last frame is
// reported and skipped.
func decodeFile(in, out string) (frames []telemetry.Frame, err error) {
	r, err := os.Open(in)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	info, err := r.Stat()
	if err != nil {
		return nil, err
	}

	w, err := os.Create(out)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Append(err, w.Close())
	}()

	dec := telemetry.NewDecoder(r)
	csv := telemetry.NewCSVWriter(w)
	for {
		f, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, telemetry.ErrShortFrame) {
			fmt.Fprintf(os.Stderr, "%s: %v\n", in, err)
			break
		}
		if err != nil {
			return frames, err
		}
		if err := csv.Write(&f); err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
	if err := csv.Flush(); err != nil {
		return frames, err
	}

	fmt.Printf("Decoded %d telemetry packets from %s (%s) to %s\n",
		len(frames), in, humanize.Bytes(uint64(info.Size())), out)
	return frames, nil
}
