// Command rbh is a small front end for robinhood backends: inspect the
// root entry, scan the index, or apply a stream of fsevents read from
// stdin as newline-delimited JSON.
//
// Usage:
//
//	rbh [flags] root  <uri>
//	rbh [flags] scan  <uri> [name-regex]
//	rbh [flags] apply <uri>
package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/mwantia/robinhood"
	"github.com/mwantia/robinhood/backend"
	"github.com/mwantia/robinhood/data"
	"github.com/mwantia/robinhood/iters"
	"github.com/mwantia/robinhood/log"
)

func main() {
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error, fatal)")
	logFile := flag.String("log-file", "", "log file path (rotated); empty logs to the terminal only")
	logJSON := flag.Bool("log-json", false, "write log lines as JSON")
	batchSize := flag.Int("batch-size", robinhood.DefaultBatchSize, "fsevents applied per backend update")
	flag.Parse()

	logger := log.NewLogger("rbh", log.Parse(*logLevel), *logFile, false)
	logger.JSON = *logJSON

	args := flag.Args()
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: rbh [flags] root|scan|apply <uri> [args]")
		os.Exit(2)
	}

	ctx := context.Background()
	command, uri := args[0], args[1]

	b, err := robinhood.Open(ctx, uri)
	if err != nil {
		logger.Fatal("failed to open %q: %v", uri, err)
	}
	defer b.Close(ctx)

	switch command {
	case "root":
		err = runRoot(ctx, b)
	case "scan":
		err = runScan(ctx, b, args[2:])
	case "apply":
		err = runApply(ctx, b, logger, *batchSize)
	default:
		logger.Fatal("unknown command %q", command)
	}
	if err != nil {
		var berr *backend.Error
		if errors.As(err, &berr) && berr.Retryable {
			logger.Warn("transient failure, retry may succeed")
		}
		logger.Fatal("%s failed: %v", command, err)
	}
}

func runRoot(ctx context.Context, b backend.Backend) error {
	root, err := b.Root(ctx, data.FieldMaskAll, data.StatMaskAll)
	if err != nil {
		return err
	}
	printRecord(root)
	return nil
}

func runScan(ctx context.Context, b backend.Backend, args []string) error {
	var filter *data.Filter
	if len(args) > 0 {
		var err error
		filter, err = data.CompareRegex(data.FieldName, args[0], 0)
		if err != nil {
			return err
		}
	}

	it, err := b.Scan(ctx, filter, data.FieldMaskAll, data.StatMaskAll)
	if err != nil {
		return err
	}
	defer it.Close()

	for {
		record, err := it.Next()
		if err != nil {
			if errors.Is(err, iters.Done) {
				return nil
			}
			return err
		}
		printRecord(record)
	}
}

func runApply(ctx context.Context, b backend.Backend, logger *log.Logger, batchSize int) error {
	applied, err := robinhood.ApplyStream(ctx, b, newStdinEvents(),
		robinhood.WithBatchSize(batchSize))
	logger.Info("applied %d events", applied)
	return err
}

func printRecord(r *data.Record) {
	size := ""
	if r.Mask&data.FieldMaskStat != 0 && r.StatMask&data.StatMaskSize != 0 {
		size = fmt.Sprintf("%d", r.Stat.Size)
	}
	fmt.Printf("%s\t%s\t%q\t%s\n",
		hex.EncodeToString([]byte(r.ID)), r.Type, r.Name, size)
}

// stdinEvents yields fsevents decoded from newline-delimited JSON on
// stdin.
type stdinEvents struct {
	scanner *bufio.Scanner
	done    bool
}

func newStdinEvents() *stdinEvents {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &stdinEvents{scanner: scanner}
}

func (s *stdinEvents) Next() (*data.Fsevent, error) {
	if s.done {
		return nil, iters.Done
	}
	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		event := &data.Fsevent{}
		if err := json.Unmarshal(line, event); err != nil {
			s.done = true
			return nil, fmt.Errorf("%w: %v", data.ErrInvalid, err)
		}
		return event, nil
	}
	s.done = true
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, iters.Done
}

func (s *stdinEvents) Close() error {
	s.done = true
	return nil
}
