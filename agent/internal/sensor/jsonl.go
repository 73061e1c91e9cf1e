package sensor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/relojcausal/relojcausal/agent/internal/compute"
)

// maxLineBytes bounds a single JSONL line.
const maxLineBytes = 1 << 20

type jsonlSource struct {
	path string
}

// Stream reads readings from the configured file, or stdin when path is "-",
// until end of input.
func (s *jsonlSource) Stream(ctx context.Context, out chan<- compute.Sample) error {
	var r io.Reader = os.Stdin
	if s.path != "-" {
		f, err := os.Open(s.path)
		if err != nil {
			return fmt.Errorf("sensor: open %q: %w", s.path, err)
		}
		defer f.Close()
		r = f
	}
	return ReadJSONL(ctx, r, out, time.Now)
}

// ReadJSONL decodes newline-delimited readings from r and delivers them on
// out. Blank lines are ignored; malformed or incomplete lines are logged and
// skipped. Readings without a timestamp are stamped with milliseconds since
// the first such reading, measured on now.
func ReadJSONL(ctx context.Context, r io.Reader, out chan<- compute.Sample, now func() time.Time) error {
	clock := sinceStart(now)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineBytes)

	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}

		var rd Reading
		if err := json.Unmarshal(raw, &rd); err != nil {
			slog.Warn("sensor: skipping malformed line", "line", line, "err", err)
			continue
		}
		s, err := rd.Sample(clock)
		if err != nil {
			slog.Warn("sensor: skipping reading", "line", line, "err", err)
			continue
		}
		if !send(ctx, out, s) {
			return nil
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("sensor: read line %d: %w", line+1, err)
	}
	return nil
}
