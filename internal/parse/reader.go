package parse

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/rs/zerolog/log"
)

const (
	maxLineSize = 10 * 1024 * 1024 // 10MB

	// DefaultYieldEvery is how many lines are processed between yields.
	DefaultYieldEvery = 250
)

type Options struct {
	// YieldEvery sets the batch size between scheduler yields and progress
	// reports. Zero means DefaultYieldEvery.
	YieldEvery int
	// Progress receives the fraction of the input consumed, in [0, 1].
	Progress func(fraction float64)
	// MaxLineSize bounds the bytes kept for one line. Longer lines are
	// skipped. Zero means 10MB.
	MaxLineSize int
}

// ParseFile streams a log file through the full pipeline and returns its
// sessions in file order.
func ParseFile(ctx context.Context, path string, opts Options) ([]Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat log: %w", err)
	}

	sessions, err := ParseReader(ctx, f, info.Size(), opts)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return sessions, nil
}

// ParseReader is ParseFile over an arbitrary reader. size is used only for
// progress and may be zero when unknown.
func ParseReader(ctx context.Context, r io.Reader, size int64, opts Options) ([]Session, error) {
	yieldEvery := opts.YieldEvery
	if yieldEvery <= 0 {
		yieldEvery = DefaultYieldEvery
	}

	limit := opts.MaxLineSize
	if limit <= 0 {
		limit = maxLineSize
	}
	lr := &lineReader{br: bufio.NewReaderSize(r, 64*1024), limit: limit}

	var (
		combiner Combiner
		builder  = NewSessionBuilder()
		consumed int64
		number   int
	)

	for {
		line, n, skipped, err := lr.next()
		if n == 0 && err == io.EOF {
			break
		}
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read line %d: %w", number+1, err)
		}
		number++
		consumed += n

		if skipped {
			log.Warn().Int("line", number).Int64("bytes", n).Msg("skipping over-long log line")
		} else {
			for _, l := range combiner.Push(ParseLine(string(line), number)) {
				builder.Push(Classify(l))
			}
		}

		if number%yieldEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if opts.Progress != nil && size > 0 {
				opts.Progress(min(float64(consumed)/float64(size), 1))
			}
			runtime.Gosched()
		}
		if err == io.EOF {
			break
		}
	}

	for _, l := range combiner.Flush() {
		builder.Push(Classify(l))
	}
	if opts.Progress != nil {
		opts.Progress(1)
	}
	return builder.Finish(), nil
}

// lineReader yields lines without their terminator, keeping at most limit
// bytes of any one line in memory.
type lineReader struct {
	br    *bufio.Reader
	buf   []byte
	limit int
}

// next returns the next line and the bytes it consumed. A line over the
// limit is read to its end and reported as skipped with no content. err is
// io.EOF on the last line when the input lacks a final newline.
func (lr *lineReader) next() (line []byte, n int64, skipped bool, err error) {
	lr.buf = lr.buf[:0]
	for {
		chunk, err := lr.br.ReadSlice('\n')
		n += int64(len(chunk))
		if !skipped {
			if len(lr.buf)+len(chunk) > lr.limit+2 { // room for "\r\n"
				skipped = true
				lr.buf = lr.buf[:0]
			} else {
				lr.buf = append(lr.buf, chunk...)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if skipped {
			return nil, n, true, err
		}
		return trimEOL(lr.buf), n, false, err
	}
}

func trimEOL(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] == '\n' {
		b = b[:len(b)-1]
	}
	if len(b) > 0 && b[len(b)-1] == '\r' {
		b = b[:len(b)-1]
	}
	return b
}
