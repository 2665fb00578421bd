package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	defaultStdioConcurrency = 8
	defaultMaxLineBytes     = 4 << 20
)

// StdioOptions configures the stdio transport.
type StdioOptions struct {
	Logger zerolog.Logger
	// MaxConcurrent bounds the requests in flight. Defaults to 8.
	MaxConcurrent int
	// MaxLineBytes bounds one request line. Defaults to 4 MiB.
	MaxLineBytes int
}

// stdioSession writes newline-delimited responses. Writes are serialized so
// concurrent requests never interleave within a line.
type stdioSession struct {
	gateway     *Gateway
	logger      zerolog.Logger
	mu          sync.Mutex
	enc         *json.Encoder
	initialized atomic.Bool
}

func (s *stdioSession) WriteFrame(resp *Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(resp); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

// ServeStdio reads one JSON-RPC request per line from in and writes responses
// to out, one per line. Requests are handled concurrently, so responses may
// arrive out of order; clients match them by id. Streamed tool calls write
// each frame as its own line. A line longer than MaxLineBytes is skipped and
// answered with a parse error, as an oversize HTTP body is. ServeStdio returns
// nil when in reaches EOF after all in-flight requests finish.
func ServeStdio(ctx context.Context, g *Gateway, in io.Reader, out io.Writer, opts StdioOptions) error {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultStdioConcurrency
	}
	if opts.MaxLineBytes <= 0 {
		opts.MaxLineBytes = defaultMaxLineBytes
	}

	s := &stdioSession{
		gateway: g,
		logger:  opts.Logger,
		enc:     json.NewEncoder(out),
	}
	ctx = s.logger.WithContext(ctx)

	reader := bufio.NewReaderSize(in, 64*1024)

	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(opts.MaxConcurrent)

	lines := make(chan inputLine)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for {
			line, err := readLine(reader, opts.MaxLineBytes)
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = nil
				}
				readErr <- err
				return
			}
			select {
			case lines <- line:
			case <-egctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-egctx.Done():
			if err := eg.Wait(); err != nil {
				return err
			}
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				if err := eg.Wait(); err != nil {
					return err
				}
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("read input: %w", err)
					}
					return nil
				default:
					// the reader stopped on cancellation
					return ctx.Err()
				}
			}
			if line.tooLong {
				s.logger.Warn().Int("max_line_bytes", opts.MaxLineBytes).Msg("request line too long")
				if err := s.WriteFrame(ParseErrorResponse()); err != nil {
					_ = eg.Wait()
					return err
				}
				continue
			}
			if len(bytes.TrimSpace(line.data)) == 0 {
				continue
			}
			if err := s.handleLine(egctx, eg, line.data); err != nil {
				_ = eg.Wait()
				return err
			}
		}
	}
}

type inputLine struct {
	data    []byte
	tooLong bool
}

// readLine returns the next line without its line ending. A line longer
// than maxBytes is consumed to its end and returned as tooLong with no data.
// The final line may lack a newline; io.EOF is returned only when nothing is
// left.
func readLine(r *bufio.Reader, maxBytes int) (inputLine, error) {
	var line inputLine
	for {
		chunk, err := r.ReadSlice('\n')
		if !line.tooLong {
			line.data = append(line.data, chunk...)
			if len(bytes.TrimRight(line.data, "\r\n")) > maxBytes {
				line = inputLine{tooLong: true}
			}
		}
		switch {
		case err == nil:
			line.data = bytes.TrimRight(line.data, "\r\n")
			return line, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && (len(line.data) > 0 || line.tooLong):
			line.data = bytes.TrimRight(line.data, "\r\n")
			return line, nil
		default:
			return inputLine{}, err
		}
	}
}

func (s *stdioSession) handleLine(ctx context.Context, eg *errgroup.Group, line []byte) error {
	req, err := ParseRequest(line)
	if err != nil {
		s.logger.Warn().Err(err).Msg("parse request")
		return s.WriteFrame(ParseErrorResponse())
	}

	if req.Method == MethodInitialize {
		s.initialized.Store(true)
	}
	if req.IsNotification() {
		s.logger.Debug().Str("method", req.Method).Msg("notification ignored")
		return nil
	}
	if !s.initialized.Load() {
		s.logger.Warn().Str("method", req.Method).Msg("request before initialize")
	}

	eg.Go(func() error {
		resp := s.gateway.Serve(ctx, req, func() (FrameWriter, error) { return s, nil })
		if resp == nil {
			return nil
		}
		return s.WriteFrame(resp)
	})
	return nil
}
