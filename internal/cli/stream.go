package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/sync/errgroup"

	"github.com/next-trace/scg-port-bridge/bridge"
	berr "github.com/next-trace/scg-port-bridge/contract/errors"
)

const maxLine = 1 << 20

func newStreamCmd() *cobra.Command {
	var parallel int

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Invoke once per JSON line on stdin and print NDJSON results",
		Long: "Each non-blank stdin line is one input. Results are written as they complete,\n" +
			`one object per line: {"line":N,"output":...} or {"line":N,"error":"..."}.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := getApp(cmd)
			if cmd.Flags().Changed("parallel") {
				app.Settings.Parallel = parallel
			}
			if app.Settings.Parallel <= 0 {
				return errors.New("stream: parallel must be greater than 0")
			}

			b, cleanup, err := openBridge(app)
			if err != nil {
				return err
			}
			defer cleanup()

			return runStream(cmd.Context(), b, cmd.InOrStdin(), cmd.OutOrStdout(), app.Settings.Parallel)
		},
	}

	cmd.Flags().IntVar(&parallel, "parallel", 0, "concurrent invocations (default from stream.parallel)")

	return cmd
}

func runStream(ctx context.Context, b *bridge.Bridge, in io.Reader, out io.Writer, parallel int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)

	var mu sync.Mutex
	write := func(doc []byte) error {
		mu.Lock()
		defer mu.Unlock()

		_, err := fmt.Fprintln(out, string(doc))

		return err
	}

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)

	line := 0
	for sc.Scan() {
		line++

		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}

		n := line
		input := bytes.Clone(raw)

		g.Go(func() error {
			doc, _ := sjson.SetBytes([]byte(`{}`), "line", n)

			var err error
			if !gjson.ValidBytes(input) {
				err = errors.Join(berr.ErrSerializationFailed, errors.New("input is not valid JSON"))
			} else {
				var output []byte
				output, err = b.Invoke(ctx, input)
				if err == nil {
					doc, err = sjson.SetRawBytes(doc, "output", output)
				}
			}

			if err != nil {
				doc, _ = sjson.SetBytes(doc, "error", err.Error())
			}

			return write(doc)
		})

		if ctx.Err() != nil {
			break
		}
	}

	werr := g.Wait()
	if err := sc.Err(); err != nil {
		return fmt.Errorf("stream: read input: %w", err)
	}

	return werr
}
