package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	berr "github.com/next-trace/scg-port-bridge/contract/errors"
)

func newInvokeCmd() *cobra.Command {
	var (
		input     string
		inputFile string
	)

	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Send one JSON input and print the matching output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := getApp(cmd)

			raw, err := readInput(cmd, input, inputFile)
			if err != nil {
				return err
			}

			b, cleanup, err := openBridge(app)
			if err != nil {
				return err
			}
			defer cleanup()

			out, err := b.Invoke(cmd.Context(), raw)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))

			return err
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "JSON input")
	cmd.Flags().StringVar(&inputFile, "input-file", "", "read the JSON input from a file ('-' for stdin)")
	cmd.MarkFlagsMutuallyExclusive("input", "input-file")

	return cmd
}

func readInput(cmd *cobra.Command, input, inputFile string) ([]byte, error) {
	var raw []byte

	switch {
	case input != "":
		raw = []byte(input)
	case inputFile != "" && inputFile != "-":
		b, err := os.ReadFile(inputFile)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		raw = b
	default:
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		raw = b
	}

	raw = bytes.TrimSpace(raw)
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("invoke: %w", errors.Join(berr.ErrSerializationFailed, errors.New("input is not valid JSON")))
	}

	return raw, nil
}
