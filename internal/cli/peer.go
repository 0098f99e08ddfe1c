package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/entitybridge/internal/channel"
)

// PeerOptions holds flags for the peer command.
type PeerOptions struct {
	*RootOptions
	Calls   []string
	Timeout time.Duration
}

// PeerCall is the outcome of one scripted call.
type PeerCall struct {
	Method string `json:"method"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// NewPeerCommand creates the peer command.
func NewPeerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PeerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Act as a scripted extension on stdin/stdout",
		Long: `Speak the extension side of the channel on stdin/stdout: wait for the
handshake, then issue each --call in order. A call is a method name,
optionally followed by a colon and a JSON array of params.

Results are reported on stderr because stdout carries the channel.

Example:
  entitybridge host --config ./extension.yaml --db ./space.db -- \
      entitybridge peer --call 'setValue:["title","en-US","Hello"]' --call publishEntry`,
		Args:          cobra.NoArgs,
		Hidden:        true,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPeer(opts, cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Calls, "call", nil, "method[:json-params] to call, repeatable")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "deadline for the handshake and each call")

	return cmd
}

// parsePeerCall splits "method:[params]" into its parts.
func parsePeerCall(s string) (string, []any, error) {
	method, raw, found := strings.Cut(s, ":")
	if method == "" {
		return "", nil, fmt.Errorf("call %q: missing method", s)
	}
	params := []any{}
	if found {
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			return "", nil, fmt.Errorf("call %q: params must be a JSON array: %w", s, err)
		}
	}
	return method, params, nil
}

func runPeer(opts *PeerOptions, cmd *cobra.Command) error {
	// stdout is the channel, so every report goes to stderr.
	formatter := newFormatter(opts.RootOptions, cmd)
	formatter.Writer = cmd.ErrOrStderr()

	type scripted struct {
		method string
		params []any
	}
	script := make([]scripted, 0, len(opts.Calls))
	for _, c := range opts.Calls {
		method, params, err := parsePeerCall(c)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInput, err)
		}
		script = append(script, scripted{method, params})
	}

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	transport := channel.NewStreamTransport(cmd.InOrStdin(), cmd.OutOrStdout())
	peer := channel.NewPeer(transport)
	defer peer.Close()
	go func() { _ = transport.Run(ctx) }()

	hsCtx, hsCancel := context.WithTimeout(ctx, opts.Timeout)
	hs, err := peer.WaitHandshake(hsCtx)
	hsCancel()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInput, fmt.Errorf("wait for handshake: %w", err))
	}
	formatter.VerboseLog("connected as %s", hs.ID)

	results := make([]PeerCall, 0, len(script))
	failed := 0
	for _, c := range script {
		callCtx, callCancel := context.WithTimeout(ctx, opts.Timeout)
		res, err := peer.Call(callCtx, c.method, c.params...)
		callCancel()

		pc := PeerCall{Method: c.method, Result: res}
		if err != nil {
			failed++
			var rpcErr *channel.RPCError
			if errors.As(err, &rpcErr) {
				pc.Error = rpcErr.Code
			} else {
				pc.Error = err.Error()
			}
		}
		results = append(results, pc)
	}

	var text strings.Builder
	for i, r := range results {
		if i > 0 {
			text.WriteByte('\n')
		}
		if r.Error != "" {
			fmt.Fprintf(&text, "✗ %s: %s", r.Method, r.Error)
			continue
		}
		fmt.Fprintf(&text, "✓ %s", r.Method)
	}
	if len(results) == 0 {
		text.WriteString("connected, no calls")
	}
	if err := formatter.Success(results, text.String()); err != nil {
		return err
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d call(s) failed", failed))
	}
	return nil
}
