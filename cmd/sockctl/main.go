package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/danmuck/postproc/internal/document"
	logs "github.com/danmuck/postproc/internal/logging"
	"github.com/danmuck/postproc/internal/protocol/socket"
)

type options struct {
	socket    string
	format    document.Format
	input     string
	jsonInput bool
	header    string
	timeout   time.Duration
}

var errUsage = errors.New("usage")

func main() {
	logs.ConfigureRuntime()
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(stderr, err)
		}
		return 2
	}
	if err := exchange(opts, stdin, stdout); err != nil {
		logs.Errf("sockctl exchange failed socket=%q err=%v", opts.socket, err)
		return 1
	}
	return 0
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("sockctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	sock := fs.String("socket", "", "worker socket path")
	format := fs.String("format", "msgpack", "wire format of the worker: msgpack|json")
	input := fs.String("in", "", "request file (defaults to stdin)")
	jsonInput := fs.Bool("json", false, "request is JSON and is converted to -format before sending")
	header := fs.String("header", "", "JSON file sent as a secondary message, e.g. a tensor header")
	timeout := fs.Duration("timeout", 5*time.Second, "send and receive timeout")
	if err := fs.Parse(args); err != nil {
		return options{}, errUsage
	}
	if *sock == "" || fs.NArg() != 0 {
		fs.Usage()
		return options{}, errUsage
	}
	f, err := document.ParseFormat(*format)
	if err != nil {
		return options{}, err
	}
	return options{
		socket:    *sock,
		format:    f,
		input:     *input,
		jsonInput: *jsonInput,
		header:    *header,
		timeout:   *timeout,
	}, nil
}

func exchange(opts options, stdin io.Reader, stdout io.Writer) error {
	raw, err := readInput(opts.input, stdin)
	if err != nil {
		return err
	}
	request := raw
	if opts.jsonInput {
		if request, err = convert(raw, document.FormatJSON, opts.format); err != nil {
			return fmt.Errorf("convert request: %w", err)
		}
	}

	messages := [][]byte{request}
	if opts.header != "" {
		rawHeader, err := os.ReadFile(opts.header)
		if err != nil {
			return err
		}
		header, err := convert(rawHeader, document.FormatJSON, opts.format)
		if err != nil {
			return fmt.Errorf("convert header: %w", err)
		}
		messages = append(messages, header)
	}

	cfg := socket.DefaultConfig()
	cfg.SendTimeout = opts.timeout
	cfg.ReceiveTimeout = opts.timeout
	logs.Debugf("sockctl sending socket=%q messages=%d bytes=%d", opts.socket, len(messages), len(request))
	resp, err := socket.SendMessages(opts.socket, messages, cfg)
	if err != nil {
		return err
	}

	out, err := convert(resp, opts.format, document.FormatJSON)
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	_, err = fmt.Fprintf(stdout, "%s\n", out)
	return err
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func convert(data []byte, from, to document.Format) ([]byte, error) {
	if from == to {
		return data, nil
	}
	v, err := document.Parse(from, data)
	if err != nil {
		return nil, err
	}
	return document.Encode(to, v)
}
