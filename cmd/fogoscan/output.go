package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/fogoscan/client"
)

// newClient builds an explorer client from the global flags.
func newClient(c *cli.Context) (*client.Client, error) {
	serverURL := c.String("server-url")
	if serverURL == "" {
		return nil, fmt.Errorf("server-url is required (set FOGOSCAN_SERVER_URL env var or use --server-url)")
	}

	// Only errors to stderr
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	return client.NewClient(serverURL, nil, logger), nil
}

// printer renders command results as text, JSON, or jq-filtered JSON.
type printer struct {
	w    io.Writer
	json bool
	code *gojq.Code
}

func newPrinter(c *cli.Context) (*printer, error) {
	p := &printer{w: c.App.Writer, json: c.Bool("json")}
	if p.w == nil {
		p.w = os.Stdout
	}

	if filter := c.String("jq"); filter != "" {
		code, err := compileJQ(filter)
		if err != nil {
			return nil, err
		}
		p.code = code
		p.json = true
	}
	return p, nil
}

func compileJQ(filter string) (*gojq.Code, error) {
	query, err := gojq.Parse(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
	}
	return code, nil
}

// print writes v as JSON when requested, otherwise calls human.
func (p *printer) print(v interface{}, human func(w io.Writer)) error {
	if !p.json {
		human(p.w)
		return nil
	}
	if p.code == nil {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		fmt.Fprintln(p.w, string(data))
		return nil
	}
	return p.filter(v)
}

// line writes v as a single JSON line; used for streamed events.
func (p *printer) line(v interface{}) error {
	if p.code != nil {
		return p.filter(v)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(p.w, string(data))
	return nil
}

func (p *printer) filter(v interface{}) error {
	// gojq works on plain decoded JSON values.
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	var input interface{}
	if err := json.Unmarshal(data, &input); err != nil {
		return fmt.Errorf("failed to decode output: %w", err)
	}

	iter := p.code.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, isErr := v.(error); isErr {
			return fmt.Errorf("jq filter error: %w", err)
		}
		out, err := gojq.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal jq result: %w", err)
		}
		fmt.Fprintln(p.w, string(out))
	}
}
