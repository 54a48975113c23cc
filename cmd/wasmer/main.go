// Command wasmer inspects the artifacts the sandbox runtime produces:
// cache-file headers, section sizes, and the built-in cost tables.
package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"

	"github.com/multiversx/wasmer/internal/artifact"
	"github.com/multiversx/wasmer/internal/middleware"
	"github.com/multiversx/wasmer/internal/wasm"
)

func main() {
	app := &cli.App{
		Name:  "wasmer",
		Usage: "inspect sandbox artifacts and cost tables",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "enable debug logging"},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") {
				logrus.SetLevel(logrus.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			inspectCommand(),
			costsCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "print the header and layout of a cache file",
		ArgsUsage: "<cache-file>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one cache file")
			}
			return inspect(c.App.Writer, c.Args().First())
		},
	}
}

// inspect maps the file read-only rather than reading it: cache files carry
// whole code regions and only the header plus a few section bounds are
// needed here.
func inspect(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return fmt.Errorf("mapping %s: %w", path, err)
	}
	defer m.Unmap()

	header, body, err := artifact.ReadHeader(m)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "magic:    % x\n", header.Magic)
	fmt.Fprintf(w, "version:  %d\n", header.Version)
	fmt.Fprintf(w, "data_len: %d\n", header.DataLen)

	// The sequential scheme leads with a block length; the archival scheme
	// leads with a table of contents whose first offset is its own size.
	if len(body) >= 8 && binary.LittleEndian.Uint64(body) == 56 {
		fmt.Fprintf(w, "scheme:   archival\n")
		fmt.Fprintf(w, "info:     off %d len %d\n", binary.LittleEndian.Uint64(body), binary.LittleEndian.Uint64(body[8:]))
		fmt.Fprintf(w, "metadata: off %d len %d\n", binary.LittleEndian.Uint64(body[16:]), binary.LittleEndian.Uint64(body[24:]))
		fmt.Fprintf(w, "code:     off %d len %d protection %d\n",
			binary.LittleEndian.Uint64(body[32:]), binary.LittleEndian.Uint64(body[40:]), binary.LittleEndian.Uint64(body[48:]))
	} else {
		fmt.Fprintf(w, "scheme:   sequential\n")
	}
	return nil
}

func costsCommand() *cli.Command {
	return &cli.Command{
		Name:      "costs",
		Usage:     "summarize a built-in cost table",
		ArgsUsage: "<table-name>",
		Action: func(c *cli.Context) error {
			name := c.Args().First()
			table := middleware.GetCostsTable(name)
			var total uint64
			var nonZero int
			for _, cost := range table {
				total += uint64(cost)
				if cost != 0 {
					nonZero++
				}
			}
			fmt.Fprintf(c.App.Writer, "table %q: %d entries, %d non-zero, total %d\n",
				name, len(table), nonZero, total)
			fmt.Fprintf(c.App.Writer, "loop=%d call=%d local.allocate=%d\n",
				table[wasm.OpcodeLoop], table[wasm.OpcodeCall], table[wasm.LocalAllocateCostIndex])
			return nil
		},
	}
}
