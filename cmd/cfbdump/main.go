// Command cfbdump inspects Microsoft Compound File Binary (OLE2) files: it
// lists the directory tree, dumps a stream's raw bytes, or dumps a decoded
// property set.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/cfbkit/mscfb"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "cfbdump",
		Usage: "inspect Microsoft Compound File Binary (OLE2) files",

		Commands: []*cli.Command{
			{
				Name:      "list",
				Aliases:   []string{"ls"},
				Usage:     "print the directory tree",
				ArgsUsage: "<file>",
				Action:    listAction,
			},
			{
				Name:      "cat",
				Usage:     "write a stream's raw bytes to stdout",
				ArgsUsage: "<file> <stream-name>",
				Action:    catAction,
			},
			{
				Name:      "props",
				Usage:     "dump a decoded property set",
				ArgsUsage: "<file> <stream-name>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "bug-compatible-dates", Usage: "reproduce the historical VT_DATE transcription bug"},
				},
				Action: propsAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func openArg(c *cli.Context, n int) (*mscfb.Reader, error) {
	if c.Args().Len() <= n {
		return nil, errors.New("missing file argument")
	}
	return mscfb.Open(c.Args().Get(n))
}

func listAction(c *cli.Context) error {
	r, err := openArg(c, 0)
	if err != nil {
		return err
	}
	defer r.Close()

	printEntry(r.Root(), 0)
	return nil
}

func printEntry(e *mscfb.DirectoryEntry, depth int) {
	marker := ""
	if e.Properties != nil {
		marker = " [property set]"
	}
	fmt.Printf("%s%s (%s, %d bytes)%s\n", strings.Repeat("  ", depth), entryLabel(e), e.Type, e.Size, marker)
	for _, c := range e.Children() {
		printEntry(c, depth+1)
	}
}

func entryLabel(e *mscfb.DirectoryEntry) string {
	if e.Name == "" {
		return "(root)"
	}
	return e.Name
}

func catAction(c *cli.Context) error {
	r, err := openArg(c, 0)
	if err != nil {
		return err
	}
	defer r.Close()

	if c.Args().Len() < 2 {
		return errors.New("missing stream-name argument")
	}
	name := c.Args().Get(1)
	idx := r.FindStream(name)
	if idx < 0 {
		return fmt.Errorf("no such stream: %s", name)
	}
	sr, err := r.GetStream(idx)
	if err != nil {
		return err
	}
	_, err = io.Copy(os.Stdout, sr)
	return err
}

func propsAction(c *cli.Context) error {
	var opts []mscfb.Option
	if c.Bool("bug-compatible-dates") {
		opts = append(opts, mscfb.WithDateMode(mscfb.DateModeBugCompatible))
	}

	if c.Args().Len() == 0 {
		return errors.New("missing file argument")
	}
	r, err := mscfb.Open(c.Args().Get(0), opts...)
	if err != nil {
		return err
	}
	defer r.Close()

	if c.Args().Len() < 2 {
		return errors.New("missing stream-name argument")
	}
	name := c.Args().Get(1)
	idx := r.FindStream(name)
	if idx < 0 {
		return fmt.Errorf("no such stream: %s", name)
	}

	ps := r.Entry(idx).Properties
	if ps == nil {
		return fmt.Errorf("stream %q is not a property set", name)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(propertySetJSON{
		FormatID: ps.FormatID.String(),
		Items:    ps.Items,
	})
}

// propertySetJSON renders a PropertySet for the props command. It exists
// only to give FormatID a plain string form: uuid.UUID already marshals
// fine on its own, but spelling it out here keeps the command's output
// shape independent of that library's MarshalJSON choices.
type propertySetJSON struct {
	FormatID string               `json:"formatID"`
	Items    []mscfb.PropertyItem `json:"items"`
}
