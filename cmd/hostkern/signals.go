package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli"
	"golang.org/x/sys/unix"

	"github.com/hostkern/hostkern/libkernel/abi"
	"github.com/hostkern/hostkern/libkernel/utils"
)

const formatOptions = `table or json`

type signalInfo struct {
	Number    int    `json:"number"`
	Name      string `json:"name"`
	Default   string `json:"default"`
	Queued    bool   `json:"queued"`
	Catchable bool   `json:"catchable"`
	HostName  string `json:"host_name,omitempty"`
}

var signalsCommand = cli.Command{
	Name:  "signals",
	Usage: "lists the guest signals and their default actions",
	ArgsUsage: `

Where the given signals are the ones the guest ABI defines, 1 through 64.`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "format, f",
			Value: "table",
			Usage: `select one of: ` + formatOptions,
		},
		cli.BoolFlag{
			Name:  "realtime, r",
			Usage: "include the real-time signals",
		},
	},
	Action: func(context *cli.Context) error {
		if err := checkArgs(context, 0, exactArgs); err != nil {
			return err
		}
		return printSignals(os.Stdout, context.String("format"), context.Bool("realtime"))
	},
}

func guestSignals(realtime bool) []signalInfo {
	var out []signalInfo
	for s := abi.Signal(1); s <= abi.SIGRTMAX; s++ {
		if s.IsRealtime() && !realtime {
			break
		}
		info := signalInfo{
			Number:    int(s),
			Name:      s.String(),
			Default:   s.DefaultAction().String(),
			Queued:    s.IsRealtime(),
			Catchable: !abi.Unblockable().Has(s),
		}
		if s.IsStandard() {
			info.HostName = unix.SignalName(unix.Signal(s))
		}
		out = append(out, info)
	}
	return out
}

func printSignals(w io.Writer, format string, realtime bool) error {
	list := guestSignals(realtime)
	switch format {
	case "table":
		tw := tabwriter.NewWriter(w, 12, 1, 3, ' ', 0)
		fmt.Fprint(tw, "NUMBER\tNAME\tDEFAULT\tCATCHABLE\tHOST\n")
		for _, s := range list {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%s\n", s.Number, s.Name, s.Default, s.Catchable, s.HostName)
		}
		return tw.Flush()
	case "json":
		return utils.WriteJSON(w, list)
	}
	return fmt.Errorf("invalid format option %q, use %s", format, formatOptions)
}
