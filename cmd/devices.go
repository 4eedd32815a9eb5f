// File: cmd/devices.go
package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/devicesweep/internal/config"
	"github.com/xkilldash9x/devicesweep/internal/device"
)

func newDevicesCmd() *cobra.Command {
	var builtinOnly bool

	devicesCmd := &cobra.Command{
		Use:         "devices",
		Short:       "List configured device profiles and the builtin catalog",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipValidation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			var configured []config.DeviceConfig
			if !builtinOnly {
				configured = cfg.Devices()
			}
			return listDevices(cmd.OutOrStdout(), configured)
		},
	}
	devicesCmd.Flags().BoolVar(&builtinOnly, "builtin", false, "only list the builtin catalog")
	return devicesCmd
}

func listDevices(out io.Writer, configured []config.DeviceConfig) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	if len(configured) > 0 {
		entries, err := device.Resolve(configured)
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "CONFIGURED\tVIEWPORT\tSCALE\tMOBILE\tTOUCH")
		for _, e := range entries {
			if e.Err != nil {
				fmt.Fprintf(tw, "%s\terror: %v\t\t\t\n", e.Name, e.Err)
				continue
			}
			p := e.Profile
			fmt.Fprintf(tw, "%s\t%dx%d\t%g\t%t\t%t\n", e.Name, p.Width, p.Height, p.ScaleFactor, p.Mobile, p.Touch)
		}
		fmt.Fprintln(tw, "\t\t\t\t")
	}

	fmt.Fprintln(tw, "BUILTIN\tVIEWPORT\tSCALE\tMOBILE\tTOUCH")
	for _, name := range device.BuiltinNames() {
		p, err := device.Builtin(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%dx%d\t%g\t%t\t%t\n", name, p.Width, p.Height, p.ScaleFactor, p.Mobile, p.Touch)
	}
	return tw.Flush()
}
