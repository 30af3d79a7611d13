package cmd

import (
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/tyto/internal/config"
	"firestige.xyz/tyto/internal/ipv4"
	"firestige.xyz/tyto/internal/link"

	// Device types register themselves with the link factory.
	_ "firestige.xyz/tyto/internal/link/afpacket"
	_ "firestige.xyz/tyto/internal/link/channel"
	_ "firestige.xyz/tyto/internal/link/pcapfile"
	_ "firestige.xyz/tyto/internal/link/tun"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file without starting the daemon.

Beyond structural checks this dry-runs interface allocation, so bad
addresses and netmasks are caught here rather than at bring-up. The
normalized configuration (defaults applied) is printed as YAML.

Examples:
  tyto validate -c /etc/tyto/config.yml`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(configFile, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
			os.Exit(1)
		}
	},
}

func runValidate(path string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	known := link.Types()
	for _, dev := range cfg.Devices {
		if !slices.Contains(known, dev.Type) {
			return fmt.Errorf("device %s: unknown type %q (have %v)", dev.Name, dev.Type, known)
		}
	}

	// Dry-run interface allocation: same parse and broadcast derivation
	// the daemon performs at bring-up.
	for _, ifcCfg := range cfg.Interfaces {
		ifc, err := ipv4.NewInterface(ifcCfg.Unicast, ifcCfg.Netmask)
		if err != nil {
			return fmt.Errorf("interface on %s: %w", ifcCfg.Device, err)
		}
		fmt.Fprintf(out, "# %s: %s broadcast %s\n", ifcCfg.Device, ifc, ifc.Broadcast())
	}

	fmt.Fprintf(out, "VALID: %d device(s), %d interface(s)\n", len(cfg.Devices), len(cfg.Interfaces))

	normalized, err := yaml.Marshal(map[string]*config.Config{"tyto": cfg})
	if err != nil {
		return fmt.Errorf("marshal normalized config: %w", err)
	}
	_, err = out.Write(normalized)
	return err
}
