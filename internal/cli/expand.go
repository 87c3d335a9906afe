package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vietddude/seedscan/internal/control"
	"github.com/vietddude/seedscan/internal/core/hd"
	"github.com/vietddude/seedscan/internal/infra/cache"
	"github.com/vietddude/seedscan/internal/infra/provider"
	"github.com/vietddude/seedscan/internal/scan/aggregate"
)

var (
	expandOffline bool
	expandDepth   int
	expandMode    string
	deriveDepth   int
)

var expandCmd = &cobra.Command{
	Use:   "expand <hex>",
	Short: "Expand a hex seed and print the result document as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runExpand,
}

var deriveCmd = &cobra.Command{
	Use:   "derive <hex>",
	Short: "Print extended keys and BIP44/49/84 addresses of a hex seed",
	Args:  cobra.ExactArgs(1),
	RunE:  runDerive,
}

func init() {
	expandCmd.Flags().BoolVar(&expandOffline, "offline", false, "skip balance lookups")
	expandCmd.Flags().IntVar(&expandDepth, "depth", 20, "addresses per branch")
	expandCmd.Flags().StringVar(&expandMode, "mode", "", "discovery mode: address or xpub")
	deriveCmd.Flags().IntVar(&deriveDepth, "depth", 5, "addresses per branch")
	rootCmd.AddCommand(expandCmd, deriveCmd)
}

func seedArg(arg string) string {
	return strings.TrimPrefix(strings.TrimPrefix(arg, "0x"), "0X")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runExpand(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	var p provider.AddressProvider
	if !expandOffline {
		p = control.NewProviderStack(cfg.Provider, cache.NewMemory(), slog.Default()).Provider
	}

	mode := aggregate.ParseMode(expandMode)
	if expandMode == "" && cfg.Provider.UseXpub {
		mode = aggregate.ModeXpub
	}
	depth := min(hd.MaxDepth, max(1, expandDepth))

	doc, err := aggregate.New(p, slog.Default()).Aggregate(cmd.Context(), seedArg(args[0]), depth, mode)
	if err != nil {
		return fmt.Errorf("expand: %w", err)
	}
	return printJSON(doc)
}

func runDerive(cmd *cobra.Command, args []string) error {
	seed := seedArg(args[0])

	keys, err := hd.Expand(seed)
	if err != nil {
		return err
	}
	derivs, err := hd.DeriveAddresses(seed, min(hd.MaxDepth, max(1, deriveDepth)))
	if err != nil {
		return err
	}
	return printJSON(struct {
		Keys        any `json:"keys"`
		Derivations any `json:"derivations"`
	}{keys, derivs})
}
