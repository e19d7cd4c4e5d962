package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/denisoancea/GlobalPlatformPro/gp"
	"github.com/denisoancea/GlobalPlatformPro/internal/capfile"
	"github.com/denisoancea/GlobalPlatformPro/internal/output"
)

var (
	flagAIDs       []string
	flagDeleteDeps bool
	flagCapFile    string
	flagPkgAID     string
	flagAppletAID  string
	flagPrivileges byte
)

func init() {
	rootCmd.AddCommand(gpListCmd, gpDeleteCmd, gpLoadCmd, gpInstallDefaultCmd, gpProbeCmd)

	gpDeleteCmd.Flags().StringSliceVar(&flagAIDs, "aid", nil, "AID(s) to delete (hex)")
	gpDeleteCmd.Flags().BoolVar(&flagDeleteDeps, "deps", false, "also delete dependent applications/modules")
	gpDeleteCmd.MarkFlagRequired("aid")

	gpLoadCmd.Flags().StringVar(&flagCapFile, "cap", "", "path to the load-file image")
	gpLoadCmd.Flags().StringVar(&flagPkgAID, "pkg-aid", "", "package AID (hex)")
	gpLoadCmd.MarkFlagRequired("cap")
	gpLoadCmd.MarkFlagRequired("pkg-aid")

	gpInstallDefaultCmd.Flags().StringVar(&flagPkgAID, "pkg-aid", "", "package AID (hex)")
	gpInstallDefaultCmd.Flags().StringVar(&flagAppletAID, "applet-aid", "", "applet/module AID (hex)")
	gpInstallDefaultCmd.Flags().Uint8Var(&flagPrivileges, "privileges", 0, "application privileges byte")
	gpInstallDefaultCmd.MarkFlagRequired("pkg-aid")
	gpInstallDefaultCmd.MarkFlagRequired("applet-aid")
}

var gpListCmd = &cobra.Command{
	Use:   "list",
	Short: "List on-card applications, packages, and Security Domains",
	Run:   runGPList,
}

var gpDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete applications or packages by AID",
	Run:   runGPDelete,
}

var gpLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load a CAP load-file onto the card's Security Domain",
	Run:   runGPLoad,
}

var gpInstallDefaultCmd = &cobra.Command{
	Use:   "install-default",
	Short: "Install an already-loaded package's applet and make it the default selected application",
	Run:   runGPInstallDefault,
}

var gpProbeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Verify key material and negotiate SCP variant without full authentication",
	Run:   runGPProbe,
}

func parseAIDFlag(hexStr string) (gp.AID, error) {
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return gp.AID{}, fmt.Errorf("invalid AID hex %q: %w", hexStr, err)
	}
	return gp.NewAID(raw)
}

// withSession connects to the reader, selects the Security Domain, opens a
// secure channel, and invokes fn with both the transport and the live
// wrapper, closing the reader afterward.
func withSession(fn func(t gp.Transport, w *gp.SecureChannelWrapper, sd *gp.SelectResult) error) {
	cfg, err := loadKeySetConfig()
	if err != nil {
		fail(err)
	}
	keySet, err := cfg.KeySet()
	if err != nil {
		fail(err)
	}
	variant, err := gp.ParseVariant(flagVariant)
	if err != nil {
		fail(err)
	}

	reader, err := connectReader()
	if err != nil {
		fail(err)
	}
	defer reader.Close()

	sd, err := gp.SelectSD(reader, gp.SelectOptions{Strict: flagStrict})
	if err != nil {
		fail(err)
	}

	w, err := gp.OpenSession(reader, keySet, variant, gp.SecurityLevel(gp.SecMAC))
	if err != nil {
		fail(err)
	}
	if !flagJSON {
		output.PrintSessionInfo(w.Variant(), w.SecurityLevel())
	}

	if err := fn(reader, w, sd); err != nil {
		fail(err)
	}
}

func runGPList(cmd *cobra.Command, args []string) {
	var reg *gp.AIDRegistry
	withSession(func(t gp.Transport, w *gp.SecureChannelWrapper, sd *gp.SelectResult) error {
		var err error
		reg, err = gp.GetStatus(t, w)
		return err
	})
	if !flagJSON {
		output.PrintRegistry(reg)
	}
}

func runGPDelete(cmd *cobra.Command, args []string) {
	aids := make([]gp.AID, 0, len(flagAIDs))
	for _, s := range flagAIDs {
		aid, err := parseAIDFlag(s)
		if err != nil {
			fail(err)
		}
		aids = append(aids, aid)
	}
	withSession(func(t gp.Transport, w *gp.SecureChannelWrapper, sd *gp.SelectResult) error {
		for _, aid := range aids {
			if err := gp.Delete(t, w, aid, flagDeleteDeps); err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", aid)
		}
		return nil
	})
}

func runGPLoad(cmd *cobra.Command, args []string) {
	pkgAID, err := parseAIDFlag(flagPkgAID)
	if err != nil {
		fail(err)
	}
	cap, err := capfile.Load(pkgAID, flagCapFile)
	if err != nil {
		fail(err)
	}
	withSession(func(t gp.Transport, w *gp.SecureChannelWrapper, sd *gp.SelectResult) error {
		return gp.LoadCapFile(t, w, sd.AID, cap, gp.LoadOptions{})
	})
	fmt.Println("load complete")
}

func runGPInstallDefault(cmd *cobra.Command, args []string) {
	pkgAID, err := parseAIDFlag(flagPkgAID)
	if err != nil {
		fail(err)
	}
	appletAID, err := parseAIDFlag(flagAppletAID)
	if err != nil {
		fail(err)
	}
	withSession(func(t gp.Transport, w *gp.SecureChannelWrapper, sd *gp.SelectResult) error {
		if err := gp.InstallAndMakeSelectable(t, w, pkgAID, appletAID, gp.InstallOptions{Privileges: flagPrivileges}); err != nil {
			return err
		}
		return gp.MakeDefaultSelected(t, w, appletAID, flagPrivileges)
	})
	fmt.Println("install-default complete")
}

func runGPProbe(cmd *cobra.Command, args []string) {
	cfg, err := loadKeySetConfig()
	if err != nil {
		fail(err)
	}
	keySet, err := cfg.KeySet()
	if err != nil {
		fail(err)
	}
	variant, err := gp.ParseVariant(flagVariant)
	if err != nil {
		fail(err)
	}

	reader, err := connectReader()
	if err != nil {
		fail(err)
	}
	defer reader.Close()

	if _, err := gp.SelectSD(reader, gp.SelectOptions{Strict: flagStrict}); err != nil {
		fail(err)
	}

	negotiated, err := gp.Probe(reader, keySet, variant)
	if err != nil {
		fail(err)
	}
	fmt.Printf("key material OK, negotiated variant: %s\n", negotiated)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
