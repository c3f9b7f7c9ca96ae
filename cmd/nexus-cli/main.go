// Command nexus-cli is the operator front-end for nexus: it drives the
// key-exchange state machine through INI/HIA/HPB and the bank-key-hash
// acceptance screen, and reports the subscriber's current status.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"nexus/internal/bootstrap"
	"nexus/internal/cliui"
	"nexus/internal/config"
	"nexus/internal/ebicsmsg"
	"nexus/internal/ebicstransport"
	"nexus/internal/keyexchange"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "nexus-cli",
		Short:   "Operator front-end for the nexus EBICS banking gateway",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
	}

	var autoAccept, forceResubmission bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Run key exchange against the configured bank (INI/HIA/HPB)",
		Long: `Advances the key-exchange state machine as far as it will go:
generating client keys, submitting INI and HIA, downloading the bank's
public keys via HPB, and — once you confirm the printed key hashes match
the letter your bank sent — marking the bank keys accepted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(autoAccept, forceResubmission)
		},
	}
	initCmd.Flags().BoolVar(&autoAccept, "auto-accept", false, "skip the interactive bank-key-hash review (sandbox use only)")
	initCmd.Flags().BoolVar(&forceResubmission, "force-resubmission", false, "restart key exchange from scratch without deleting existing keys")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the subscriber's key-exchange state and configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the nexus configuration file",
	}
	configGetCmd := &cobra.Command{
		Use:   "get",
		Short: "Print the resolved nexus configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGet()
		},
	}
	configCmd.AddCommand(configGetCmd)

	rootCmd.AddCommand(initCmd, statusCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfigs() (*config.ProcessConfig, *config.NexusConfig, error) {
	procCfg := config.LoadProcess()
	config.SetupLogging(procCfg)

	nexusCfg, err := config.LoadNexusConfig(procCfg.NexusConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load nexus config: %w", err)
	}
	return procCfg, nexusCfg, nil
}

func runInit(autoAccept, forceResubmission bool) error {
	_, nexusCfg, err := loadConfigs()
	if err != nil {
		return err
	}
	if err := nexusCfg.Validate(); err != nil {
		return err
	}

	store, err := bootstrap.OpenKeystore(nexusCfg)
	if err != nil {
		return fmt.Errorf("open keystore: %w", err)
	}

	header := ebicsmsg.Header{
		HostID: nexusCfg.HostID, PartnerID: nexusCfg.PartnerID,
		UserID: nexusCfg.UserID, SystemID: nexusCfg.SystemID, Product: "nexus",
	}
	transport := ebicstransport.NewClient(nexusCfg.HostBaseURL, nexusCfg.HostID, nil)
	machine := keyexchange.NewMachine(store, transport, header)

	state, err := machine.Advance(context.Background(), keyexchange.Options{
		AutoAccept:        autoAccept,
		ForceResubmission: forceResubmission,
	})
	if err != nil {
		return fmt.Errorf("key exchange: %w", err)
	}

	if state == keyexchange.StateBankKeysPendingAccept {
		authHash, encHash, err := machine.BankKeyHashes()
		if err != nil {
			return fmt.Errorf("read bank key hashes: %w", err)
		}
		accepted, err := cliui.RunKeyAcceptance(nexusCfg.HostID, authHash, encHash)
		if err != nil {
			return fmt.Errorf("key acceptance screen: %w", err)
		}
		if !accepted {
			fmt.Println("bank keys not accepted; nexusd will remain unable to start")
			return nil
		}
		if err := machine.AcceptBankKeys(); err != nil {
			return fmt.Errorf("accept bank keys: %w", err)
		}
		state = keyexchange.StateOperational
	}

	fmt.Printf("key exchange state: %s\n", state)
	return nil
}

func runStatus() error {
	procCfg, nexusCfg, err := loadConfigs()
	if err != nil {
		return err
	}

	store, err := bootstrap.OpenKeystore(nexusCfg)
	if err != nil {
		return fmt.Errorf("open keystore: %w", err)
	}
	header := ebicsmsg.Header{HostID: nexusCfg.HostID, PartnerID: nexusCfg.PartnerID, UserID: nexusCfg.UserID}
	transport := ebicstransport.NewClient(nexusCfg.HostBaseURL, nexusCfg.HostID, nil)
	machine := keyexchange.NewMachine(store, transport, header)

	state, err := machine.Current()
	if err != nil {
		return fmt.Errorf("read key-exchange state: %w", err)
	}

	fmt.Printf("host:          %s\n", nexusCfg.HostID)
	fmt.Printf("bank endpoint: %s\n", nexusCfg.HostBaseURL)
	fmt.Printf("currency:      %s\n", nexusCfg.Currency)
	fmt.Printf("key state:     %s\n", state)
	fmt.Printf("environment:   %s\n", procCfg.Environment)
	return nil
}

func runConfigGet() error {
	_, nexusCfg, err := loadConfigs()
	if err != nil {
		return err
	}
	fmt.Printf("host_base_url:     %s\n", nexusCfg.HostBaseURL)
	fmt.Printf("host_id:           %s\n", nexusCfg.HostID)
	fmt.Printf("user_id:           %s\n", nexusCfg.UserID)
	fmt.Printf("partner_id:        %s\n", nexusCfg.PartnerID)
	fmt.Printf("bank_dialect:      %s\n", nexusCfg.BankDialect)
	fmt.Printf("account.iban:      %s\n", nexusCfg.Account.IBAN)
	fmt.Printf("fetch_frequency:   %s\n", nexusCfg.FetchFrequency)
	fmt.Printf("submit_frequency:  %s\n", nexusCfg.SubmitFrequency)
	if nexusCfg.MinimumAmount != "" {
		fmt.Printf("minimum_amount:    %s\n", nexusCfg.MinimumAmount)
	}
	if err := nexusCfg.Validate(); err != nil {
		slog.Warn("configuration is incomplete", "error", err)
	}
	return nil
}
