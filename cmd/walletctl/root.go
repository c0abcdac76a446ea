package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/better-wallet/wallet-agent/internal/app"
	"github.com/better-wallet/wallet-agent/internal/config"
	"github.com/better-wallet/wallet-agent/internal/logger"
	"github.com/better-wallet/wallet-agent/internal/tools"
)

// Version is set at build time
var Version = "0.1.0"

// errToolFailed is returned after a failed tool result has been printed.
var errToolFailed = errors.New("tool invocation failed")

// cli holds the state shared by all commands of one invocation.
type cli struct {
	envFile string
	keyFile string

	out  io.Writer
	opts app.Options
}

func newRootCmd(out, errOut io.Writer, opts app.Options) *cobra.Command {
	c := &cli{out: out, opts: opts}

	root := &cobra.Command{
		Use:   "walletctl",
		Short: "Operate custodial wallets through signed platform requests",
		Long: `walletctl runs the wallet tools (create, fund, transfer, balance) from the
command line, using the same signed transport the agent uses.

Credentials are read from --key-file or CDP_API_KEY_FILE. Other settings come
from the environment, optionally seeded from --env-file.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Init(errOut)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "Environment file to seed settings from (missing file is ignored)")
	root.PersistentFlags().StringVar(&c.keyFile, "key-file", "", "Credential file (default: $CDP_API_KEY_FILE)")

	root.AddCommand(
		c.createWalletCmd(),
		c.getWalletCmd(),
		c.fundCmd(),
		c.transferCmd(),
		c.balanceCmd(),
		c.toolsCmd(),
		c.tokenCmd(),
		c.sealKeyCmd(),
	)
	return root
}

func (c *cli) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.envFile)
	if err != nil {
		return nil, err
	}
	if c.keyFile != "" {
		cfg.APIKeyFile = c.keyFile
	}
	return cfg, nil
}

func (c *cli) loadApp(ctx context.Context) (*app.App, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, c.opts)
}

// invoke runs one tool and prints its JSON result.
func (c *cli) invoke(cmd *cobra.Command, name string, args map[string]string) error {
	a, err := c.loadApp(cmd.Context())
	if err != nil {
		return err
	}

	res := a.Tools.Invoke(cmd.Context(), name, args)
	if err := c.printJSON(res); err != nil {
		return err
	}
	if !res.OK {
		return fmt.Errorf("%w: %s", errToolFailed, res.String())
	}
	return nil
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) createWalletCmd() *cobra.Command {
	var network string
	cmd := &cobra.Command{
		Use:   "create-wallet",
		Short: "Create a wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.invoke(cmd, "create_wallet", map[string]string{"network_id": network})
		},
	}
	cmd.Flags().StringVar(&network, "network", "", "Network id (default: $CDP_NETWORK_ID)")
	return cmd
}

func (c *cli) getWalletCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get-wallet [wallet-id]",
		Short: "Show a wallet",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.invoke(cmd, "get_wallet", map[string]string{"wallet_id": first(args)})
		},
	}
}

func (c *cli) fundCmd() *cobra.Command {
	var address, asset string
	cmd := &cobra.Command{
		Use:   "fund [wallet-id]",
		Short: "Fund a wallet address from the testnet faucet",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.invoke(cmd, "fund_wallet", map[string]string{
				"wallet_id":  first(args),
				"address_id": address,
				"asset_id":   asset,
			})
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "Address to fund (default: the wallet's default address)")
	cmd.Flags().StringVar(&asset, "asset", tools.DefaultAssetID, "Asset to request")
	return cmd
}

func (c *cli) transferCmd() *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "transfer <destination-address> <amount-eth>",
		Short: "Send ETH from a wallet",
		Example: `  walletctl transfer 0xa7979BF6Ce644E4e36da2Ee65Db73c3f5A0dF895 0.001 \
    --from 674069f0-3de9-40bf-a06b-22a9573c7861`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.invoke(cmd, "transfer_funds", map[string]string{
				"source_wallet_id":    from,
				"destination_address": args[0],
				"amount":              args[1],
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Source wallet id (default: $DEFAULT_WALLET_ID)")
	return cmd
}

func (c *cli) balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance [account-id]",
		Short: "Show an account balance",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.invoke(cmd, "get_balance", map[string]string{"wallet_id": first(args)})
		},
	}
}

func (c *cli) toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the wallet tools and their parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			registry := tools.NewWalletRegistry(nil, tools.Config{
				NetworkID:       cfg.NetworkID,
				DefaultWalletID: cfg.DefaultWallet,
			})
			return c.printJSON(registry.Specs())
		},
	}
}

func (c *cli) tokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token <method> <path>",
		Short: "Mint a bearer token for one request",
		Long: `Mint a bearer token bound to one method and path and print it.

The token is valid for a single request within its validity window. Treat it
as a secret.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.loadApp(cmd.Context())
			if err != nil {
				return err
			}
			token, err := a.Client.MintToken(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, token)
			return nil
		},
	}
}

func first(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
