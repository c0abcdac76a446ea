package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/better-wallet/wallet-agent/internal/app"
	"github.com/better-wallet/wallet-agent/internal/keystore"
	apperrors "github.com/better-wallet/wallet-agent/pkg/errors"
)

func (c *cli) sealKeyCmd() *cobra.Command {
	var in, out string
	cmd := &cobra.Command{
		Use:   "seal-key",
		Short: "Seal the private key of a credential file with the configured sealer",
		Long: `Read a plain credential file, seal its privateKey with the sealer selected by
CDP_KEY_SEALER (local, aws-kms or vault) and write the sealed credential file.

The sealed file is loaded like a plain one as long as the same sealer settings
are configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			sealer, err := app.NewSealer(ctx, cfg)
			if err != nil {
				return err
			}
			if sealer == nil {
				return apperrors.Configuration("CDP_KEY_SEALER is not set")
			}

			// Loading without a sealer validates the plain key before sealing it.
			store, err := keystore.Load(ctx, keystore.Config{Path: in})
			if err != nil {
				return err
			}
			cred := store.Credential()

			sealed, err := sealer.Seal(ctx, []byte(cred.PrivateKey))
			if err != nil {
				return apperrors.Crypto(fmt.Sprintf("seal private key with %s", sealer.Provider()), err)
			}

			data, err := json.MarshalIndent(map[string]string{
				"name":       cred.KeyID,
				"privateKey": sealed,
			}, "", "  ")
			if err != nil {
				return err
			}
			data = append(data, '\n')

			if out == "" {
				_, err = c.out.Write(data)
				return err
			}
			if err := os.WriteFile(out, data, 0o600); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			fmt.Fprintf(c.out, "sealed credential written to %s (%s)\n", out, sealer.Provider())
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "Plain credential file to seal")
	cmd.Flags().StringVar(&out, "out", "", "Destination file (default: stdout)")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}
