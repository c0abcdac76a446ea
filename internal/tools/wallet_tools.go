package tools

import (
	"context"
	"math/big"

	"github.com/better-wallet/wallet-agent/internal/cdp"
	"github.com/better-wallet/wallet-agent/internal/logger"
	"github.com/better-wallet/wallet-agent/internal/validation"
	apperrors "github.com/better-wallet/wallet-agent/pkg/errors"
)

// DefaultAssetID is the asset funded and transferred when none is given.
const DefaultAssetID = "eth"

// WalletAPI is the subset of the platform client the tools call.
// *cdp.Client implements it.
type WalletAPI interface {
	CreateWallet(ctx context.Context, req cdp.CreateWalletRequest) (*cdp.Wallet, error)
	GetWallet(ctx context.Context, walletID string) (*cdp.Wallet, error)
	FundAddress(ctx context.Context, walletID, addressID, assetID string) (*cdp.FaucetTransaction, error)
	CreateTransfer(ctx context.Context, walletID, addressID string, req cdp.TransferRequest) (*cdp.Transfer, error)
	GetAccountBalance(ctx context.Context, accountID string) (*cdp.AccountBalance, error)
}

// Config holds the defaults the wallet tools fall back on.
type Config struct {
	// NetworkID is used for new wallets.
	NetworkID string

	// DefaultWalletID is used when a wallet_id argument is omitted.
	DefaultWalletID string

	// UseServerSigner is sent on wallet creation.
	UseServerSigner bool

	// MaxTransferWei caps transfer_funds amounts; nil means no cap.
	MaxTransferWei *big.Int
}

// NewWalletRegistry registers create_wallet, get_wallet, fund_wallet,
// transfer_funds and get_balance.
func NewWalletRegistry(api WalletAPI, cfg Config) *Registry {
	base := walletTool{api: api, cfg: cfg}
	return NewRegistry(
		&CreateWallet{base},
		&GetWallet{base},
		&FundWallet{base},
		&TransferFunds{base},
		&GetBalance{base},
	)
}

type walletTool struct {
	api WalletAPI
	cfg Config
}

// walletID resolves and validates the wallet id argument, falling back to the
// configured default wallet.
func (w walletTool) walletID(args map[string]string, names ...string) (string, error) {
	id := arg(args, names...)
	if id == "" {
		id = w.cfg.DefaultWalletID
	}
	if err := validation.ValidateWalletID(id); err != nil {
		return "", invalid(names[0], err)
	}
	return id, nil
}

// defaultAddress returns the default address of a fetched wallet.
func defaultAddress(wallet *cdp.Wallet) (string, error) {
	if wallet.DefaultAddress == nil || wallet.DefaultAddress.AddressID == "" {
		return "", apperrors.NewWithDetail(apperrors.ErrCodeInvalidArgument, "Wallet has no default address", wallet.ID)
	}
	return wallet.DefaultAddress.AddressID, nil
}

// CreateWallet creates a wallet and returns it as re-read from the platform.
type CreateWallet struct{ walletTool }

func (t *CreateWallet) Name() string { return "create_wallet" }

func (t *CreateWallet) Description() string {
	return "Create a new custodial wallet and return its id, network and default address."
}

func (t *CreateWallet) Parameters() []Parameter {
	return []Parameter{
		{Name: "network_id", Description: "Network to create the wallet on.", Default: t.cfg.NetworkID},
	}
}

func (t *CreateWallet) Invoke(ctx context.Context, args map[string]string) Result {
	networkID := arg(args, "network_id")
	if networkID == "" {
		networkID = t.cfg.NetworkID
	}
	if err := validation.ValidateNetworkID(networkID); err != nil {
		return fail(ctx, "network_id", networkID, invalid("network_id", err))
	}

	created, err := t.api.CreateWallet(ctx, cdp.CreateWalletRequest{
		NetworkID:       networkID,
		UseServerSigner: t.cfg.UseServerSigner,
	})
	if err != nil {
		return fail(ctx, "network_id", networkID, err)
	}
	logger.Info(ctx, "wallet created", "wallet_id", created.ID, "network_id", created.NetworkID)

	wallet, err := t.api.GetWallet(ctx, created.ID)
	if err != nil {
		return fail(ctx, "wallet_id", created.ID, err)
	}
	return Success(wallet)
}

// GetWallet fetches a wallet.
type GetWallet struct{ walletTool }

func (t *GetWallet) Name() string { return "get_wallet" }

func (t *GetWallet) Description() string {
	return "Look up a wallet by id and return its network and default address."
}

func (t *GetWallet) Parameters() []Parameter {
	return []Parameter{
		{Name: "wallet_id", Description: "Wallet id (UUID). Defaults to the configured wallet.", Required: t.cfg.DefaultWalletID == ""},
	}
}

func (t *GetWallet) Invoke(ctx context.Context, args map[string]string) Result {
	walletID, err := t.walletID(args, "wallet_id")
	if err != nil {
		return fail(ctx, "wallet_id", arg(args, "wallet_id"), err)
	}

	wallet, err := t.api.GetWallet(ctx, walletID)
	if err != nil {
		return fail(ctx, "wallet_id", walletID, err)
	}
	return Success(wallet)
}

// FundResult is the data of a successful fund_wallet call.
type FundResult struct {
	WalletID        string `json:"wallet_id"`
	AddressID       string `json:"address_id"`
	AssetID         string `json:"asset_id"`
	TransactionHash string `json:"transaction_hash"`
	TransactionLink string `json:"transaction_link,omitempty"`
}

// FundWallet requests testnet funds from the platform faucet.
type FundWallet struct{ walletTool }

func (t *FundWallet) Name() string { return "fund_wallet" }

func (t *FundWallet) Description() string {
	return "Fund a wallet address with testnet funds from the faucet."
}

func (t *FundWallet) Parameters() []Parameter {
	return []Parameter{
		{Name: "wallet_id", Description: "Wallet id (UUID). Defaults to the configured wallet.", Required: t.cfg.DefaultWalletID == ""},
		{Name: "address_id", Description: "Address to fund. Defaults to the wallet's default address."},
		{Name: "asset_id", Description: "Asset to request.", Default: DefaultAssetID},
	}
}

func (t *FundWallet) Invoke(ctx context.Context, args map[string]string) Result {
	walletID, err := t.walletID(args, "wallet_id")
	if err != nil {
		return fail(ctx, "wallet_id", arg(args, "wallet_id"), err)
	}

	assetID := arg(args, "asset_id")
	if assetID == "" {
		assetID = DefaultAssetID
	}
	if err := validation.ValidateAssetID(assetID); err != nil {
		return fail(ctx, "wallet_id", walletID, invalid("asset_id", err))
	}

	addressID := arg(args, "address_id")
	if addressID != "" {
		if err := validation.ValidateAddressID(addressID); err != nil {
			return fail(ctx, "wallet_id", walletID, invalid("address_id", err))
		}
	} else {
		wallet, err := t.api.GetWallet(ctx, walletID)
		if err != nil {
			return fail(ctx, "wallet_id", walletID, err)
		}
		if addressID, err = defaultAddress(wallet); err != nil {
			return fail(ctx, "wallet_id", walletID, err)
		}
	}

	tx, err := t.api.FundAddress(ctx, walletID, addressID, assetID)
	if err != nil {
		return fail(ctx, "wallet_id", walletID, err)
	}
	logger.Info(ctx, "wallet funded", "wallet_id", walletID, "address_id", addressID, "transaction_hash", tx.TransactionHash)

	return Success(FundResult{
		WalletID:        walletID,
		AddressID:       addressID,
		AssetID:         assetID,
		TransactionHash: tx.TransactionHash,
		TransactionLink: tx.TransactionLink,
	})
}

// TransferFunds sends ETH from a wallet's default address. The returned
// transfer never includes unsigned payloads.
type TransferFunds struct{ walletTool }

func (t *TransferFunds) Name() string { return "transfer_funds" }

func (t *TransferFunds) Description() string {
	return "Send an amount of ETH from a wallet to a destination address."
}

func (t *TransferFunds) Parameters() []Parameter {
	return []Parameter{
		{Name: "source_wallet_id", Description: "Wallet id (UUID) to send from. Defaults to the configured wallet.", Required: t.cfg.DefaultWalletID == ""},
		{Name: "destination_address", Description: "0x-prefixed address to send to.", Required: true},
		{Name: "amount", Description: "Amount of ETH as a decimal string, e.g. \"0.01\".", Required: true},
	}
}

func (t *TransferFunds) Invoke(ctx context.Context, args map[string]string) Result {
	walletID, err := t.walletID(args, "source_wallet_id", "wallet_id")
	if err != nil {
		return fail(ctx, "wallet_id", arg(args, "source_wallet_id", "wallet_id"), err)
	}

	destination := arg(args, "destination_address", "destination_wallet_address")
	if err := validation.ValidateEthereumAddress(destination); err != nil {
		return fail(ctx, "wallet_id", walletID, invalid("destination_address", err))
	}

	wei, err := validation.ParseEtherAmount(arg(args, "amount"))
	if err != nil {
		return fail(ctx, "wallet_id", walletID, invalid("amount", err))
	}
	if err := validation.ValidateTransferValue(wei, t.cfg.MaxTransferWei); err != nil {
		return fail(ctx, "wallet_id", walletID, invalid("amount", err))
	}

	wallet, err := t.api.GetWallet(ctx, walletID)
	if err != nil {
		return fail(ctx, "wallet_id", walletID, err)
	}
	addressID, err := defaultAddress(wallet)
	if err != nil {
		return fail(ctx, "wallet_id", walletID, err)
	}

	logger.Info(ctx, "creating transfer",
		"wallet_id", walletID,
		"destination", destination,
		"amount_eth", validation.FormatEther(wei),
	)

	transfer, err := t.api.CreateTransfer(ctx, walletID, addressID, cdp.TransferRequest{
		Amount:      wei.String(),
		AssetID:     DefaultAssetID,
		Destination: destination,
		NetworkID:   wallet.NetworkID,
	})
	if err != nil {
		return fail(ctx, "wallet_id", walletID, err)
	}

	return Success(transfer.Redact())
}

// BalanceResult is the data of a successful get_balance call.
type BalanceResult struct {
	AccountID string `json:"account_id"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
}

// GetBalance reads an account balance from the public API.
type GetBalance struct{ walletTool }

func (t *GetBalance) Name() string { return "get_balance" }

func (t *GetBalance) Description() string {
	return "Retrieve the balance of a wallet account."
}

func (t *GetBalance) Parameters() []Parameter {
	return []Parameter{
		{Name: "wallet_id", Description: "Wallet or account id. Defaults to the configured wallet.", Required: t.cfg.DefaultWalletID == ""},
	}
}

func (t *GetBalance) Invoke(ctx context.Context, args map[string]string) Result {
	accountID := arg(args, "wallet_id", "account_id")
	if accountID == "" {
		accountID = t.cfg.DefaultWalletID
	}
	if err := validation.ValidateAccountID(accountID); err != nil {
		return fail(ctx, "account_id", accountID, invalid("wallet_id", err))
	}

	balance, err := t.api.GetAccountBalance(ctx, accountID)
	if err != nil {
		return fail(ctx, "account_id", accountID, err)
	}

	return Success(BalanceResult{
		AccountID: accountID,
		Amount:    balance.Data.Amount,
		Currency:  balance.Data.Currency,
	})
}

var (
	_ Tool = (*CreateWallet)(nil)
	_ Tool = (*GetWallet)(nil)
	_ Tool = (*FundWallet)(nil)
	_ Tool = (*TransferFunds)(nil)
	_ Tool = (*GetBalance)(nil)
	_ WalletAPI = (*cdp.Client)(nil)
)
