package cdp

import (
	"encoding/json"
	"errors"
)

// Wallet is a platform wallet.
type Wallet struct {
	ID                 string   `json:"id"`
	NetworkID          string   `json:"network_id"`
	DefaultAddress     *Address `json:"default_address,omitempty"`
	ServerSignerStatus string   `json:"server_signer_status,omitempty"`
}

// Validate implements transport.Validator.
func (w *Wallet) Validate() error {
	if w.ID == "" {
		return errors.New("wallet: id is required")
	}
	if w.NetworkID == "" {
		return errors.New("wallet: network_id is required")
	}
	if w.DefaultAddress != nil {
		return w.DefaultAddress.Validate()
	}
	return nil
}

// Address is an on-chain address held by a wallet.
type Address struct {
	WalletID  string `json:"wallet_id"`
	NetworkID string `json:"network_id"`
	AddressID string `json:"address_id"`
	PublicKey string `json:"public_key,omitempty"`
	Index     int    `json:"index"`
}

// Validate implements transport.Validator.
func (a *Address) Validate() error {
	if a.AddressID == "" {
		return errors.New("address: address_id is required")
	}
	return nil
}

// FaucetTransaction is the result of a faucet request.
type FaucetTransaction struct {
	TransactionHash string `json:"transaction_hash"`
	TransactionLink string `json:"transaction_link,omitempty"`
}

// Validate implements transport.Validator.
func (f *FaucetTransaction) Validate() error {
	if f.TransactionHash == "" {
		return errors.New("faucet transaction: transaction_hash is required")
	}
	return nil
}

// Transaction is the on-chain transaction backing a transfer.
type Transaction struct {
	NetworkID       string `json:"network_id,omitempty"`
	FromAddressID   string `json:"from_address_id,omitempty"`
	ToAddressID     string `json:"to_address_id,omitempty"`
	UnsignedPayload string `json:"unsigned_payload,omitempty"`
	SignedPayload   string `json:"signed_payload,omitempty"`
	TransactionHash string `json:"transaction_hash,omitempty"`
	TransactionLink string `json:"transaction_link,omitempty"`
	Status          string `json:"status,omitempty"`
}

// Transfer is an asset transfer from a wallet address.
type Transfer struct {
	TransferID      string       `json:"transfer_id"`
	NetworkID       string       `json:"network_id"`
	WalletID        string       `json:"wallet_id"`
	AddressID       string       `json:"address_id"`
	Destination     string       `json:"destination"`
	Amount          string       `json:"amount"`
	AssetID         string       `json:"asset_id"`
	Status          string       `json:"status,omitempty"`
	UnsignedPayload string       `json:"unsigned_payload,omitempty"`
	TransactionHash string       `json:"transaction_hash,omitempty"`
	TransactionLink string       `json:"transaction_link,omitempty"`
	Transaction     *Transaction `json:"transaction,omitempty"`
}

// UnmarshalJSON accepts the flat transfer object as well as the enveloped
// form {"transfer":{"model":{...}}} returned by some platform versions.
// Either wrapper level may appear alone.
func (t *Transfer) UnmarshalJSON(data []byte) error {
	var envelope struct {
		Transfer json.RawMessage `json:"transfer"`
		Model    json.RawMessage `json:"model"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}
	switch {
	case isObject(envelope.Transfer):
		return t.UnmarshalJSON(envelope.Transfer)
	case isObject(envelope.Model):
		return t.UnmarshalJSON(envelope.Model)
	}

	type plain Transfer
	return json.Unmarshal(data, (*plain)(t))
}

func isObject(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}

// Validate implements transport.Validator.
func (t *Transfer) Validate() error {
	if t.TransferID == "" {
		return errors.New("transfer: transfer_id is required")
	}
	if t.Amount == "" {
		return errors.New("transfer: amount is required")
	}
	if t.Destination == "" {
		return errors.New("transfer: destination is required")
	}
	return nil
}

// Redact removes the unsigned transaction payload at every level. Unsigned
// payloads must not leave the process boundary toward a model context.
func (t *Transfer) Redact() *Transfer {
	t.UnsignedPayload = ""
	if t.Transaction != nil {
		t.Transaction.UnsignedPayload = ""
	}
	return t
}

// Balance is an amount of one currency.
type Balance struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// AccountBalance is the public API balance response.
type AccountBalance struct {
	Data Balance `json:"data"`
}

// Validate implements transport.Validator.
func (b *AccountBalance) Validate() error {
	if b.Data.Amount == "" {
		return errors.New("balance: data.amount is required")
	}
	if b.Data.Currency == "" {
		return errors.New("balance: data.currency is required")
	}
	return nil
}

// CreateWalletRequest is the body of a wallet creation.
type CreateWalletRequest struct {
	NetworkID       string `json:"network_id"`
	UseServerSigner bool   `json:"use_server_signer"`
}

// TransferRequest is the body of a transfer creation. Amount is in the asset's
// atomic units (wei for eth).
type TransferRequest struct {
	Amount      string `json:"amount"`
	AssetID     string `json:"asset_id"`
	Destination string `json:"destination"`
	NetworkID   string `json:"network_id"`
}
