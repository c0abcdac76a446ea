package validation

import (
	"fmt"
	"math/big"
	"net/url"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/google/uuid"
)

// EthereumAddressPattern is the regex pattern for Ethereum addresses
var EthereumAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

var (
	networkIDPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
	assetIDPattern   = regexp.MustCompile(`^[A-Za-z0-9_]{1,32}$`)
	decimalPattern   = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)
)

// EtherDecimals is the number of fractional digits of one ether in wei.
const EtherDecimals = 18

var weiPerEther = new(big.Int).SetUint64(params.Ether)

// ValidateEthereumAddress validates a transfer destination. The zero address is
// rejected.
func ValidateEthereumAddress(address string) error {
	if err := ValidateAddressID(address); err != nil {
		return err
	}

	// Prevent sending to zero address (common mistake)
	if common.HexToAddress(address) == (common.Address{}) {
		return fmt.Errorf("cannot send to zero address")
	}

	return nil
}

// ValidateAddressID validates the format of a wallet address id.
func ValidateAddressID(address string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if !EthereumAddressPattern.MatchString(address) {
		return fmt.Errorf("invalid Ethereum address format: must be 0x followed by 40 hex characters")
	}

	if !common.IsHexAddress(address) {
		return fmt.Errorf("invalid Ethereum address")
	}

	return nil
}

// ValidateWalletID validates a platform wallet id (a UUID).
func ValidateWalletID(id string) error {
	if id == "" {
		return fmt.Errorf("wallet id cannot be empty")
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid wallet id: must be a UUID")
	}
	return nil
}

// ValidateAccountID validates an account id used as a single path segment.
func ValidateAccountID(id string) error {
	if id == "" {
		return fmt.Errorf("account id cannot be empty")
	}
	if len(id) > 128 {
		return fmt.Errorf("account id too long: %d characters > 128 max", len(id))
	}
	if id == "." || id == ".." || url.PathEscape(id) != id {
		return fmt.Errorf("account id contains characters that are not allowed in a path segment")
	}
	return nil
}

// ValidateNetworkID validates a network id such as "base-sepolia".
func ValidateNetworkID(networkID string) error {
	if networkID == "" {
		return fmt.Errorf("network id cannot be empty")
	}
	if !networkIDPattern.MatchString(networkID) {
		return fmt.Errorf("invalid network id %q: must be lowercase words separated by '-'", networkID)
	}
	return nil
}

// ValidateAssetID validates an asset id such as "eth" or "usdc".
func ValidateAssetID(assetID string) error {
	if assetID == "" {
		return fmt.Errorf("asset id cannot be empty")
	}
	if !assetIDPattern.MatchString(assetID) {
		return fmt.Errorf("invalid asset id %q", assetID)
	}
	return nil
}

// ValidateTransferValue validates a transfer value in wei
func ValidateTransferValue(value *big.Int, maxValue *big.Int) error {
	if value == nil {
		return fmt.Errorf("value cannot be nil")
	}

	if value.Sign() <= 0 {
		return fmt.Errorf("value must be positive")
	}

	// Check against maximum value if specified
	if maxValue != nil && value.Cmp(maxValue) > 0 {
		return fmt.Errorf("value exceeds maximum allowed: %s > %s", value.String(), maxValue.String())
	}

	return nil
}

// ParseEtherAmount converts a decimal ether amount such as "0.015" to wei.
// At most EtherDecimals fractional digits are accepted and the result must be
// positive.
func ParseEtherAmount(amount string) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("amount cannot be empty")
	}
	if !decimalPattern.MatchString(amount) {
		return nil, fmt.Errorf("invalid amount %q: must be a plain decimal number", amount)
	}

	whole, frac, _ := strings.Cut(amount, ".")
	if len(frac) > EtherDecimals {
		return nil, fmt.Errorf("invalid amount %q: at most %d decimal places", amount, EtherDecimals)
	}

	wei, ok := new(big.Int).SetString(whole, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}
	wei.Mul(wei, weiPerEther)

	if frac != "" {
		fracWei, ok := new(big.Int).SetString(frac+strings.Repeat("0", EtherDecimals-len(frac)), 10)
		if !ok {
			return nil, fmt.Errorf("invalid amount %q", amount)
		}
		wei.Add(wei, fracWei)
	}

	if err := ValidateTransferValue(wei, nil); err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return wei, nil
}

// FormatEther renders wei as a decimal ether amount without trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}

	sign := ""
	abs := new(big.Int).Set(wei)
	if abs.Sign() < 0 {
		sign = "-"
		abs.Neg(abs)
	}

	whole, frac := new(big.Int).QuoRem(abs, weiPerEther, new(big.Int))
	if frac.Sign() == 0 {
		return sign + whole.String()
	}

	fracStr := frac.String()
	fracStr = strings.Repeat("0", EtherDecimals-len(fracStr)) + fracStr
	return sign + whole.String() + "." + strings.TrimRight(fracStr, "0")
}
