package clob

import (
	"crypto/ecdsa"
	"errors"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	polygonChainID = 137
	// CTF exchange contract the order signature is bound to.
	exchangeContract = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
)

// OrderPayload mirrors the CTF exchange order struct that gets hashed and
// signed. Amounts are in base units (USDC 1e6, shares 1e6).
type OrderPayload struct {
	Salt          int64
	Maker         string
	Taker         string
	TokenID       string
	MakerAmount   int64
	TakerAmount   int64
	Expiration    int64
	Nonce         int64
	FeeRateBps    int64
	Side          int // 0 buy, 1 sell
	SignatureType int
}

// Signer holds the trading key and produces EIP-712 order signatures. Key
// custody beyond the hex string handed in at startup is out of scope here.
type Signer struct {
	privKey *ecdsa.PrivateKey
	address common.Address
}

func NewSigner(hexKey string) (*Signer, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if clean == "" {
		return nil, errors.New("private key is required")
	}
	key, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, err
	}
	return &Signer{privKey: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

func (s *Signer) Address() common.Address {
	return s.address
}

// SignOrder hashes the order with the exchange's typed-data domain and signs
// it, returning the 65-byte signature hex-encoded.
func (s *Signer) SignOrder(order OrderPayload) (string, error) {
	digest, err := orderDigest(order, s.address)
	if err != nil {
		return "", err
	}
	sig, err := crypto.Sign(digest, s.privKey)
	if err != nil {
		return "", err
	}
	if len(sig) != 65 {
		return "", errors.New("unexpected signature length")
	}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}

func orderDigest(order OrderPayload, signerAddr common.Address) ([]byte, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Order": {
				{Name: "salt", Type: "uint256"},
				{Name: "maker", Type: "address"},
				{Name: "signer", Type: "address"},
				{Name: "taker", Type: "address"},
				{Name: "tokenId", Type: "uint256"},
				{Name: "makerAmount", Type: "uint256"},
				{Name: "takerAmount", Type: "uint256"},
				{Name: "expiration", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "feeRateBps", Type: "uint256"},
				{Name: "side", Type: "uint8"},
				{Name: "signatureType", Type: "uint8"},
			},
		},
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              "Polymarket CTF Exchange",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(polygonChainID),
			VerifyingContract: exchangeContract,
		},
		Message: apitypes.TypedDataMessage{
			"salt":          strconv.FormatInt(order.Salt, 10),
			"maker":         order.Maker,
			"signer":        signerAddr.Hex(),
			"taker":         order.Taker,
			"tokenId":       order.TokenID,
			"makerAmount":   strconv.FormatInt(order.MakerAmount, 10),
			"takerAmount":   strconv.FormatInt(order.TakerAmount, 10),
			"expiration":    strconv.FormatInt(order.Expiration, 10),
			"nonce":         strconv.FormatInt(order.Nonce, 10),
			"feeRateBps":    strconv.FormatInt(order.FeeRateBps, 10),
			"side":          strconv.Itoa(order.Side),
			"signatureType": strconv.Itoa(order.SignatureType),
		},
	}
	domainHash, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, err
	}
	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256([]byte("\x19\x01"), domainHash, messageHash), nil
}
