package awsKmsProvider

import (
	"context"
	cryptoEcdsa "crypto/ecdsa"
	"encoding/asn1"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmsTypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/eip1193"
)

// secp256k1 group order
var (
	curveOrder, _ = new(big.Int).SetString("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141", 16)
	halfOrder     = new(big.Int).Rsh(curveOrder, 1)
)

// KmsAPI is the subset of the KMS client the provider calls
type KmsAPI interface {
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

// AWSKMSProvider exposes one ECC_SECG_P256K1 KMS key as an EIP-1193 wallet with a
// single account. Private key material never leaves KMS; personal_sign digests are
// signed remotely and converted to r || s || v.
type AWSKMSProvider struct {
	eip1193.Emitter

	logger    *zap.Logger
	kmsClient KmsAPI
	keyId     string
	chainId   string

	mu         sync.Mutex
	publicKey  *cryptoEcdsa.PublicKey
	authorized bool
}

// NewAWSKMSProvider creates a provider for keyId using the given AWS configuration
func NewAWSKMSProvider(awsCfg aws.Config, keyId string, chainId string, logger *zap.Logger) *AWSKMSProvider {
	return NewAWSKMSProviderWithClient(kms.NewFromConfig(awsCfg), keyId, chainId, logger)
}

// NewAWSKMSProviderWithClient is NewAWSKMSProvider with an explicit KMS client
func NewAWSKMSProviderWithClient(client KmsAPI, keyId string, chainId string, logger *zap.Logger) *AWSKMSProvider {
	if chainId == "" {
		chainId = "0x1"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AWSKMSProvider{
		logger:    logger,
		kmsClient: client,
		keyId:     keyId,
		chainId:   chainId,
	}
}

var _ eip1193.IProvider = (*AWSKMSProvider)(nil)

// Address returns the Ethereum address of the KMS key
func (a *AWSKMSProvider) Address(ctx context.Context) (common.Address, error) {
	pub, err := a.getPublicKey(ctx)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Request implements eip1193.IProvider
func (a *AWSKMSProvider) Request(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.logger.Debug("KMS provider request", zap.String("method", method), zap.String("keyId", a.keyId))

	switch method {
	case eip1193.MethodAccounts:
		a.mu.Lock()
		authorized := a.authorized
		a.mu.Unlock()
		if !authorized {
			return json.Marshal([]string{})
		}
		addr, err := a.Address(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal([]string{addr.Hex()})

	case eip1193.MethodRequestAccounts, eip1193.MethodRequestPermissions:
		addr, err := a.Address(ctx)
		if err != nil {
			return nil, err
		}
		a.setAuthorized(true, addr)
		if method == eip1193.MethodRequestAccounts {
			return json.Marshal([]string{addr.Hex()})
		}
		return json.Marshal([]map[string]string{{"parentCapability": eip1193.MethodAccounts}})

	case eip1193.MethodRevokePermissions:
		a.setAuthorized(false, common.Address{})
		return json.RawMessage("null"), nil

	case eip1193.MethodChainId:
		return json.Marshal(a.chainId)

	case eip1193.MethodPersonalSign:
		return a.personalSign(ctx, params)

	default:
		return nil, &eip1193.ProviderError{
			Code:    eip1193.CodeUnsupportedMethod,
			Message: fmt.Sprintf("the method %s is not supported by the KMS provider", method),
		}
	}
}

func (a *AWSKMSProvider) setAuthorized(authorized bool, addr common.Address) {
	a.mu.Lock()
	changed := a.authorized != authorized
	a.authorized = authorized
	a.mu.Unlock()

	if !changed {
		return
	}
	if authorized {
		a.Emit(eip1193.Notification{Kind: eip1193.NotificationConnect, ChainId: a.chainId})
		a.Emit(eip1193.Notification{Kind: eip1193.NotificationAccountsChanged, Accounts: []common.Address{addr}})
		return
	}
	a.Emit(eip1193.Notification{Kind: eip1193.NotificationAccountsChanged, Accounts: []common.Address{}})
	a.Emit(eip1193.Notification{
		Kind: eip1193.NotificationDisconnect,
		Err:  &eip1193.ProviderError{Code: eip1193.CodeDisconnected, Message: "permissions revoked"},
	})
}

func (a *AWSKMSProvider) personalSign(ctx context.Context, params []interface{}) (json.RawMessage, error) {
	if len(params) != 2 {
		return nil, &eip1193.ProviderError{Code: eip1193.CodeInvalidParams, Message: "personal_sign expects [message, address]"}
	}
	messageHex, ok := params[0].(string)
	if !ok {
		return nil, &eip1193.ProviderError{Code: eip1193.CodeInvalidParams, Message: "message must be a hex string"}
	}
	addressHex, ok := params[1].(string)
	if !ok || !common.IsHexAddress(addressHex) {
		return nil, &eip1193.ProviderError{Code: eip1193.CodeInvalidParams, Message: "address must be a hex address"}
	}
	message, err := hexutil.Decode(messageHex)
	if err != nil {
		return nil, &eip1193.ProviderError{Code: eip1193.CodeInvalidParams, Message: err.Error()}
	}

	a.mu.Lock()
	authorized := a.authorized
	a.mu.Unlock()
	if !authorized {
		return nil, &eip1193.ProviderError{Code: eip1193.CodeUnauthorized, Message: "eth_accounts permission not granted"}
	}

	addr, err := a.Address(ctx)
	if err != nil {
		return nil, err
	}
	if addr != common.HexToAddress(addressHex) {
		return nil, &eip1193.ProviderError{Code: eip1193.CodeUnauthorized, Message: fmt.Sprintf("account %s not found", addressHex)}
	}

	sig, err := a.SignDigest(ctx, accounts.TextHash(message))
	if err != nil {
		return nil, err
	}
	return json.Marshal(hexutil.Encode(sig))
}

// getPublicKey fetches and caches the key's public key
func (a *AWSKMSProvider) getPublicKey(ctx context.Context) (*cryptoEcdsa.PublicKey, error) {
	a.mu.Lock()
	cached := a.publicKey
	a.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	out, err := a.kmsClient.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(a.keyId)})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get public key for key %s", a.keyId)
	}
	pub, err := parseECDSAPublicKey(out.PublicKey)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse public key for key %s", a.keyId)
	}

	a.mu.Lock()
	a.publicKey = pub
	a.mu.Unlock()
	return pub, nil
}

// SignDigest signs a 32 byte digest in KMS and returns r || s || v with v in {27, 28}.
// s is normalized to the lower half of the curve order.
func (a *AWSKMSProvider) SignDigest(ctx context.Context, digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("digest must be exactly 32 bytes, got %d", len(digest))
	}

	expected, err := a.getPublicKey(ctx)
	if err != nil {
		return nil, err
	}

	out, err := a.kmsClient.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(a.keyId),
		Message:          digest,
		SigningAlgorithm: kmsTypes.SigningAlgorithmSpecEcdsaSha256,
		MessageType:      kmsTypes.MessageTypeDigest,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to sign with key %s", a.keyId)
	}

	var sigAsn1 asn1EcSig
	if _, err := asn1.Unmarshal(out.Signature, &sigAsn1); err != nil {
		return nil, errors.Wrap(err, "failed to parse KMS signature")
	}

	r := new(big.Int).SetBytes(sigAsn1.R.Bytes)
	s := new(big.Int).SetBytes(sigAsn1.S.Bytes)
	if s.Cmp(halfOrder) > 0 {
		s = new(big.Int).Sub(curveOrder, s)
	}

	sig := make([]byte, crypto.SignatureLength)
	r.FillBytes(sig[0:32])
	s.FillBytes(sig[32:64])

	// KMS does not report the recovery id; find the one that yields our key
	for recoveryId := byte(0); recoveryId < 2; recoveryId++ {
		sig[64] = recoveryId
		recovered, err := crypto.SigToPub(digest, sig)
		if err != nil {
			a.logger.Debug("Public key recovery failed", zap.Uint8("recoveryId", recoveryId), zap.Error(err))
			continue
		}
		if recovered.X.Cmp(expected.X) == 0 && recovered.Y.Cmp(expected.Y) == 0 {
			sig[64] = 27 + recoveryId
			return sig, nil
		}
	}
	return nil, fmt.Errorf("could not determine valid recovery ID for key %s", a.keyId)
}

// parseECDSAPublicKey parses the DER SubjectPublicKeyInfo returned by KMS
func parseECDSAPublicKey(derBytes []byte) (*cryptoEcdsa.PublicKey, error) {
	var asn1pubk asn1EcPublicKey
	if _, err := asn1.Unmarshal(derBytes, &asn1pubk); err != nil {
		return nil, fmt.Errorf("failed to parse ASN.1 public key: %w", err)
	}
	return crypto.UnmarshalPubkey(asn1pubk.PublicKey.Bytes)
}

type asn1EcSig struct {
	R asn1.RawValue
	S asn1.RawValue
}

type asn1EcPublicKey struct {
	EcPublicKeyInfo asn1EcPublicKeyInfo
	PublicKey       asn1.BitString
}

type asn1EcPublicKeyInfo struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.ObjectIdentifier
}
