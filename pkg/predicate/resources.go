package predicate

import (
	_ "embed"
)

var (
	//go:embed resources/verification-predicate.bin
	verificationPredicateBytecode []byte

	//go:embed resources/verification-predicate-abi.json
	verificationPredicateAbi []byte
)

// LoadVerificationProgram loads the bundled predicate that checks a personal_sign
// signature from the SIGNER address over the transaction id.
func LoadVerificationProgram() (*Program, error) {
	return NewProgram(verificationPredicateBytecode, verificationPredicateAbi)
}
