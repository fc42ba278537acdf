package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"net/http"
	"strings"
)

func (h *DefaultPromotionHandler) verifyXSignature(header http.Header, body []byte) error {
	// no key configured, no X-Signature checking
	if len(h.hmacKey) == 0 {
		return nil
	}

	if len(header[SignatureHeader]) == 0 {
		return errors.New("no X-Signature header provided")
	}

	if err := verifySignature(header[SignatureHeader][0], body, h.hmacKey); err != nil {
		return fmt.Errorf("failed verifying X-Signature header: %s", err)
	}

	return nil
}

func verifySignature(sig string, payload, key []byte) error {
	sigHdr := strings.Split(sig, "=")
	if len(sigHdr) != 2 {
		return fmt.Errorf("invalid signature value")
	}

	var newF func() hash.Hash

	switch sigHdr[0] {
	case "sha224":
		newF = sha256.New224
	case "sha256":
		newF = sha256.New
	case "sha384":
		newF = sha512.New384
	case "sha512":
		newF = sha512.New
	default:
		return fmt.Errorf("unsupported signature algorithm %q", sigHdr[0])
	}

	expected, err := hex.DecodeString(sigHdr[1])
	if err != nil {
		return fmt.Errorf("signature isn't hex encoded: %w", err)
	}

	mac := hmac.New(newF, key)
	if _, err := mac.Write(payload); err != nil {
		return fmt.Errorf("error MAC'ing payload: %w", err)
	}

	if !hmac.Equal(mac.Sum(nil), expected) {
		return errors.New("HMACs don't match")
	}

	return nil
}
