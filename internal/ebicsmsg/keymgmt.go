package ebicsmsg

import (
	"bytes"
	"compress/zlib"
	"crypto/rsa"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"nexus/internal/ebicscrypto"
	"nexus/internal/ebicsxml"
)

// buildKeyOrderData builds the zlib-compressed order-data block naming one
// or two public keys, the payload INI/HIA upload and HPB download exchange
// (§4.4). Base64 encoding is applied later, by buildKeyManagementEnvelope.
func buildKeyOrderData(keys map[string]*rsa.PublicKey) ([]byte, error) {
	b := ebicsxml.NewBuilder("PubKeyOrderData")
	for label, pub := range keys {
		b.El("Key").Attr("type", label)
		keyEl := b.Current()
		b.At(keyEl).El("Modulus").Text(hex.EncodeToString(pub.N.Bytes()))
		b.At(keyEl).El("Exponent").Text(fmt.Sprintf("%X", pub.E))
	}
	raw := ebicsxml.Marshal(b.Build())

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, fmt.Errorf("ebicsmsg: compress order data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("ebicsmsg: compress order data: %w", err)
	}
	return buf.Bytes(), nil
}

func inflateOrderData(compressed []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("ebicsmsg: inflate order data: %w", err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// BuildINI builds the INI request, uploading the subscriber's signature
// (A006) public key inside an order-data block signed with the subscriber's
// own signature key.
func BuildINI(hdr Header, signatureKey *rsa.PrivateKey, now time.Time) ([]byte, error) {
	orderData, err := buildKeyOrderData(map[string]*rsa.PublicKey{"A006": &signatureKey.PublicKey})
	if err != nil {
		return nil, err
	}
	return buildKeyManagementEnvelope(hdr, "INI", orderData, signatureKey, ebicscrypto.SignA006, now)
}

// BuildHIA builds the HIA request, uploading the subscriber's authentication
// (X002) and encryption (E002) public keys.
func BuildHIA(hdr Header, authKey, encKey *rsa.PublicKey, signingKey *rsa.PrivateKey, now time.Time) ([]byte, error) {
	orderData, err := buildKeyOrderData(map[string]*rsa.PublicKey{"X002": authKey, "E002": encKey})
	if err != nil {
		return nil, err
	}
	return buildKeyManagementEnvelope(hdr, "HIA", orderData, signingKey, ebicscrypto.SignA006, now)
}

// BuildHPBRequest builds the authenticated HPB download request for the
// bank's public keys.
func BuildHPBRequest(hdr Header, signingKey *rsa.PrivateKey, now time.Time) ([]byte, error) {
	return buildKeyManagementEnvelope(hdr, "HPB", nil, signingKey, ebicscrypto.SignA006, now)
}

func buildKeyManagementEnvelope(hdr Header, orderType string, orderData []byte, signingKey *rsa.PrivateKey, signFn func([]byte, *rsa.PrivateKey) ([]byte, error), now time.Time) ([]byte, error) {
	nonce, err := randomNonce()
	if err != nil {
		return nil, err
	}

	b := ebicsxml.NewBuilder("ebicsRequest")
	b.Attr("Version", "H005").Attr("Revision", "1")

	b.El("header").Attr("authenticate", "true")
	header := b.Current()
	b.At(header).El("static")
	static := b.Current()
	b.At(static).El("HostID").Text(hdr.HostID)
	b.At(static).El("Nonce").Text(nonce)
	b.At(static).El("Timestamp").Text(timestamp(now))
	b.At(static).El("PartnerID").Text(hdr.PartnerID)
	b.At(static).El("UserID").Text(hdr.UserID)
	if hdr.SystemID != "" {
		b.At(static).El("SystemID").Text(hdr.SystemID)
	}
	b.At(static).El("Product").Text(hdr.Product)
	b.At(static).El("OrderDetails/AdminOrderType").Text(orderType)
	b.At(header).El("mutable/TransactionPhase").Text("Initialisation")
	b.At(header).El("AuthSignature")

	if orderData != nil {
		b.At(b.Root()).El("body/DataTransfer/OrderData").Attr("authenticate", "true").Text(base64Block(orderData))
	} else {
		b.At(b.Root()).El("body")
	}

	root := b.Build()
	if err := ebicsxml.Sign(root, "header/AuthSignature", signingKey, signFn); err != nil {
		return nil, fmt.Errorf("ebicsmsg: sign %s envelope: %w", orderType, err)
	}
	return ebicsxml.Marshal(root), nil
}

// KeyManagementResponse is the result of parsing an INI/HIA/HPB response
// (§4.4): the technical and bank return codes, plus the decoded bank public
// keys when the response is an HPB download.
type KeyManagementResponse struct {
	TechnicalReturnCode string
	BankReturnCode      string
	BankKeys            map[string]*rsa.PublicKey // populated only for HPB
}

// ParseKeyManagementResponse extracts the return codes and, for HPB,
// decrypts and parses the bank's public keys from the order-data block.
func ParseKeyManagementResponse(data []byte, subscriberEncKey *rsa.PrivateKey) (*KeyManagementResponse, error) {
	d, err := ebicsxml.ParseDestructor(data)
	if err != nil {
		return nil, err
	}
	header, err := d.One("header")
	if err != nil {
		return nil, err
	}
	mutable, err := header.One("mutable")
	if err != nil {
		return nil, err
	}
	techD, err := mutable.One("ReturnCode")
	if err != nil {
		return nil, err
	}
	resp := &KeyManagementResponse{TechnicalReturnCode: techD.Text()}

	bodyD, err := d.Opt("body")
	if err != nil {
		return nil, err
	}
	if bodyD == nil {
		return resp, nil
	}
	returnCodeD, err := bodyD.Opt("ReturnCode")
	if err != nil {
		return nil, err
	}
	if returnCodeD != nil {
		resp.BankReturnCode = returnCodeD.Text()
	}

	dataTransferD, err := bodyD.Opt("DataTransfer")
	if err != nil || dataTransferD == nil {
		return resp, nil
	}
	orderDataD, err := dataTransferD.One("OrderData")
	if err != nil {
		return resp, nil
	}

	var compressed []byte
	if keyD, err := dataTransferD.Opt("DataEncryptionInfo"); err == nil && keyD != nil && subscriberEncKey != nil {
		wrapped, err := decodeKeyEnvelope(keyD)
		if err != nil {
			return nil, err
		}
		decoded, err := decodeBase64(orderDataD.Text())
		if err != nil {
			return nil, err
		}
		compressed, err = ebicscrypto.DecryptE002(decoded, wrapped, subscriberEncKey)
		if err != nil {
			return nil, err
		}
	} else {
		compressed, err = decodeBase64(orderDataD.Text())
		if err != nil {
			return nil, err
		}
	}

	raw, err := inflateOrderData(compressed)
	if err != nil {
		return nil, err
	}
	keys, err := parseKeyOrderData(raw)
	if err != nil {
		return nil, err
	}
	resp.BankKeys = keys
	return resp, nil
}

func parseKeyOrderData(raw []byte) (map[string]*rsa.PublicKey, error) {
	d, err := ebicsxml.ParseDestructor(raw)
	if err != nil {
		return nil, err
	}
	keys := map[string]*rsa.PublicKey{}
	err = d.Each("Key", func(k *ebicsxml.Destructor) error {
		label, _ := k.Attr("type")
		modD, err := k.One("Modulus")
		if err != nil {
			return err
		}
		expD, err := k.One("Exponent")
		if err != nil {
			return err
		}
		modulus, err := hex.DecodeString(modD.Text())
		if err != nil {
			return fmt.Errorf("ebicsmsg: decode modulus: %w", err)
		}
		expHex := expD.Text()
		if len(expHex)%2 == 1 {
			expHex = "0" + expHex
		}
		exponent, err := hex.DecodeString(expHex)
		if err != nil {
			return fmt.Errorf("ebicsmsg: decode exponent: %w", err)
		}
		pub, err := ebicscrypto.PublicFromComponents(modulus, exponent)
		if err != nil {
			return err
		}
		keys[label] = pub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func decodeKeyEnvelope(d *ebicsxml.Destructor) ([]byte, error) {
	valD, err := d.One("TransactionKey")
	if err != nil {
		return nil, err
	}
	return decodeBase64(valD.Text())
}
