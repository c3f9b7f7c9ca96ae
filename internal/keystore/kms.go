package keystore

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

// KMSCipher wraps an AWS KMS key for envelope encryption of the key files
// (§2 domain stack: generalizes the teacher's wallet-key KMS use to an
// arbitrary at-rest blob). Encrypt/Decrypt calls block on the network; a
// caller on a fetch/submit tick should not retry these indefinitely, since
// a persistent KMS outage is an operational event, not a transient one.
type KMSCipher struct {
	client *kms.Client
	keyID  string
}

// NewKMSCipher loads the default AWS configuration for region and builds a
// KMS client bound to keyID (an ARN or alias).
func NewKMSCipher(ctx context.Context, region, keyID string) (*KMSCipher, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("keystore: load AWS config: %w", err)
	}
	return &KMSCipher{client: kms.NewFromConfig(cfg), keyID: keyID}, nil
}

func (c *KMSCipher) Encrypt(plaintext []byte) ([]byte, error) {
	out, err := c.client.Encrypt(context.Background(), &kms.EncryptInput{
		KeyId:     &c.keyID,
		Plaintext: plaintext,
	})
	if err != nil {
		return nil, fmt.Errorf("keystore: KMS encrypt: %w", err)
	}
	return out.CiphertextBlob, nil
}

func (c *KMSCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	out, err := c.client.Decrypt(context.Background(), &kms.DecryptInput{
		KeyId:          &c.keyID,
		CiphertextBlob: ciphertext,
	})
	if err != nil {
		return nil, fmt.Errorf("keystore: KMS decrypt: %w", err)
	}
	return out.Plaintext, nil
}

// KeyID returns the KMS key identifier this cipher is bound to.
func (c *KMSCipher) KeyID() string {
	return c.keyID
}
