package ses

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/kursadbilgin/notify/internal/domain"
)

const defaultFetchTimeout = 5 * time.Second

var snsHostPattern = regexp.MustCompile(`^sns\.[a-z0-9-]+\.amazonaws\.com(\.cn)?$`)

// CertificateFetcher loads a PEM encoded certificate.
type CertificateFetcher interface {
	Fetch(ctx context.Context, certURL string) ([]byte, error)
}

// HTTPCertificateFetcher downloads certificates with resty.
type HTTPCertificateFetcher struct {
	client *resty.Client
}

func NewHTTPCertificateFetcher(client *resty.Client) *HTTPCertificateFetcher {
	if client == nil {
		client = resty.New()
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultFetchTimeout)
	}
	return &HTTPCertificateFetcher{client: client}
}

func (f *HTTPCertificateFetcher) Fetch(ctx context.Context, certURL string) ([]byte, error) {
	resp, err := f.client.R().SetContext(ctx).Get(certURL)
	if err != nil {
		return nil, fmt.Errorf("fetch signing certificate: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("fetch signing certificate: status %d", resp.StatusCode())
	}
	return resp.Body(), nil
}

// Verifier checks SNS message signatures. Parsed certificates are held in a
// bounded cache keyed by URL.
type Verifier struct {
	fetcher CertificateFetcher
	cache   *expirable.LRU[string, *x509.Certificate]
}

func NewVerifier(fetcher CertificateFetcher, cacheSize int, ttl time.Duration) *Verifier {
	if cacheSize <= 0 {
		cacheSize = 16
	}
	return &Verifier{
		fetcher: fetcher,
		cache:   expirable.NewLRU[string, *x509.Certificate](cacheSize, nil, ttl),
	}
}

// ErrSignature is returned for envelopes whose signature does not verify.
var ErrSignature = errors.New("sns signature verification failed")

// Verify checks the envelope signature against its signing certificate.
func (v *Verifier) Verify(ctx context.Context, env *Envelope) error {
	cert, err := v.certificate(ctx, env.SigningCertURL)
	if err != nil {
		return err
	}

	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: %w: unsupported key type", domain.ErrInvalidPayload, ErrSignature)
	}

	signature, err := base64.StdEncoding.DecodeString(env.Signature)
	if err != nil {
		return fmt.Errorf("%w: %w: %v", domain.ErrInvalidPayload, ErrSignature, err)
	}

	payload := []byte(env.stringToSign())
	var hash crypto.Hash
	var digest []byte
	switch env.SignatureVersion {
	case "1":
		sum := sha1.Sum(payload)
		hash, digest = crypto.SHA1, sum[:]
	case "2":
		sum := sha256.Sum256(payload)
		hash, digest = crypto.SHA256, sum[:]
	default:
		return fmt.Errorf("%w: %w: signature version %q", domain.ErrInvalidPayload, ErrSignature, env.SignatureVersion)
	}

	if err := rsa.VerifyPKCS1v15(pub, hash, digest, signature); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidPayload, ErrSignature)
	}
	return nil
}

func (v *Verifier) certificate(ctx context.Context, certURL string) (*x509.Certificate, error) {
	if err := validateCertURL(certURL); err != nil {
		return nil, err
	}

	if cert, ok := v.cache.Get(certURL); ok {
		return cert, nil
	}

	raw, err := v.fetcher.Fetch(ctx, certURL)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("%w: signing certificate is not PEM", domain.ErrInvalidPayload)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parse signing certificate: %v", domain.ErrInvalidPayload, err)
	}

	v.cache.Add(certURL, cert)
	return cert, nil
}

func validateCertURL(certURL string) error {
	u, err := url.Parse(certURL)
	if err != nil {
		return fmt.Errorf("%w: invalid signing certificate url", domain.ErrInvalidPayload)
	}
	if u.Scheme != "https" || !snsHostPattern.MatchString(u.Hostname()) {
		return fmt.Errorf("%w: untrusted signing certificate url %q", domain.ErrInvalidPayload, certURL)
	}
	return nil
}
