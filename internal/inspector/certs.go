package inspector

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"go.mozilla.org/pkcs7"

	"cloneguard-lab/internal/domain/models"
)

// ErrNoSignature is returned when the archive carries no v1 signature block
var ErrNoSignature = errors.New("no signature block found")

const maxSignatureBlockSize = 1 << 20

// extractCertificates reads the PKCS#7 signature blocks under META-INF and
// returns every embedded certificate in archive order
func extractCertificates(zr *zip.Reader) ([]models.Certificate, error) {
	var (
		certs   []models.Certificate
		lastErr error
		found   bool
	)

	for _, f := range zr.File {
		if !isSignatureBlock(f.Name) {
			continue
		}
		found = true

		data, err := readZipFile(f, maxSignatureBlockSize)
		if err != nil {
			lastErr = err
			continue
		}

		p7, err := pkcs7.Parse(data)
		if err != nil {
			lastErr = fmt.Errorf("failed to parse %s: %w", f.Name, err)
			continue
		}
		for _, c := range p7.Certificates {
			certs = append(certs, models.Certificate{DER: c.Raw})
		}
	}

	if !found {
		return nil, ErrNoSignature
	}
	if len(certs) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return certs, nil
}

func isSignatureBlock(name string) bool {
	if path.Dir(name) != "META-INF" {
		return false
	}
	switch strings.ToUpper(path.Ext(name)) {
	case ".RSA", ".DSA", ".EC":
		return true
	}
	return false
}

// readZipFile reads an archive member, refusing anything larger than limit
func readZipFile(f *zip.File, limit int64) ([]byte, error) {
	if int64(f.UncompressedSize64) > limit {
		return nil, fmt.Errorf("%s exceeds %d bytes", f.Name, limit)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%s exceeds %d bytes", f.Name, limit)
	}
	return data, nil
}

func findZipFile(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}
