package scoring

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"cloneguard-lab/internal/domain/models"
)

// Hasher computes and compares perceptual image hashes
type Hasher interface {
	// Hash returns a perceptual hash string, or an error when the bytes are not a readable image
	Hash(image []byte) (string, error)
	// Distance returns the hamming distance between two hash strings and their bit length
	Distance(a, b string) (distance int, bits int, err error)
}

// DefaultSensitivePermissions are permission name fragments that count against an app
var DefaultSensitivePermissions = []string{
	"READ_SMS",
	"SEND_SMS",
	"READ_CONTACTS",
	"REQUEST_INSTALL_PACKAGES",
	"SYSTEM_ALERT_WINDOW",
}

var urlPattern = regexp.MustCompile(`https?://[^\s"'<>()]+`)

func permissionRisk(sensitive []string) Evaluator {
	return NewEvaluatorFunc(models.SignalPermissionRisk, func(ev *models.Evidence) models.SignalResult {
		if ev == nil || ev.Package == nil || ev.Package.Permissions == nil {
			return Unavailable(models.SignalPermissionRisk, "permission list missing", nil)
		}

		matched := make([]string, 0)
		for _, perm := range ev.Package.Permissions {
			name := perm
			if i := strings.LastIndex(perm, "."); i >= 0 {
				name = perm[i+1:]
			}
			for _, s := range sensitive {
				if strings.Contains(name, s) {
					matched = append(matched, perm)
					break
				}
			}
		}

		score := 1 - 0.1*float64(len(matched))
		if score < 0 {
			score = 0
		}
		return Available(models.SignalPermissionRisk, round(score, 2), map[string]any{
			"requested": len(ev.Package.Permissions),
			"flagged":   matched,
		})
	})
}

func iconPerceptualHash(hasher Hasher) Evaluator {
	return NewEvaluatorFunc(models.SignalIconPerceptualHash, func(ev *models.Evidence) models.SignalResult {
		if ev == nil || ev.Package == nil || len(ev.Package.Icon) == 0 {
			return Unavailable(models.SignalIconPerceptualHash, "icon missing", nil)
		}
		if hasher == nil {
			return Unavailable(models.SignalIconPerceptualHash, "no image hasher configured", nil)
		}

		hash, err := hasher.Hash(ev.Package.Icon)
		if err != nil {
			return Unavailable(models.SignalIconPerceptualHash, "icon unreadable: "+err.Error(), nil)
		}
		details := map[string]any{"phash": hash}

		if ev.Reference == nil || ev.Reference.IconPHash == "" {
			return Unavailable(models.SignalIconPerceptualHash, "no reference icon", details)
		}
		details["reference_phash"] = ev.Reference.IconPHash
		details["reference_package"] = ev.Reference.PackageName

		dist, bits, err := hasher.Distance(hash, ev.Reference.IconPHash)
		if err != nil || bits <= 0 {
			reason := "reference hash incomparable"
			if err != nil {
				reason += ": " + err.Error()
			}
			return Unavailable(models.SignalIconPerceptualHash, reason, details)
		}
		details["hamming_distance"] = dist
		details["bits"] = bits
		return Available(models.SignalIconPerceptualHash, 1-float64(dist)/float64(bits), details)
	})
}

// Fingerprint holds the digests of one certificate
type Fingerprint struct {
	SHA1   string `json:"sha1"`
	SHA256 string `json:"sha256"`
}

// Fingerprints digests every certificate's DER bytes
func Fingerprints(certs []models.Certificate) []Fingerprint {
	out := make([]Fingerprint, 0, len(certs))
	for _, c := range certs {
		s1 := sha1.Sum(c.DER)
		s256 := sha256.Sum256(c.DER)
		out = append(out, Fingerprint{
			SHA1:   hex.EncodeToString(s1[:]),
			SHA256: hex.EncodeToString(s256[:]),
		})
	}
	return out
}

func certificateFingerprint() Evaluator {
	return NewEvaluatorFunc(models.SignalCertificateFingerprint, func(ev *models.Evidence) models.SignalResult {
		if ev == nil || ev.Package == nil || len(ev.Package.Certificates) == 0 {
			return Unavailable(models.SignalCertificateFingerprint, "no certificates extracted", nil)
		}

		fps := Fingerprints(ev.Package.Certificates)
		details := map[string]any{"certificates": fps}

		if ev.Reference == nil || len(ev.Reference.CertSHA256) == 0 {
			return Unavailable(models.SignalCertificateFingerprint, "no reference fingerprint", details)
		}
		details["reference_package"] = ev.Reference.PackageName

		known := make(map[string]bool, len(ev.Reference.CertSHA256))
		for _, fp := range ev.Reference.CertSHA256 {
			known[normalizeFingerprint(fp)] = true
		}
		for _, fp := range fps {
			if known[fp.SHA256] {
				details["matched_sha256"] = fp.SHA256
				details["key_mismatch"] = false
				return Available(models.SignalCertificateFingerprint, 1, details)
			}
		}
		details["key_mismatch"] = true
		return Available(models.SignalCertificateFingerprint, 0, details)
	})
}

// normalizeFingerprint accepts "AB:CD:..." or plain hex in any case
func normalizeFingerprint(fp string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(fp), ":", ""))
}

// ExtractURLs returns every http(s) URL in strs, de-duplicated in first-seen order
func ExtractURLs(strs []string) []string {
	seen := make(map[string]bool)
	urls := make([]string, 0)
	for _, s := range strs {
		for _, u := range urlPattern.FindAllString(s, -1) {
			if !seen[u] {
				seen[u] = true
				urls = append(urls, u)
			}
		}
	}
	return urls
}

func urlExtraction() Evaluator {
	return NewEvaluatorFunc(models.SignalURLExtraction, func(ev *models.Evidence) models.SignalResult {
		if ev == nil || ev.Package == nil || ev.Package.ResourceStrings == nil {
			return Unavailable(models.SignalURLExtraction, "resource strings unavailable", nil)
		}
		urls := ExtractURLs(ev.Package.ResourceStrings)
		return Unavailable(models.SignalURLExtraction, "informational", map[string]any{
			"urls":  urls,
			"count": len(urls),
		})
	})
}
