package scoring

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloneguard-lab/internal/domain/models"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "phonepeupipayments", Normalize("PhonePe – UPI Payments"))
	assert.Equal(t, "comphonepeapp", Normalize("com.phonepe.app"))
	assert.Equal(t, "", Normalize("— ✓ —"))
}

func TestNormalizedWords(t *testing.T) {
	assert.Equal(t, []string{"phonepe", "upi", "payments"}, NormalizedWords("PhonePe – UPI Payments"))
	assert.Empty(t, NormalizedWords("  "))
}

func TestRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"abcd", "bcde", 0.75},
		{"abc", "abc", 1},
		{"abc", "xyz", 0},
		{"", "abc", 0},
		{"sbiyono", "sbi", 0.6},
		// difflib picks the earliest block in a on ties, which gives 8 matched characters here
		{"comphonepeapp", "phonepeupipayments", 16.0 / 31.0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Ratio(tt.a, tt.b), 1e-9, "%q vs %q", tt.a, tt.b)
	}
}

func TestBestBrand(t *testing.T) {
	m := BestBrand("PhonePe – UPI Payments", DefaultBrands)
	assert.Equal(t, "phonepe", m.Brand)
	assert.InDelta(t, 1.0, m.Score, 1e-9)

	m = BestBrand("", DefaultBrands)
	assert.Empty(t, m.Brand)
	assert.Zero(t, m.Score)
}

func TestPackageLabelSimilarity(t *testing.T) {
	eval := packageLabelSimilarity(DefaultBrands)

	res := eval.Evaluate(&models.Evidence{Store: &models.StoreRecord{
		AppID: "com.phonepe.app",
		Title: "PhonePe – UPI Payments",
	}})
	require.True(t, res.Available)
	assert.Greater(t, res.Details["pkg_title_similarity"].(float64), 0.5)
	assert.Equal(t, "phonepe", res.Details["best_brand"])
	assert.InDelta(t, 1.0, res.Details["best_brand_score"].(float64), 1e-9)
	assert.InDelta(t, 0.6*16.0/31.0+0.4, *res.Score, 1e-9)

	t.Run("falls back to package label and name", func(t *testing.T) {
		res := eval.Evaluate(&models.Evidence{Package: &models.PackageEvidence{
			Package: "com.paytm.wallet",
			Label:   "Paytm",
		}})
		require.True(t, res.Available)
		assert.Equal(t, "paytm", res.Details["best_brand"])
	})

	t.Run("missing title", func(t *testing.T) {
		res := eval.Evaluate(&models.Evidence{Store: &models.StoreRecord{AppID: "com.x"}})
		assert.False(t, res.Available)
		assert.Nil(t, res.Score)
	})
}

func TestReviewHistogramShape(t *testing.T) {
	eval := reviewHistogramShape()

	res := eval.Evaluate(&models.Evidence{Store: &models.StoreRecord{Histogram: []int64{0, 0, 0, 0, 100}}})
	require.True(t, res.Available)
	assert.InDelta(t, 0.20, *res.Score, 1e-9)
	assert.InDelta(t, 1.0, res.Details["five_star_pct"].(float64), 1e-9)

	res = eval.Evaluate(&models.Evidence{Store: &models.StoreRecord{Histogram: []int64{20, 20, 20, 20, 20}}})
	require.True(t, res.Available)
	assert.InDelta(t, 1.0, *res.Score, 1e-9)

	for name, hist := range map[string][]int64{
		"nil":      nil,
		"empty":    {},
		"all zero": {0, 0, 0, 0, 0},
		"short":    {1, 2, 3},
	} {
		t.Run(name, func(t *testing.T) {
			res := eval.Evaluate(&models.Evidence{Store: &models.StoreRecord{Histogram: hist}})
			assert.False(t, res.Available)
			assert.Nil(t, res.Score)
		})
	}
}

func TestParseInstalls(t *testing.T) {
	n, ok := ParseInstalls("1,000,000+")
	require.True(t, ok)
	assert.Equal(t, int64(1000000), n)

	n, ok = ParseInstalls("500+ downloads")
	require.True(t, ok)
	assert.Equal(t, int64(500), n)

	_, ok = ParseInstalls("many")
	assert.False(t, ok)

	_, ok = ParseInstalls(",,,")
	assert.False(t, ok)
}

func TestInstallsVsRatings(t *testing.T) {
	eval := installsVsRatings()

	res := eval.Evaluate(&models.Evidence{Store: &models.StoreRecord{Installs: "500+", Ratings: 15000}})
	require.True(t, res.Available)
	assert.Equal(t, 0.0, *res.Score)
	assert.Equal(t, true, res.Details["suspicious"])

	res = eval.Evaluate(&models.Evidence{Store: &models.StoreRecord{Installs: "10,000,000+", Ratings: 100000}})
	require.True(t, res.Available)
	assert.Greater(t, *res.Score, 0.0)
	assert.LessOrEqual(t, *res.Score, 1.0)
	assert.Equal(t, false, res.Details["suspicious"])

	res = eval.Evaluate(&models.Evidence{Store: &models.StoreRecord{Installs: "unknown", Ratings: 5}})
	assert.False(t, res.Available)
	assert.Equal(t, "installs unparsable", res.Reason)
}

func TestDeveloperPresence(t *testing.T) {
	eval := developerPresence()

	res := eval.Evaluate(&models.Evidence{Store: &models.StoreRecord{Developer: "PhonePe", DeveloperEmail: "support@phonepe.com"}})
	require.True(t, res.Available)
	assert.Equal(t, 1.0, *res.Score)

	res = eval.Evaluate(&models.Evidence{Store: &models.StoreRecord{Developer: "  "}})
	assert.False(t, res.Available)
}

func TestPermissionRisk(t *testing.T) {
	eval := permissionRisk(DefaultSensitivePermissions)

	res := eval.Evaluate(&models.Evidence{Package: &models.PackageEvidence{
		Permissions: []string{"android.permission.READ_SMS", "android.permission.CAMERA"},
	}})
	require.True(t, res.Available)
	assert.InDelta(t, 0.90, *res.Score, 1e-9)
	assert.Equal(t, []string{"android.permission.READ_SMS"}, res.Details["flagged"])

	res = eval.Evaluate(&models.Evidence{Package: &models.PackageEvidence{Permissions: []string{}}})
	require.True(t, res.Available)
	assert.Equal(t, 1.0, *res.Score)

	res = eval.Evaluate(&models.Evidence{Package: &models.PackageEvidence{}})
	assert.False(t, res.Available)

	many := make([]string, 0, 15)
	for i := 0; i < 15; i++ {
		many = append(many, "android.permission.SEND_SMS")
	}
	res = eval.Evaluate(&models.Evidence{Package: &models.PackageEvidence{Permissions: many}})
	require.True(t, res.Available)
	assert.Equal(t, 0.0, *res.Score)
}

type fakeHasher struct {
	hash string
	dist int
	bits int
	err  error
}

func (f fakeHasher) Hash([]byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.hash, nil
}

func (f fakeHasher) Distance(a, b string) (int, int, error) {
	return f.dist, f.bits, nil
}

func TestIconPerceptualHash(t *testing.T) {
	pkg := &models.PackageEvidence{Icon: []byte{0x89, 'P', 'N', 'G'}}

	res := iconPerceptualHash(fakeHasher{hash: "p:ff00", dist: 8, bits: 64}).Evaluate(&models.Evidence{
		Package:   pkg,
		Reference: &models.Reference{PackageName: "com.phonepe.app", IconPHash: "p:ff01"},
	})
	require.True(t, res.Available)
	assert.InDelta(t, 1-8.0/64.0, *res.Score, 1e-9)

	res = iconPerceptualHash(fakeHasher{hash: "p:ff00"}).Evaluate(&models.Evidence{Package: pkg})
	assert.False(t, res.Available)
	assert.Equal(t, "p:ff00", res.Details["phash"], "hash is still reported without a reference")

	res = iconPerceptualHash(fakeHasher{err: errors.New("bad image")}).Evaluate(&models.Evidence{Package: pkg})
	assert.False(t, res.Available)
	assert.Contains(t, res.Reason, "icon unreadable")
}

func TestCertificateFingerprint(t *testing.T) {
	certs := []models.Certificate{{DER: []byte("cert-one")}, {DER: []byte("cert-two")}}
	fps := Fingerprints(certs)
	require.Len(t, fps, 2)
	assert.Len(t, fps[0].SHA1, 40)
	assert.Len(t, fps[0].SHA256, 64)

	eval := certificateFingerprint()

	res := eval.Evaluate(&models.Evidence{Package: &models.PackageEvidence{Certificates: certs}})
	assert.False(t, res.Available)
	assert.NotNil(t, res.Details["certificates"])

	res = eval.Evaluate(&models.Evidence{
		Package:   &models.PackageEvidence{Certificates: certs},
		Reference: &models.Reference{CertSHA256: []string{fps[1].SHA256}},
	})
	require.True(t, res.Available)
	assert.Equal(t, 1.0, *res.Score)

	res = eval.Evaluate(&models.Evidence{
		Package:   &models.PackageEvidence{Certificates: certs},
		Reference: &models.Reference{CertSHA256: []string{"AB:CD"}},
	})
	require.True(t, res.Available)
	assert.Equal(t, 0.0, *res.Score)
	assert.Equal(t, true, res.Details["key_mismatch"])
}

func TestExtractURLs(t *testing.T) {
	urls := ExtractURLs([]string{
		"visit https://phonepe.com/help now",
		`<a href="http://evil.example/login">`,
		"https://phonepe.com/help",
		"no url here",
	})
	assert.Equal(t, []string{"https://phonepe.com/help", "http://evil.example/login"}, urls)

	res := urlExtraction().Evaluate(&models.Evidence{Package: &models.PackageEvidence{ResourceStrings: []string{"https://a.b"}}})
	assert.False(t, res.Available, "urls are informational only")
	assert.Equal(t, 1, res.Details["count"])
}
