package scoring

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"cloneguard-lab/internal/domain/models"
)

// DefaultBrands is the curated brand list used by the label signal
var DefaultBrands = []string{"phonepe", "paytm", "gpay", "upi", "sbi", "icici", "hdfc", "paypal"}

const (
	organicFiveStarBaseline = 0.2
	tinyInstallBase         = 1000
	implausibleRatingCount  = 10000
)

var installsPattern = regexp.MustCompile(`[\d,]*\d[\d,]*`)

// BrandMatch is the best brand found for a title
type BrandMatch struct {
	Brand string
	Score float64
}

// BestBrand compares the normalized title and each of its words against brands.
// The first brand in list order wins ties; an empty title matches nothing.
func BestBrand(title string, brands []string) BrandMatch {
	candidates := NormalizedWords(title)
	if whole := Normalize(title); whole != "" {
		candidates = append([]string{whole}, candidates...)
	}

	var best BrandMatch
	for _, brand := range brands {
		nb := Normalize(brand)
		for _, c := range candidates {
			if s := Ratio(c, nb); s > best.Score {
				best = BrandMatch{Brand: brand, Score: s}
			}
		}
	}
	return best
}

func packageLabelSimilarity(brands []string) Evaluator {
	return NewEvaluatorFunc(models.SignalPackageLabelSimilarity, func(ev *models.Evidence) models.SignalResult {
		id, title := ev.AppID(), ev.Title()
		if id == "" || title == "" {
			return Unavailable(models.SignalPackageLabelSimilarity, "title or package id missing", nil)
		}

		sim := Ratio(Normalize(id), Normalize(title))
		brand := BestBrand(title, brands)

		details := map[string]any{
			"package":              id,
			"title":                title,
			"pkg_title_similarity": round(sim, 3),
			"best_brand":           nil,
			"best_brand_score":     round(brand.Score, 3),
		}
		if brand.Brand != "" {
			details["best_brand"] = brand.Brand
		}
		return Available(models.SignalPackageLabelSimilarity, sim*0.6+brand.Score*0.4, details)
	})
}

func reviewHistogramShape() Evaluator {
	return NewEvaluatorFunc(models.SignalReviewHistogramShape, func(ev *models.Evidence) models.SignalResult {
		if ev == nil || ev.Store == nil || len(ev.Store.Histogram) == 0 {
			return Unavailable(models.SignalReviewHistogramShape, "histogram missing", nil)
		}
		hist := ev.Store.Histogram
		if len(hist) != 5 {
			return Unavailable(models.SignalReviewHistogramShape, "histogram must have 5 buckets", map[string]any{"histogram": hist})
		}

		var total int64
		for _, n := range hist {
			if n < 0 {
				return Unavailable(models.SignalReviewHistogramShape, "histogram has negative bucket", map[string]any{"histogram": hist})
			}
			total += n
		}
		if total == 0 {
			return Unavailable(models.SignalReviewHistogramShape, "histogram empty", map[string]any{"histogram": hist})
		}

		five := float64(hist[4]) / float64(total)
		one := float64(hist[0]) / float64(total)
		return Available(models.SignalReviewHistogramShape, 1-math.Abs(five-organicFiveStarBaseline), map[string]any{
			"histogram":     hist,
			"five_star_pct": round(five, 3),
			"one_star_pct":  round(one, 3),
		})
	})
}

// ParseInstalls extracts the first digit run (commas allowed) from a free-text install range
func ParseInstalls(raw string) (int64, bool) {
	m := installsPattern.FindString(raw)
	if m == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.ReplaceAll(m, ",", ""), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func installsVsRatings() Evaluator {
	return NewEvaluatorFunc(models.SignalInstallsVsRatings, func(ev *models.Evidence) models.SignalResult {
		if ev == nil || ev.Store == nil {
			return Unavailable(models.SignalInstallsVsRatings, "store record missing", nil)
		}
		installs, ok := ParseInstalls(ev.Store.Installs)
		if !ok {
			return Unavailable(models.SignalInstallsVsRatings, "installs unparsable", map[string]any{"installs_raw": ev.Store.Installs})
		}
		ratings := ev.Store.Ratings
		if ratings < 0 {
			ratings = 0
		}

		if installs < tinyInstallBase && ratings > implausibleRatingCount {
			return Available(models.SignalInstallsVsRatings, 0, map[string]any{
				"installs":   installs,
				"ratings":    ratings,
				"suspicious": true,
			})
		}

		ratio := math.Log1p(float64(ratings)+1) / (math.Log1p(float64(installs)+1) + 1e-6)
		return Available(models.SignalInstallsVsRatings, 1-0.5*ratio, map[string]any{
			"installs":   installs,
			"ratings":    ratings,
			"suspicious": false,
		})
	})
}

func developerPresence() Evaluator {
	return NewEvaluatorFunc(models.SignalDeveloperPresence, func(ev *models.Evidence) models.SignalResult {
		if ev == nil || ev.Store == nil || strings.TrimSpace(ev.Store.Developer) == "" {
			details := map[string]any{}
			if ev != nil && ev.Store != nil && ev.Store.DeveloperEmail != "" {
				details["email"] = ev.Store.DeveloperEmail
			}
			return Unavailable(models.SignalDeveloperPresence, "developer missing", details)
		}
		return Available(models.SignalDeveloperPresence, 1, map[string]any{
			"developer": ev.Store.Developer,
			"email":     ev.Store.DeveloperEmail,
		})
	})
}
