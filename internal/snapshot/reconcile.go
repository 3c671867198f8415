package snapshot

import (
	"math"
	"sort"

	"worthbar/internal/models"
)

// nearZero guards the percent-change division; reference totals below it
// yield a 0 percent change instead of a blow-up.
const nearZero = 1e-9

// dateBucket accumulates matching balance rows for one date.
type dateBucket struct {
	total float64
	count int
}

// reconcile turns the raw account and balance lists into the latest total
// and day-over-day percent change.
//
// Each kept account contributes through exactly one balance-type tag
// (ONLINE or CURRENT, never both). Rows are bucketed per date; the latest
// usable date is the chronologically last "complete" date, where complete
// means the date's row count equals the maximum seen across all dates — a
// date with fewer rows likely reflects a partially synced day. The
// previous date is chosen the same way.
func reconcile(accounts []models.AccountRecord, balances []models.BalanceRecord) (float64, float64, error) {
	preferred := make(map[string]string)
	for _, acct := range accounts {
		if acct.Excluded() || acct.ID == "" {
			continue
		}
		preferred[acct.ID.String()] = acct.PreferredBalanceType()
	}

	buckets := make(map[string]*dateBucket)
	for _, bal := range balances {
		if bal.AccountID == "" || bal.BalanceOn == "" || bal.BalanceAmount == nil {
			continue
		}
		pref, ok := preferred[bal.AccountID.String()]
		if !ok || bal.BalanceType != pref {
			continue
		}
		b := buckets[bal.BalanceOn]
		if b == nil {
			b = &dateBucket{}
			buckets[bal.BalanceOn] = b
		}
		b.total += *bal.BalanceAmount
		b.count++
	}

	if len(buckets) == 0 {
		return 0, 0, ErrNoBalanceData
	}

	maxCount := 0
	for _, b := range buckets {
		if b.count > maxCount {
			maxCount = b.count
		}
	}

	var completeDates, allDates []string
	for date, b := range buckets {
		allDates = append(allDates, date)
		if b.count == maxCount {
			completeDates = append(completeDates, date)
		}
	}
	sort.Strings(completeDates)
	sort.Strings(allDates)

	// completeDates cannot actually be empty once buckets exist, but the
	// all-dates fallback keeps an answer coming regardless.
	latestDate := allDates[len(allDates)-1]
	if len(completeDates) > 0 {
		latestDate = completeDates[len(completeDates)-1]
	}

	prevDate := ""
	switch {
	case len(completeDates) >= 2:
		prevDate = completeDates[len(completeDates)-2]
	case len(allDates) >= 2:
		prevDate = allDates[len(allDates)-2]
	}

	latestTotal := buckets[latestDate].total
	percent := 0.0
	if prevDate != "" {
		percent = percentChange(latestTotal, buckets[prevDate].total)
	}
	return latestTotal, percent, nil
}

// percentChange computes the day-over-day change, 0 when the reference
// total is effectively zero.
func percentChange(latest, prev float64) float64 {
	if math.Abs(prev) < nearZero {
		return 0
	}
	return (latest - prev) / math.Abs(prev) * 100
}
