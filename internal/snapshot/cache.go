package snapshot

import (
	"sort"

	"worthbar/internal/hostdata"
	"worthbar/internal/models"
)

// Cache builds a snapshot from the host's cached datasets: a
// pre-aggregated accounts payload for the total and a history table for
// the day-over-day percent change.
func (b *Builder) Cache() (models.Snapshot, error) {
	accountsBlob, err := b.Host.CacheBlob(hostdata.AccountsStore)
	if err != nil {
		return models.Snapshot{}, err
	}
	historyBlob, err := b.Host.CacheBlob(hostdata.BalancesHistoryStore)
	if err != nil {
		return models.Snapshot{}, err
	}

	accountsPayload, err := hostdata.DecodePayload(accountsBlob)
	if err != nil {
		return models.Snapshot{}, err
	}
	historyPayload, err := hostdata.DecodePayload(historyBlob)
	if err != nil {
		return models.Snapshot{}, err
	}

	return models.Snapshot{
		Total:        cacheTotal(accountsPayload),
		DailyPercent: cachePercent(historyPayload),
		Source:       models.SourceCache,
	}, nil
}

// balanceFields is the preference order of balance fields in a cached
// account record; the first non-null numeric wins.
var balanceFields = []string{"normalizedBalance", "currentBalanceAsOf", "onlineBalance", "balanceAsOf"}

// cacheTotal sums the balances of every kept resource in the cached
// accounts payload.
func cacheTotal(payload any) float64 {
	resources := dig(payload, "data", "resourcesById")
	byID, _ := resources.(map[string]any)

	total := 0.0
	for _, raw := range byID {
		rec, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if rec["isDeleted"] == true || rec["isIgnored"] == true || rec["isClosed"] == true {
			continue
		}
		for _, field := range balanceFields {
			if v, ok := toNumber(rec[field]); ok {
				total += v
				break
			}
		}
	}
	return total
}

// cachePercent sums per-date cell values across all history rows and
// compares the two chronologically last dates.
func cachePercent(payload any) float64 {
	rows, _ := dig(payload, "data", "rows").([]any)

	totalsByDate := make(map[string]float64)
	for _, raw := range rows {
		row, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		cells, _ := row["cellData"].([]any)
		for _, rawCell := range cells {
			cell, ok := rawCell.(map[string]any)
			if !ok {
				continue
			}
			date, _ := cell["date"].(string)
			value, numeric := toNumber(cell["value"])
			if date == "" || !numeric {
				continue
			}
			totalsByDate[date] += value
		}
	}

	if len(totalsByDate) < 2 {
		return 0
	}

	dates := make([]string, 0, len(totalsByDate))
	for date := range totalsByDate {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	return percentChange(totalsByDate[dates[len(dates)-1]], totalsByDate[dates[len(dates)-2]])
}

// dig walks nested JSON objects by key, returning nil when any level is
// missing or not an object.
func dig(payload any, keys ...string) any {
	current := payload
	for _, key := range keys {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = obj[key]
	}
	return current
}

// toNumber accepts JSON numbers only; booleans are not numeric.
func toNumber(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}
