// Package normalize maps heterogeneous provider cost responses into the
// canonical snapshot schema and merges snapshots into a multi-cloud view.
package normalize

import (
	"sort"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/yapay-ai/cloudcost-sentinel/pkg/model"
)

// Canonical service taxonomy.
const (
	ServiceCompute    = "Compute"
	ServiceStorage    = "Storage"
	ServiceDatabase   = "Database"
	ServiceNetworking = "Networking"
	ServiceCDN        = "CDN"
	ServiceAnalytics  = "Analytics"
	ServiceContainers = "Containers"
	ServiceServerless = "Serverless"
	ServiceOther      = "Other"

	// ServiceUnknown is the fallback for unmappable empty input.
	ServiceUnknown = "Unknown Service"
)

// totalTolerance is the rounding slack allowed between a reported total and
// the sum of its service lines.
var totalTolerance = decimal.NewFromFloat(0.01)

// commonNames maps the taxonomy onto itself plus cross-provider generic
// labels, keyed lowercase.
var commonNames = map[string]string{
	"compute":         ServiceCompute,
	"storage":         ServiceStorage,
	"database":        ServiceDatabase,
	"networking":      ServiceNetworking,
	"cdn":             ServiceCDN,
	"analytics":       ServiceAnalytics,
	"containers":      ServiceContainers,
	"serverless":      ServiceServerless,
	"other":           ServiceOther,
	"unknown service": ServiceUnknown,
	"kubernetes":      ServiceContainers,
	"load balancer":   ServiceNetworking,
	"object storage":  ServiceStorage,
}

var providerNames = map[model.ProviderID]map[string]string{
	model.ProviderAWS: {
		"amazon elastic compute cloud":           ServiceCompute,
		"amazon elastic compute cloud - compute": ServiceCompute,
		"amazon lightsail":                       ServiceCompute,
		"amazon simple storage service":          ServiceStorage,
		"amazon elastic block store":             ServiceStorage,
		"amazon glacier":                         ServiceStorage,
		"amazon relational database service":     ServiceDatabase,
		"amazon dynamodb":                        ServiceDatabase,
		"amazon elasticache":                     ServiceDatabase,
		"amazon virtual private cloud":           ServiceNetworking,
		"elastic load balancing":                 ServiceNetworking,
		"amazon route 53":                        ServiceNetworking,
		"amazon cloudfront":                      ServiceCDN,
		"amazon athena":                          ServiceAnalytics,
		"amazon redshift":                        ServiceAnalytics,
		"amazon kinesis":                         ServiceAnalytics,
		"amazon elastic container service":       ServiceContainers,
		"amazon elastic kubernetes service":      ServiceContainers,
		"aws fargate":                            ServiceContainers,
		"aws lambda":                             ServiceServerless,
		"aws step functions":                     ServiceServerless,
	},
	model.ProviderAzure: {
		"virtual machines":              ServiceCompute,
		"virtual machine scale sets":    ServiceCompute,
		"storage accounts":              ServiceStorage,
		"blob storage":                  ServiceStorage,
		"managed disks":                 ServiceStorage,
		"sql database":                  ServiceDatabase,
		"azure cosmos db":               ServiceDatabase,
		"azure database for postgresql": ServiceDatabase,
		"virtual network":               ServiceNetworking,
		"application gateway":           ServiceNetworking,
		"azure dns":                     ServiceNetworking,
		"azure cdn":                     ServiceCDN,
		"azure front door":              ServiceCDN,
		"azure synapse analytics":       ServiceAnalytics,
		"azure stream analytics":        ServiceAnalytics,
		"azure kubernetes service":      ServiceContainers,
		"container instances":           ServiceContainers,
		"container registry":            ServiceContainers,
		"azure functions":               ServiceServerless,
		"logic apps":                    ServiceServerless,
	},
	model.ProviderGCP: {
		"compute engine":           ServiceCompute,
		"cloud storage":            ServiceStorage,
		"persistent disk":          ServiceStorage,
		"cloud sql":                ServiceDatabase,
		"cloud bigtable":           ServiceDatabase,
		"cloud spanner":            ServiceDatabase,
		"firestore":                ServiceDatabase,
		"cloud load balancing":     ServiceNetworking,
		"cloud dns":                ServiceNetworking,
		"vpc network":              ServiceNetworking,
		"cloud cdn":                ServiceCDN,
		"bigquery":                 ServiceAnalytics,
		"dataflow":                 ServiceAnalytics,
		"google kubernetes engine": ServiceContainers,
		"artifact registry":        ServiceContainers,
		"cloud functions":          ServiceServerless,
		"cloud run":                ServiceServerless,
	},
}

// vendorPrefixes are stripped from unmapped names before the fallback
// cleanup, longest first so "amazon" wins over "aws" style overlaps.
var vendorPrefixes = []string{"amazon", "google", "azure", "cloud", "aws"}

// minSubstringKey guards the substring stage against very short aliases
// matching unrelated labels.
const minSubstringKey = 4

// Canonicalize maps a provider's raw service label into the fixed taxonomy.
// The mapping is best-effort and lossy but never returns an empty string,
// and is idempotent: canonical output maps to itself.
func Canonicalize(provider model.ProviderID, raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ServiceUnknown
	}
	table := providerNames[provider]

	// Stages 1-2: exact match, then substring match.
	if name, ok := lookup(table, strings.ToLower(trimmed)); ok {
		return name
	}

	// Stage 3: strip vendor prefixes and retry the lookup on the cleaned
	// name. The retry keeps the function idempotent: a stripped label such
	// as "Spanner" must resolve the same way whether it arrives raw or as
	// this function's own output.
	cleaned := stripVendorPrefixes(trimmed)
	if cleaned == "" {
		return ServiceUnknown
	}
	if name, ok := lookup(table, strings.ToLower(cleaned)); ok {
		return name
	}

	runes := []rune(cleaned)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// lookup resolves a lowercased label via exact match first, then substring
// match, provider table before the common table at each stage.
func lookup(table map[string]string, lower string) (string, bool) {
	if name, ok := table[lower]; ok {
		return name, true
	}
	if name, ok := commonNames[lower]; ok {
		return name, true
	}
	if name, ok := substringMatch(table, lower); ok {
		return name, true
	}
	return substringMatch(commonNames, lower)
}

// substringMatch tries a case-insensitive containment match in either
// direction, walking keys in sorted order so ambiguous labels resolve
// deterministically.
func substringMatch(table map[string]string, lower string) (string, bool) {
	keys := make([]string, 0, len(table))
	for k := range table {
		if len(k) >= minSubstringKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.Contains(lower, k) || strings.Contains(k, lower) {
			return table[k], true
		}
	}
	return "", false
}

func stripVendorPrefixes(name string) string {
	words := strings.Fields(name)
	for len(words) > 0 {
		stripped := false
		lower := strings.ToLower(words[0])
		for _, prefix := range vendorPrefixes {
			if lower == prefix {
				words = words[1:]
				stripped = true
				break
			}
		}
		if !stripped {
			break
		}
	}
	return strings.Join(words, " ")
}

// Normalize converts one provider's raw response into a structurally valid
// snapshot. It never fails: missing numbers default to zero, missing currency
// to USD, and a structurally empty payload is flagged degraded rather than
// returned as an error, so aggregation always has something to merge.
func Normalize(raw model.RawCostData, provider model.ProviderID) model.CostSnapshot {
	snap := model.CostSnapshot{
		Provider: provider,
		Currency: raw.Currency,
		Period:   raw.Period,
	}
	if snap.Currency == "" {
		snap.Currency = "USD"
	}

	var sum decimal.Decimal
	for _, row := range raw.Services {
		cost := row.Cost
		if cost.IsNegative() {
			cost = decimal.Zero
		}
		snap.Services = append(snap.Services, model.ServiceCost{
			CanonicalName: Canonicalize(provider, row.Name),
			Cost:          cost,
			Currency:      snap.Currency,
			OriginalName:  row.Name,
		})
		sum = sum.Add(cost)
	}

	snap.TotalCost = raw.TotalCost
	if snap.TotalCost.IsNegative() {
		snap.TotalCost = decimal.Zero
	}
	switch {
	case snap.TotalCost.IsZero() && sum.IsPositive():
		// No reported total; the breakdown is authoritative.
		snap.TotalCost = sum
	case len(snap.Services) > 0 && snap.TotalCost.Sub(sum).Abs().GreaterThan(totalTolerance):
		// Breakdown disagrees with the reported total beyond rounding
		// slack; keep the total, drop the unreliable breakdown.
		snap.Services = nil
	}

	if len(raw.Services) == 0 && raw.TotalCost.IsZero() && raw.Period.Start.IsZero() && raw.Period.End.IsZero() {
		snap.Degraded = true
	}

	return snap
}
