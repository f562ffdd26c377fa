package readers

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/yapay-ai/cloudcost-sentinel/pkg/model"
)

// StaticReader serves cost data from a billing-export YAML file. It stands in
// for a live provider adapter in local setups and tests.
type StaticReader struct {
	provider model.ProviderID
	currency string
	days     []exportDayParsed

	now func() time.Time
}

type exportFile struct {
	Provider string      `yaml:"provider"`
	Currency string      `yaml:"currency"`
	Days     []exportDay `yaml:"days"`
}

type exportDay struct {
	Date     string          `yaml:"date"`
	Services []exportService `yaml:"services"`
}

type exportService struct {
	Name string `yaml:"name"`
	Cost string `yaml:"cost"`
}

type exportDayParsed struct {
	date     time.Time
	services []model.RawServiceCost
	total    decimal.Decimal
}

// NewStaticFromFile loads a billing export for the given provider.
func NewStaticFromFile(provider model.ProviderID, path string) (*StaticReader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read billing export: %w", err)
	}
	return NewStatic(provider, data)
}

// NewStatic parses billing-export YAML for the given provider.
func NewStatic(provider model.ProviderID, data []byte) (*StaticReader, error) {
	var file exportFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse billing export: %w", err)
	}

	currency := file.Currency
	if currency == "" {
		currency = "USD"
	}

	days := make([]exportDayParsed, 0, len(file.Days))
	for _, d := range file.Days {
		date, err := time.Parse("2006-01-02", d.Date)
		if err != nil {
			return nil, fmt.Errorf("parse export date %q: %w", d.Date, err)
		}

		parsed := exportDayParsed{date: date.UTC()}
		for _, svc := range d.Services {
			cost, err := decimal.NewFromString(svc.Cost)
			if err != nil {
				return nil, fmt.Errorf("parse cost %q for %q: %w", svc.Cost, svc.Name, err)
			}
			parsed.services = append(parsed.services, model.RawServiceCost{Name: svc.Name, Cost: cost})
			parsed.total = parsed.total.Add(cost)
		}
		days = append(days, parsed)
	}

	sort.Slice(days, func(i, j int) bool { return days[i].date.Before(days[j].date) })

	return &StaticReader{
		provider: provider,
		currency: currency,
		days:     days,
		now:      time.Now,
	}, nil
}

// WithClock overrides the reader's time source, used by tests to pin the
// current-period window.
func (r *StaticReader) WithClock(now func() time.Time) *StaticReader {
	r.now = now
	return r
}

func (r *StaticReader) Provider() model.ProviderID { return r.provider }

func (r *StaticReader) GetCurrentPeriodCost(ctx context.Context) (model.RawCostData, error) {
	if err := ctx.Err(); err != nil {
		return model.RawCostData{}, err
	}
	period := model.MonthToDate(r.now())
	return r.aggregate(period, model.GranularityMonthly), nil
}

func (r *StaticReader) GetRange(ctx context.Context, start, end time.Time, granularity model.Granularity) (model.RawCostData, error) {
	if err := ctx.Err(); err != nil {
		return model.RawCostData{}, err
	}
	return r.aggregate(model.Period{Start: start.UTC(), End: end.UTC()}, granularity), nil
}

func (r *StaticReader) aggregate(period model.Period, granularity model.Granularity) model.RawCostData {
	raw := model.RawCostData{
		Provider: string(r.provider),
		Currency: r.currency,
		Period:   period,
	}

	byService := make(map[string]decimal.Decimal)
	var serviceOrder []string
	for _, day := range r.days {
		if day.date.Before(period.Start) || !day.date.Before(period.End) {
			continue
		}
		for _, svc := range day.services {
			if _, seen := byService[svc.Name]; !seen {
				serviceOrder = append(serviceOrder, svc.Name)
			}
			byService[svc.Name] = byService[svc.Name].Add(svc.Cost)
		}
		raw.TotalCost = raw.TotalCost.Add(day.total)
		if granularity == model.GranularityDaily {
			raw.Days = append(raw.Days, model.RawDailyCost{Date: day.date, Cost: day.total})
		}
	}

	for _, name := range serviceOrder {
		raw.Services = append(raw.Services, model.RawServiceCost{Name: name, Cost: byService[name]})
	}
	return raw
}
