package normalize

import (
	"sort"

	"github.com/samber/lo"

	"github.com/yapay-ai/cloudcost-sentinel/pkg/model"
)

// CombineMultiCloudData merges provider snapshots into one view. A provider
// contributing the same canonical name twice within one snapshot is summed,
// not overwritten, and the contributors of each combined service partition
// its total exactly. The service sort is descending by total cost with
// canonical-name ties broken lexically so output order is deterministic.
func CombineMultiCloudData(snapshots []model.CostSnapshot) model.CombinedView {
	view := model.CombinedView{
		PerProvider: make(map[model.ProviderID]model.ProviderTotal, len(snapshots)),
	}

	merged := make(map[string]*model.CombinedService)
	for _, snap := range snapshots {
		pt := view.PerProvider[snap.Provider]
		pt.TotalCost = pt.TotalCost.Add(snap.TotalCost)
		pt.ServiceCount += len(snap.Services)
		pt.Status = model.StatusActive
		if pt.Currency == "" {
			pt.Currency = snap.Currency
		}
		view.PerProvider[snap.Provider] = pt

		view.TotalCost = view.TotalCost.Add(snap.TotalCost)
		if view.Currency == "" {
			view.Currency = snap.Currency
		}

		for _, svc := range snap.Services {
			cs, ok := merged[svc.CanonicalName]
			if !ok {
				cs = &model.CombinedService{CanonicalName: svc.CanonicalName}
				merged[svc.CanonicalName] = cs
			}
			cs.TotalCost = cs.TotalCost.Add(svc.Cost)
			addContribution(cs, snap.Provider, svc)
		}
	}

	services := lo.Map(lo.Values(merged), func(cs *model.CombinedService, _ int) model.CombinedService {
		return *cs
	})
	sort.SliceStable(services, func(i, j int) bool {
		if c := services[i].TotalCost.Cmp(services[j].TotalCost); c != 0 {
			return c > 0
		}
		return services[i].CanonicalName < services[j].CanonicalName
	})
	view.CombinedServices = services

	return view
}

// addContribution folds a service line into the contributor list, summing
// repeated lines from the same provider and original label.
func addContribution(cs *model.CombinedService, provider model.ProviderID, svc model.ServiceCost) {
	for i := range cs.Contributors {
		c := &cs.Contributors[i]
		if c.Provider == provider && c.OriginalName == svc.OriginalName {
			c.Cost = c.Cost.Add(svc.Cost)
			return
		}
	}
	cs.Contributors = append(cs.Contributors, model.Contribution{
		Provider:     provider,
		Cost:         svc.Cost,
		OriginalName: svc.OriginalName,
	})
}
