// Package tally joins the party, district and vote tables into per-district
// winners and party seat totals.
package tally

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/verte-zerg/electmap/internal/color"
	"github.com/verte-zerg/electmap/internal/model"
)

// Aggregate computes fresh results from the three tables. Winner-take-all:
// a district's seats all go to its plurality winner. Ties go to the first
// party in vote table column order. Vote rows whose district is missing from
// the district table count as one seat.
func Aggregate(parties []model.Party, districts []model.District, votes model.VoteTable) model.Results {
	seatsByDistrict := make(map[string]int, len(districts))
	for _, d := range districts {
		seatsByDistrict[d.ID] = d.Seats
	}
	names := make(map[string]string, len(parties))
	colors := make(map[string]string, len(parties))
	seats := make(map[string]int, len(parties))
	for _, p := range parties {
		names[p.ID] = p.Name
		colors[p.ID] = p.Color
		seats[p.ID] = 0
	}

	res := model.Results{
		Districts: make(map[string]model.DistrictResult, len(votes.Rows)),
		Seats:     seats,
		Colors:    colors,
	}
	for _, row := range votes.Rows {
		districtSeats, ok := seatsByDistrict[row.DistrictID]
		if !ok {
			districtSeats = model.DefaultSeats
		}
		ids, counts, total := votes.Counts(row)
		winner, winnerVotes := pickWinner(ids, counts)

		result := model.DistrictResult{
			DistrictID: row.DistrictID,
			Seats:      districtSeats,
			TotalVotes: total,
			Color:      model.NoContestColor,
		}
		switch {
		case districtSeats == 0:
			result.WinnerName = model.NoElectionLabel
		case total == 0 || winner == "":
			result.WinnerName = model.NoDataLabel
		default:
			result.Contested = true
			result.WinnerID = winner
			result.WinnerName = winner
			if name, ok := names[winner]; ok {
				result.WinnerName = name
			}
			base, ok := colors[winner]
			if !ok {
				base = model.FallbackColor
			}
			result.Ratio = float64(winnerVotes) / float64(total)
			result.Color = color.Intensity(base, result.Ratio)
			if _, known := seats[winner]; known {
				seats[winner] += districtSeats
			}
		}
		if _, seen := res.Districts[row.DistrictID]; !seen {
			res.Order = append(res.Order, row.DistrictID)
		}
		res.Districts[row.DistrictID] = result
	}

	res.Parties = make([]model.PartyTotal, 0, len(parties))
	for _, p := range parties {
		res.Parties = append(res.Parties, model.PartyTotal{
			PartyID: p.ID,
			Name:    p.Name,
			Color:   p.Color,
			Seats:   seats[p.ID],
		})
	}
	return res
}

// AggregateDataset is Aggregate over a loaded dataset.
func AggregateDataset(ds model.Dataset) model.Results {
	return Aggregate(ds.Parties, ds.Districts, ds.Votes)
}

func pickWinner(ids []string, counts []int) (string, int) {
	winner := ""
	maxVotes := -1
	for i, n := range counts {
		if n > maxVotes {
			maxVotes = n
			winner = ids[i]
		}
	}
	return winner, maxVotes
}

// Detail returns the district record and its vote breakdown sorted by count,
// highest first. A district absent from the district table is ErrNotFound.
func Detail(ds model.Dataset, districtID string) (model.DistrictDetail, error) {
	district, ok := ds.FindDistrict(districtID)
	if !ok {
		return model.DistrictDetail{}, fmt.Errorf("%w: district %q", model.ErrNotFound, districtID)
	}
	detail := model.DistrictDetail{District: district}
	idx := ds.Votes.RowIndex(districtID)
	if idx < 0 {
		return detail, nil
	}
	names := ds.PartyNames()
	ids, counts, total := ds.Votes.Counts(ds.Votes.Rows[idx])
	for i, pid := range ids {
		name, ok := names[pid]
		if !ok {
			name = pid
		}
		detail.Votes = append(detail.Votes, model.PartyVotes{PartyID: pid, Name: name, Count: counts[i]})
	}
	sort.SliceStable(detail.Votes, func(i, j int) bool {
		return detail.Votes[i].Count > detail.Votes[j].Count
	})
	detail.Total = total
	return detail, nil
}

// Summary condenses a result set for reporting.
type Summary struct {
	Districts   int
	Contested   int
	NoData      int
	NoElection  int
	TotalVotes  int
	TotalSeats  int
	MeanRatio   float64
	StdDevRatio float64
}

// Summarize counts outcomes and computes win ratio statistics over contested
// districts.
func Summarize(res model.Results) Summary {
	var s Summary
	ratios := make([]float64, 0, len(res.Order))
	for _, id := range res.Order {
		r := res.Districts[id]
		s.Districts++
		s.TotalVotes += r.TotalVotes
		switch {
		case r.Contested:
			s.Contested++
			s.TotalSeats += r.Seats
			ratios = append(ratios, r.Ratio)
		case r.WinnerName == model.NoElectionLabel:
			s.NoElection++
		default:
			s.NoData++
		}
	}
	switch len(ratios) {
	case 0:
	case 1:
		s.MeanRatio = ratios[0]
	default:
		s.MeanRatio, s.StdDevRatio = stat.MeanStdDev(ratios, nil)
	}
	return s
}
